package builder

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/schema"
)

// Cond is the subset of sqlbuilder condition methods the evaluator needs.
// *sqlbuilder.SelectBuilder, *UpdateBuilder and *DeleteBuilder all satisfy it,
// so compiled filters can back SELECT, UPDATE and DELETE statements alike.
type Cond interface {
	EQ(field string, value interface{}) string
	NE(field string, value interface{}) string
	GT(field string, value interface{}) string
	GE(field string, value interface{}) string
	LT(field string, value interface{}) string
	LE(field string, value interface{}) string
	Like(field string, value interface{}) string
	NotLike(field string, value interface{}) string
	In(field string, values ...interface{}) string
	NotIn(field string, values ...interface{}) string
	Between(field string, lower, upper interface{}) string
	IsNull(field string) string
	IsNotNull(field string) string
}

// Evaluator compiles a view's declarative filter clauses and sort keys into
// SQL conditions over the record property bag.
type Evaluator struct {
	flavor sqlbuilder.Flavor
}

// NewEvaluator creates an evaluator for the given SQL flavor.
func NewEvaluator(flavor sqlbuilder.Flavor) *Evaluator {
	return &Evaluator{flavor: flavor}
}

// PropertyPath returns the SQL expression that extracts one property value
// from the JSON bag, in the evaluator's flavor.
func (e *Evaluator) PropertyPath(propertyID string) string {
	if e.flavor == sqlbuilder.PostgreSQL {
		return fmt.Sprintf("(properties ->> '%s')", propertyID)
	}
	// sqlite and mysql share the json_extract spelling
	return fmt.Sprintf(`json_extract(properties, '$."%s"')`, propertyID)
}

// Compile folds the clause chain left to right into a single condition
// expression registered on cond. Each clause's logic joins it to the next
// clause: [{A, AND}, {B, OR}, {C}] compiles to ((A AND B) OR C). The chain is
// flat; there is no nested boolean tree.
func (e *Evaluator) Compile(db *schema.Database, clauses []schema.FilterClause, cond Cond) (string, error) {
	if err := schema.ValidateClauses(db, clauses); err != nil {
		return "", err
	}

	expr := ""
	for i, c := range clauses {
		def, _ := db.Property(c.PropertyID)
		condition, err := e.clauseCondition(def, c, cond)
		if err != nil {
			return "", err
		}
		if i == 0 {
			expr = condition
			continue
		}
		logic := clauses[i-1].Logic
		if logic == "" {
			logic = schema.LogicAnd
		}
		expr = "(" + expr + " " + logic + " " + condition + ")"
	}
	return expr, nil
}

// clauseCondition builds the condition for a single clause.
func (e *Evaluator) clauseCondition(def schema.PropertyDefinition, c schema.FilterClause, cond Cond) (string, error) {
	path := e.PropertyPath(c.PropertyID)

	switch c.Operator {
	case schema.OpEQ:
		return cond.EQ(path, c.Value), nil
	case schema.OpNEQ:
		return cond.NE(path, c.Value), nil
	case schema.OpGT:
		return cond.GT(path, c.Value), nil
	case schema.OpGTE:
		return cond.GE(path, c.Value), nil
	case schema.OpLT:
		return cond.LT(path, c.Value), nil
	case schema.OpLTE:
		return cond.LE(path, c.Value), nil
	case schema.OpContains:
		s, ok := c.Value.(string)
		if !ok {
			return "", apperr.Validation("contains filter on '%s' requires a string value", c.PropertyID)
		}
		if def.Type == schema.TypeMultiSelect {
			// the bag stores multi-select values as a JSON array of strings
			return cond.Like(path, `%"`+s+`"%`), nil
		}
		return cond.Like(path, "%"+s+"%"), nil
	case schema.OpNotContains:
		s, ok := c.Value.(string)
		if !ok {
			return "", apperr.Validation("not_contains filter on '%s' requires a string value", c.PropertyID)
		}
		if def.Type == schema.TypeMultiSelect {
			return "(" + cond.IsNull(path) + " OR " + cond.NotLike(path, `%"`+s+`"%`) + ")", nil
		}
		return "(" + cond.IsNull(path) + " OR " + cond.NotLike(path, "%"+s+"%") + ")", nil
	case schema.OpBetween:
		low, high, err := rangeValues(c)
		if err != nil {
			return "", err
		}
		return cond.Between(path, low, high), nil
	case schema.OpIn:
		values, err := listValues(c)
		if err != nil {
			return "", err
		}
		if def.Type == schema.TypeMultiSelect {
			return e.anyMembership(path, values, cond, false)
		}
		return cond.In(path, values...), nil
	case schema.OpNotIn:
		values, err := listValues(c)
		if err != nil {
			return "", err
		}
		if def.Type == schema.TypeMultiSelect {
			return e.anyMembership(path, values, cond, true)
		}
		return "(" + cond.IsNull(path) + " OR " + cond.NotIn(path, values...) + ")", nil
	case schema.OpEmpty:
		return "(" + cond.IsNull(path) + " OR " + cond.EQ(path, "") + ")", nil
	case schema.OpNotEmpty:
		return "(" + cond.IsNotNull(path) + " AND " + cond.NE(path, "") + ")", nil
	default:
		return "", apperr.Validation("unknown operator '%s'", c.Operator)
	}
}

// anyMembership builds an OR chain of array-containment checks for
// multi-select values, optionally negated.
func (e *Evaluator) anyMembership(path string, values []interface{}, cond Cond, negate bool) (string, error) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return "", apperr.Validation("membership filter values must be strings")
		}
		parts = append(parts, cond.Like(path, `%"`+s+`"%`))
	}
	expr := "(" + strings.Join(parts, " OR ") + ")"
	if negate {
		return "(" + cond.IsNull(path) + " OR NOT " + expr + ")", nil
	}
	return expr, nil
}

func listValues(c schema.FilterClause) ([]interface{}, error) {
	switch v := c.Value.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, apperr.Validation("membership filter on '%s' requires at least one value", c.PropertyID)
		}
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return nil, apperr.Validation("membership filter on '%s' requires an array value", c.PropertyID)
}

func rangeValues(c schema.FilterClause) (interface{}, interface{}, error) {
	v, ok := c.Value.([]interface{})
	if !ok || len(v) != 2 {
		return nil, nil, apperr.Validation("between filter on '%s' requires a [low, high] pair", c.PropertyID)
	}
	return v[0], v[1], nil
}

// CompileSort maps sort keys to ORDER BY expressions in listed order. Ties
// always fall back to the record's manual order number, then creation time,
// so listings are deterministic.
func (e *Evaluator) CompileSort(db *schema.Database, sorts []schema.SortKey) ([]string, error) {
	if err := schema.ValidateSorts(db, sorts); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(sorts)+2)
	for _, s := range sorts {
		dir := "ASC"
		if s.Direction == "desc" {
			dir = "DESC"
		}
		out = append(out, e.PropertyPath(s.PropertyID)+" "+dir)
	}
	out = append(out, "order_num ASC", "created_at ASC")
	return out, nil
}

// SearchCondition builds a case-blind LIKE chain over every TEXT-like
// property of the schema. Returns "" when the schema has no searchable
// property.
func (e *Evaluator) SearchCondition(db *schema.Database, term string, cond Cond) string {
	if term == "" {
		return ""
	}
	var parts []string
	for _, p := range db.Properties {
		if !p.Type.TextLike() {
			continue
		}
		parts = append(parts, cond.Like(e.PropertyPath(p.ID), "%"+term+"%"))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
