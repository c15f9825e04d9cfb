package schema

import "github.com/xcono/gridbase/apperr"

// Filter operators. An operator is only legal against property types listed
// in operatorsByType; illegal pairs are rejected when a view is saved, not
// when a query runs.
const (
	OpEQ          = "eq"           // equals
	OpNEQ         = "neq"          // not equals
	OpContains    = "contains"     // substring match
	OpNotContains = "not_contains" // negated substring match
	OpGT          = "gt"           // greater than / after
	OpGTE         = "gte"          // greater than or equal
	OpLT          = "lt"           // less than / before
	OpLTE         = "lte"          // less than or equal
	OpBetween     = "between"      // inclusive range, value is [low, high]
	OpIn          = "in"           // membership in value list
	OpNotIn       = "not_in"       // negated membership
	OpEmpty       = "is_empty"     // null or empty value
	OpNotEmpty    = "is_not_empty" // present value
)

// Clause combining logic. The chain is flat: each clause's logic joins it to
// the accumulated result of the clauses before it, left to right.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// FilterClause is one condition of a view's flat filter chain.
type FilterClause struct {
	PropertyID string      `json:"propertyId"`
	Operator   string      `json:"operator"`
	Value      interface{} `json:"value,omitempty"`
	Logic      string      `json:"logic,omitempty"`
}

// SortKey orders records by one property.
type SortKey struct {
	PropertyID string `json:"propertyId"`
	Direction  string `json:"direction"` // "asc" or "desc"
}

var comparableOps = []string{OpEQ, OpNEQ, OpGT, OpGTE, OpLT, OpLTE, OpBetween, OpEmpty, OpNotEmpty}
var textOps = []string{OpEQ, OpNEQ, OpContains, OpNotContains, OpEmpty, OpNotEmpty}
var choiceOps = []string{OpEQ, OpNEQ, OpIn, OpNotIn, OpEmpty, OpNotEmpty}

var operatorsByType = map[PropertyType][]string{
	TypeText:           textOps,
	TypeTextarea:       textOps,
	TypeURL:            textOps,
	TypeEmail:          textOps,
	TypePhone:          textOps,
	TypeNumber:         comparableOps,
	TypeDate:           comparableOps,
	TypeCreatedTime:    comparableOps,
	TypeLastEditedTime: comparableOps,
	TypeSelect:         choiceOps,
	TypeMultiSelect:    {OpContains, OpNotContains, OpIn, OpNotIn, OpEmpty, OpNotEmpty},
	TypePerson:         choiceOps,
	TypeCreatedBy:      choiceOps,
	TypeLastEditedBy:   choiceOps,
	TypeCheckbox:       {OpEQ, OpNEQ},
	TypeRelation:       {OpEQ, OpIn, OpNotIn, OpEmpty, OpNotEmpty},
	TypeRollup:         {OpEmpty, OpNotEmpty},
}

// OperatorValidFor reports whether op is legal against a property of the
// given definition. FORMULA properties delegate to their declared return type.
func OperatorValidFor(def PropertyDefinition, op string) bool {
	t := def.Type
	if t == TypeFormula {
		if def.Formula == nil {
			return false
		}
		t = def.Formula.ReturnType
	}
	for _, valid := range operatorsByType[t] {
		if valid == op {
			return true
		}
	}
	return false
}

// ValidateClauses checks a filter chain against a database schema: every
// referenced property must exist, every operator must be legal for its type,
// and SELECT membership filters need a configured option set.
func ValidateClauses(db *Database, clauses []FilterClause) error {
	for i, c := range clauses {
		def, ok := db.Property(c.PropertyID)
		if !ok {
			return apperr.Validation("filter %d references unknown property '%s'", i, c.PropertyID)
		}
		if !OperatorValidFor(def, c.Operator) {
			return apperr.Validation("filter %d: operator '%s' is not valid for %s property '%s'",
				i, c.Operator, def.Type, c.PropertyID)
		}
		if (c.Operator == OpIn || c.Operator == OpNotIn) &&
			(def.Type == TypeSelect || def.Type == TypeMultiSelect) && len(def.Options) == 0 {
			return apperr.Validation("filter %d: property '%s' has no options to match against", i, c.PropertyID)
		}
		if c.Logic != "" && c.Logic != LogicAnd && c.Logic != LogicOr {
			return apperr.Validation("filter %d: unknown logic '%s'", i, c.Logic)
		}
	}
	return nil
}

// ValidateSorts checks every sort key references a known property and a known
// direction.
func ValidateSorts(db *Database, sorts []SortKey) error {
	for i, s := range sorts {
		if _, ok := db.Property(s.PropertyID); !ok {
			return apperr.Validation("sort %d references unknown property '%s'", i, s.PropertyID)
		}
		if s.Direction != "asc" && s.Direction != "desc" {
			return apperr.Validation("sort %d: direction must be 'asc' or 'desc'", i)
		}
	}
	return nil
}
