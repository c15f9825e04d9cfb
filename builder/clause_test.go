package builder_test

import (
	"strings"
	"testing"

	"github.com/huandu/go-sqlbuilder"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/builder"
	"github.com/xcono/gridbase/schema"
)

func testDatabase() *schema.Database {
	return &schema.Database{
		ID: "db-1",
		Properties: []schema.PropertyDefinition{
			{ID: "title", Name: "Title", Type: schema.TypeText},
			{ID: "notes", Name: "Notes", Type: schema.TypeTextarea},
			{ID: "status", Name: "Status", Type: schema.TypeSelect,
				Options: []schema.SelectOption{{ID: "todo", Name: "todo"}, {ID: "done", Name: "done"}}},
			{ID: "tags", Name: "Tags", Type: schema.TypeMultiSelect,
				Options: []schema.SelectOption{{ID: "home", Name: "home"}, {ID: "work", Name: "work"}}},
			{ID: "score", Name: "Score", Type: schema.TypeNumber},
			{ID: "due", Name: "Due", Type: schema.TypeDate},
		},
	}
}

// buildWhere compiles the clauses onto a fresh SELECT and returns the built
// SQL and its arguments.
func buildWhere(t *testing.T, clauses []schema.FilterClause) (string, []interface{}) {
	t.Helper()
	eval := builder.NewEvaluator(sqlbuilder.SQLite)
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id").From("records")
	expr, err := eval.Compile(testDatabase(), clauses, sb)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if expr != "" {
		sb.Where(expr)
	}
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	return query, args
}

func TestCompileFoldOrder(t *testing.T) {
	// [{A AND} {B OR} {C}] must compile to ((A AND B) OR C)
	query, args := buildWhere(t, []schema.FilterClause{
		{PropertyID: "status", Operator: schema.OpEQ, Value: "done", Logic: schema.LogicAnd},
		{PropertyID: "score", Operator: schema.OpGT, Value: 5, Logic: schema.LogicOr},
		{PropertyID: "status", Operator: schema.OpEQ, Value: "todo"},
	})

	want := `((json_extract(properties, '$."status"') = ? AND json_extract(properties, '$."score"') > ?) OR json_extract(properties, '$."status"') = ?)`
	if !strings.Contains(query, want) {
		t.Errorf("query %q\nmissing folded expression %q", query, want)
	}
	if len(args) != 3 || args[0] != "done" || args[2] != "todo" {
		t.Errorf("args = %v", args)
	}
}

func TestCompileDefaultsToAnd(t *testing.T) {
	query, _ := buildWhere(t, []schema.FilterClause{
		{PropertyID: "status", Operator: schema.OpEQ, Value: "todo"}, // no logic
		{PropertyID: "score", Operator: schema.OpGTE, Value: 1},
	})
	if !strings.Contains(query, " AND ") || strings.Contains(query, " OR ") {
		t.Errorf("missing implicit AND join: %q", query)
	}
}

func TestCompileOperators(t *testing.T) {
	tt := []struct {
		name   string
		clause schema.FilterClause
		want   string
	}{
		{
			name:   "contains wraps in wildcards",
			clause: schema.FilterClause{PropertyID: "title", Operator: schema.OpContains, Value: "rep"},
			want:   `json_extract(properties, '$."title"') LIKE ?`,
		},
		{
			name:   "not contains admits null",
			clause: schema.FilterClause{PropertyID: "title", Operator: schema.OpNotContains, Value: "rep"},
			want:   `(json_extract(properties, '$."title"') IS NULL OR json_extract(properties, '$."title"') NOT LIKE ?)`,
		},
		{
			name:   "between",
			clause: schema.FilterClause{PropertyID: "score", Operator: schema.OpBetween, Value: []interface{}{1, 10}},
			want:   `json_extract(properties, '$."score"') BETWEEN ? AND ?`,
		},
		{
			name:   "select membership",
			clause: schema.FilterClause{PropertyID: "status", Operator: schema.OpIn, Value: []interface{}{"todo", "done"}},
			want:   `json_extract(properties, '$."status"') IN (?, ?)`,
		},
		{
			name:   "is empty matches null and blank",
			clause: schema.FilterClause{PropertyID: "title", Operator: schema.OpEmpty},
			want:   `(json_extract(properties, '$."title"') IS NULL OR json_extract(properties, '$."title"') = ?)`,
		},
		{
			name:   "is not empty",
			clause: schema.FilterClause{PropertyID: "title", Operator: schema.OpNotEmpty},
			want:   `(json_extract(properties, '$."title"') IS NOT NULL AND json_extract(properties, '$."title"') <> ?)`,
		},
		{
			name:   "multi select contains quotes the option",
			clause: schema.FilterClause{PropertyID: "tags", Operator: schema.OpContains, Value: "home"},
			want:   `json_extract(properties, '$."tags"') LIKE ?`,
		},
		{
			name:   "multi select in is an or chain",
			clause: schema.FilterClause{PropertyID: "tags", Operator: schema.OpIn, Value: []interface{}{"home", "work"}},
			want:   `(json_extract(properties, '$."tags"') LIKE ? OR json_extract(properties, '$."tags"') LIKE ?)`,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			query, _ := buildWhere(t, []schema.FilterClause{tc.clause})
			if !strings.Contains(query, tc.want) {
				t.Errorf("query %q\nmissing %q", query, tc.want)
			}
		})
	}
}

func TestCompileMultiSelectContainsArg(t *testing.T) {
	_, args := buildWhere(t, []schema.FilterClause{
		{PropertyID: "tags", Operator: schema.OpContains, Value: "home"},
	})
	if len(args) != 1 || args[0] != `%"home"%` {
		t.Errorf("args = %v, want the json-quoted pattern", args)
	}
}

func TestCompileRejections(t *testing.T) {
	eval := builder.NewEvaluator(sqlbuilder.SQLite)
	db := testDatabase()

	tt := []struct {
		name   string
		clause schema.FilterClause
	}{
		{"unknown property", schema.FilterClause{PropertyID: "ghost", Operator: schema.OpEQ, Value: "x"}},
		{"illegal operator", schema.FilterClause{PropertyID: "score", Operator: schema.OpContains, Value: "x"}},
		{"between without pair", schema.FilterClause{PropertyID: "score", Operator: schema.OpBetween, Value: 5}},
		{"in without array", schema.FilterClause{PropertyID: "status", Operator: schema.OpIn, Value: "todo"}},
		{"in with empty array", schema.FilterClause{PropertyID: "status", Operator: schema.OpIn, Value: []interface{}{}}},
		{"contains with non-string", schema.FilterClause{PropertyID: "title", Operator: schema.OpContains, Value: 5}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			sb := sqlbuilder.NewSelectBuilder()
			sb.Select("id").From("records")
			if _, err := eval.Compile(db, []schema.FilterClause{tc.clause}, sb); !apperr.IsValidation(err) {
				t.Errorf("error = %v, want validation", err)
			}
		})
	}
}

func TestPropertyPathFlavors(t *testing.T) {
	if got := builder.NewEvaluator(sqlbuilder.SQLite).PropertyPath("due"); got != `json_extract(properties, '$."due"')` {
		t.Errorf("sqlite path = %q", got)
	}
	if got := builder.NewEvaluator(sqlbuilder.MySQL).PropertyPath("due"); got != `json_extract(properties, '$."due"')` {
		t.Errorf("mysql path = %q", got)
	}
	if got := builder.NewEvaluator(sqlbuilder.PostgreSQL).PropertyPath("due"); got != `(properties ->> 'due')` {
		t.Errorf("postgres path = %q", got)
	}
}

func TestCompileSort(t *testing.T) {
	eval := builder.NewEvaluator(sqlbuilder.SQLite)
	db := testDatabase()

	order, err := eval.CompileSort(db, []schema.SortKey{
		{PropertyID: "due", Direction: "desc"},
		{PropertyID: "title", Direction: "asc"},
	})
	if err != nil {
		t.Fatalf("CompileSort: %v", err)
	}
	want := []string{
		`json_extract(properties, '$."due"') DESC`,
		`json_extract(properties, '$."title"') ASC`,
		"order_num ASC",
		"created_at ASC",
	}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}

	// no sort keys still yields the deterministic tie-breakers
	order, err = eval.CompileSort(db, nil)
	if err != nil {
		t.Fatalf("CompileSort: %v", err)
	}
	if len(order) != 2 || order[0] != "order_num ASC" || order[1] != "created_at ASC" {
		t.Errorf("default order = %v", order)
	}

	if _, err := eval.CompileSort(db, []schema.SortKey{{PropertyID: "ghost", Direction: "asc"}}); !apperr.IsValidation(err) {
		t.Errorf("unknown property error = %v, want validation", err)
	}
}

func TestSearchCondition(t *testing.T) {
	eval := builder.NewEvaluator(sqlbuilder.SQLite)
	db := testDatabase()

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id").From("records")
	cond := eval.SearchCondition(db, "rep", sb)
	if cond == "" {
		t.Fatal("no search condition built")
	}
	sb.Where(cond)
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	// only the two TEXT-like properties participate
	if got := strings.Count(query, "LIKE ?"); got != 2 {
		t.Errorf("search spans %d properties, want 2: %q", got, query)
	}
	for _, a := range args {
		if a != "%rep%" {
			t.Errorf("arg = %v, want wildcard pattern", a)
		}
	}

	if cond := eval.SearchCondition(db, "", sb); cond != "" {
		t.Errorf("empty term built %q", cond)
	}

	noText := &schema.Database{Properties: []schema.PropertyDefinition{{ID: "n", Type: schema.TypeNumber}}}
	if cond := eval.SearchCondition(noText, "x", sb); cond != "" {
		t.Errorf("schema without text properties built %q", cond)
	}
}
