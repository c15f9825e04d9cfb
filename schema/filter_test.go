package schema_test

import (
	"testing"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/schema"
)

func TestOperatorValidFor(t *testing.T) {
	tt := []struct {
		name string
		def  schema.PropertyDefinition
		op   string
		want bool
	}{
		{"text contains", schema.PropertyDefinition{Type: schema.TypeText}, schema.OpContains, true},
		{"text between", schema.PropertyDefinition{Type: schema.TypeText}, schema.OpBetween, false},
		{"number between", schema.PropertyDefinition{Type: schema.TypeNumber}, schema.OpBetween, true},
		{"number contains", schema.PropertyDefinition{Type: schema.TypeNumber}, schema.OpContains, false},
		{"date gt", schema.PropertyDefinition{Type: schema.TypeDate}, schema.OpGT, true},
		{"select in", schema.PropertyDefinition{Type: schema.TypeSelect}, schema.OpIn, true},
		{"select gt", schema.PropertyDefinition{Type: schema.TypeSelect}, schema.OpGT, false},
		{"multi select contains", schema.PropertyDefinition{Type: schema.TypeMultiSelect}, schema.OpContains, true},
		{"multi select eq", schema.PropertyDefinition{Type: schema.TypeMultiSelect}, schema.OpEQ, false},
		{"checkbox eq", schema.PropertyDefinition{Type: schema.TypeCheckbox}, schema.OpEQ, true},
		{"checkbox empty", schema.PropertyDefinition{Type: schema.TypeCheckbox}, schema.OpEmpty, false},
		{"rollup only emptiness", schema.PropertyDefinition{Type: schema.TypeRollup}, schema.OpNotEmpty, true},
		{"rollup eq", schema.PropertyDefinition{Type: schema.TypeRollup}, schema.OpEQ, false},
		{
			"formula delegates to return type",
			schema.PropertyDefinition{
				Type:    schema.TypeFormula,
				Formula: &schema.FormulaConfig{Expression: "x", ReturnType: schema.TypeNumber},
			},
			schema.OpBetween, true,
		},
		{
			"formula without config",
			schema.PropertyDefinition{Type: schema.TypeFormula},
			schema.OpEQ, false,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := schema.OperatorValidFor(tc.def, tc.op); got != tc.want {
				t.Errorf("OperatorValidFor(%s, %s) = %v, want %v", tc.def.Type, tc.op, got, tc.want)
			}
		})
	}
}

func TestValidateClauses(t *testing.T) {
	db := testDatabase(t)

	tt := []struct {
		name    string
		clauses []schema.FilterClause
		wantErr bool
	}{
		{
			name: "valid chain",
			clauses: []schema.FilterClause{
				{PropertyID: "status", Operator: schema.OpEQ, Value: "todo", Logic: schema.LogicAnd},
				{PropertyID: "title", Operator: schema.OpContains, Value: "x"},
			},
		},
		{
			name:    "unknown property",
			clauses: []schema.FilterClause{{PropertyID: "ghost", Operator: schema.OpEQ}},
			wantErr: true,
		},
		{
			name:    "illegal operator for type",
			clauses: []schema.FilterClause{{PropertyID: "status", Operator: schema.OpGT, Value: "todo"}},
			wantErr: true,
		},
		{
			name:    "unknown logic token",
			clauses: []schema.FilterClause{{PropertyID: "title", Operator: schema.OpNotEmpty, Logic: "XOR"}},
			wantErr: true,
		},
		{
			name:    "empty chain",
			clauses: nil,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := schema.ValidateClauses(db, tc.clauses)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateClauses() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !apperr.IsValidation(err) {
				t.Errorf("expected validation error, got %T", err)
			}
		})
	}
}

func TestValidateSorts(t *testing.T) {
	db := testDatabase(t)

	if err := schema.ValidateSorts(db, []schema.SortKey{{PropertyID: "dueDate", Direction: "desc"}}); err != nil {
		t.Errorf("valid sort rejected: %v", err)
	}
	if err := schema.ValidateSorts(db, []schema.SortKey{{PropertyID: "ghost", Direction: "asc"}}); !apperr.IsValidation(err) {
		t.Errorf("unknown property error = %v, want validation", err)
	}
	if err := schema.ValidateSorts(db, []schema.SortKey{{PropertyID: "title", Direction: "up"}}); !apperr.IsValidation(err) {
		t.Errorf("bad direction error = %v, want validation", err)
	}
}

func TestValidateView(t *testing.T) {
	db := testDatabase(t)

	tt := []struct {
		name    string
		view    schema.View
		wantErr bool
	}{
		{
			name: "valid table view",
			view: schema.View{Name: "Mine", Type: schema.ViewTable, VisibleProperties: []string{"title", "status"}},
		},
		{name: "missing name", view: schema.View{Type: schema.ViewTable}, wantErr: true},
		{name: "unknown type", view: schema.View{Name: "x", Type: "PIVOT"}, wantErr: true},
		{
			name:    "unknown groupBy",
			view:    schema.View{Name: "x", Type: schema.ViewBoard, GroupBy: "ghost"},
			wantErr: true,
		},
		{
			name:    "unknown visible property",
			view:    schema.View{Name: "x", Type: schema.ViewTable, VisibleProperties: []string{"ghost"}},
			wantErr: true,
		},
		{
			name: "config referencing unknown property",
			view: schema.View{
				Name: "x", Type: schema.ViewCalendar,
				Config: &schema.ViewConfig{DateProperty: "ghost"},
			},
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := schema.ValidateView(db, &tc.view)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateView() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
