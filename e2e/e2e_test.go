package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/perm"
	"github.com/xcono/gridbase/schema"
)

func sqliteSuite(t *testing.T) *TestSuite {
	t.Helper()
	dsn := "sqlite3://" + filepath.Join(t.TempDir(), "gridbase.db")
	return NewTestSuite(t, dsn)
}

func filterQuery(t *testing.T, clauses []schema.FilterClause) string {
	t.Helper()
	raw, err := json.Marshal(clauses)
	if err != nil {
		t.Fatalf("failed to marshal filters: %v", err)
	}
	return "filters=" + url.QueryEscape(string(raw))
}

func TestRecordLifecycle(t *testing.T) {
	s := sqliteSuite(t)

	// first touch provisions the template database
	id := s.CreateRecord("tasks", map[string]interface{}{
		"title":  "write report",
		"status": "todo",
	})

	env := s.MustDo(http.MethodGet, "/tasks/"+id, nil, http.StatusOK)
	var rec schema.Record
	s.Decode(env, &rec)
	if rec.Properties["title"] != "write report" {
		t.Errorf("got title %v, want 'write report'", rec.Properties["title"])
	}
	if rec.Version != 1 {
		t.Errorf("new record has version %d, want 1", rec.Version)
	}
	if rec.OrderNum != 1 {
		t.Errorf("first record has order_num %d, want 1", rec.OrderNum)
	}

	// partial update merges and bumps the version
	env = s.MustDo(http.MethodPut, "/tasks/"+id, map[string]interface{}{"status": "done"}, http.StatusOK)
	s.Decode(env, &rec)
	if rec.Properties["status"] != "done" {
		t.Errorf("got status %v, want 'done'", rec.Properties["status"])
	}
	if rec.Properties["title"] != "write report" {
		t.Errorf("update dropped untouched property: %v", rec.Properties)
	}
	if rec.Version != 2 {
		t.Errorf("updated record has version %d, want 2", rec.Version)
	}

	// duplicate copies properties into a fresh record
	env = s.MustDo(http.MethodPost, "/tasks/"+id+"/duplicate", nil, http.StatusCreated)
	var dup schema.Record
	s.Decode(env, &dup)
	if dup.ID == id {
		t.Error("duplicate reused the source id")
	}
	if dup.Properties["title"] != "write report" {
		t.Errorf("duplicate lost properties: %v", dup.Properties)
	}

	// soft delete hides the record from listings
	s.MustDo(http.MethodDelete, "/tasks/"+id, nil, http.StatusOK)
	status, _ := s.Do(http.MethodGet, "/tasks/"+id, nil)
	if status != http.StatusNotFound {
		t.Errorf("soft-deleted record GET returned %d, want 404", status)
	}

	env = s.MustDo(http.MethodGet, ListPath("tasks", "includeDeleted=true"), nil, http.StatusOK)
	var records []schema.Record
	s.Decode(env, &records)
	if len(records) != 2 {
		t.Fatalf("includeDeleted listing has %d records, want 2", len(records))
	}

	// permanent delete purges the row
	s.MustDo(http.MethodDelete, "/tasks/"+id+"?permanent=true", nil, http.StatusOK)
	env = s.MustDo(http.MethodGet, ListPath("tasks", "includeDeleted=true"), nil, http.StatusOK)
	s.Decode(env, &records)
	if len(records) != 1 {
		t.Fatalf("listing after purge has %d records, want 1", len(records))
	}
}

func TestRequiredPropertyEnforced(t *testing.T) {
	s := sqliteSuite(t)

	status, env := s.Do(http.MethodPost, "/tasks", map[string]interface{}{"status": "todo"})
	if status != http.StatusBadRequest {
		t.Fatalf("create without title returned %d, want 400", status)
	}
	if _, ok := env.Errors["title"]; !ok {
		t.Errorf("missing field error for 'title', got %v", env.Errors)
	}
}

func TestFilteringSortingAndSearch(t *testing.T) {
	s := sqliteSuite(t)

	seed := []map[string]interface{}{
		{"title": "alpha", "status": "todo", "priority": "high"},
		{"title": "bravo", "status": "in_progress", "priority": "low"},
		{"title": "charlie", "status": "done", "priority": "high"},
		{"title": "delta", "status": "done", "priority": "low"},
	}
	for _, props := range seed {
		s.CreateRecord("tasks", props)
	}

	titles := func(env envelope) []string {
		var records []schema.Record
		s.Decode(env, &records)
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.Properties["title"].(string))
		}
		return out
	}

	// single equality filter
	env := s.MustDo(http.MethodGet, ListPath("tasks", filterQuery(t, []schema.FilterClause{
		{PropertyID: "status", Operator: schema.OpEQ, Value: "done"},
	})), nil, http.StatusOK)
	if got := titles(env); len(got) != 2 {
		t.Errorf("status=done matched %v, want 2 records", got)
	}

	// left-fold: (status=done AND priority=high) OR status=todo
	env = s.MustDo(http.MethodGet, ListPath("tasks", filterQuery(t, []schema.FilterClause{
		{PropertyID: "status", Operator: schema.OpEQ, Value: "done", Logic: schema.LogicAnd},
		{PropertyID: "priority", Operator: schema.OpEQ, Value: "high", Logic: schema.LogicOr},
		{PropertyID: "status", Operator: schema.OpEQ, Value: "todo"},
	})), nil, http.StatusOK)
	got := titles(env)
	if len(got) != 2 {
		t.Fatalf("folded filter matched %v, want [alpha charlie]", got)
	}

	// sort by title descending
	env = s.MustDo(http.MethodGet, ListPath("tasks", "sort=title.desc"), nil, http.StatusOK)
	got = titles(env)
	if got[0] != "delta" || got[len(got)-1] != "alpha" {
		t.Errorf("descending sort gave %v", got)
	}

	// free text search over TEXT-like properties
	env = s.MustDo(http.MethodGet, ListPath("tasks", "search=brav"), nil, http.StatusOK)
	if got = titles(env); len(got) != 1 || got[0] != "bravo" {
		t.Errorf("search gave %v, want [bravo]", got)
	}

	// pagination metadata
	env = s.MustDo(http.MethodGet, ListPath("tasks", "page=1&limit=3"), nil, http.StatusOK)
	if env.Pagination == nil {
		t.Fatal("list response has no pagination")
	}
	if env.Pagination.Total != 4 || !env.Pagination.HasNext || env.Pagination.HasPrev {
		t.Errorf("unexpected pagination %+v", *env.Pagination)
	}
}

func TestViewLifecycle(t *testing.T) {
	s := sqliteSuite(t)
	s.CreateRecord("tasks", map[string]interface{}{"title": "a", "status": "todo"})
	s.CreateRecord("tasks", map[string]interface{}{"title": "b", "status": "done"})

	// templates seed the system views
	env := s.MustDo(http.MethodGet, "/tasks/views", nil, http.StatusOK)
	var views []schema.View
	s.Decode(env, &views)
	if len(views) != 2 {
		t.Fatalf("template seeded %d views, want 2", len(views))
	}

	// a filtered view
	env = s.MustDo(http.MethodPost, "/tasks/views", schema.View{
		Name: "Done only",
		Type: schema.ViewTable,
		Filters: []schema.FilterClause{
			{PropertyID: "status", Operator: schema.OpEQ, Value: "done"},
		},
	}, http.StatusCreated)
	var created schema.View
	s.Decode(env, &created)

	env = s.MustDo(http.MethodGet, ListPath("tasks", "view="+created.ID), nil, http.StatusOK)
	var records []schema.Record
	s.Decode(env, &records)
	if len(records) != 1 || records[0].Properties["title"] != "b" {
		t.Errorf("view listing gave %d records, want just 'b'", len(records))
	}

	// patch only the filters
	env = s.MustDo(http.MethodPut, "/tasks/views/"+created.ID, map[string]interface{}{
		"filters": []schema.FilterClause{
			{PropertyID: "status", Operator: schema.OpEQ, Value: "todo"},
		},
	}, http.StatusOK)
	var patched schema.View
	s.Decode(env, &patched)
	if patched.Name != "Done only" {
		t.Errorf("filter patch changed the name to %q", patched.Name)
	}
	if len(patched.Filters) != 1 || patched.Filters[0].Value != "todo" {
		t.Errorf("filter patch not applied: %v", patched.Filters)
	}

	// saving an illegal operator for the property type is rejected
	status, _ := s.Do(http.MethodPut, "/tasks/views/"+created.ID, map[string]interface{}{
		"filters": []schema.FilterClause{
			{PropertyID: "status", Operator: schema.OpGT, Value: "todo"},
		},
	})
	if status != http.StatusBadRequest {
		t.Errorf("illegal operator save returned %d, want 400", status)
	}

	// duplicate clears the system and default flags
	env = s.MustDo(http.MethodPost, "/tasks/views/all/duplicate", nil, http.StatusCreated)
	var dup schema.View
	s.Decode(env, &dup)
	if dup.System || dup.Default {
		t.Errorf("duplicated view kept protected flags: %+v", dup)
	}
	if dup.Name != "Copy of All Tasks" {
		t.Errorf("duplicated view name %q", dup.Name)
	}

	// system views cannot be deleted
	status, _ = s.Do(http.MethodDelete, "/tasks/views/all", nil)
	if status != http.StatusForbidden {
		t.Errorf("system view delete returned %d, want 403", status)
	}

	// "default" resolves the default view
	env = s.MustDo(http.MethodGet, "/tasks/views/default", nil, http.StatusOK)
	var def schema.View
	s.Decode(env, &def)
	if def.ID != "all" {
		t.Errorf("default view resolved to %q, want 'all'", def.ID)
	}
}

func TestPropertyManagement(t *testing.T) {
	s := sqliteSuite(t)
	s.CreateRecord("tasks", map[string]interface{}{"title": "a"})

	// add a property at a position
	env := s.MustDo(http.MethodPost, "/tasks/properties", map[string]interface{}{
		"id":       "estimate",
		"name":     "Estimate",
		"type":     schema.TypeNumber,
		"position": 2,
	}, http.StatusCreated)
	var props []schema.PropertyDefinition
	s.Decode(env, &props)
	if props[2].ID != "estimate" {
		t.Errorf("property at position 2 is %q, want 'estimate'", props[2].ID)
	}

	// frozen properties cannot be deleted
	status, _ := s.Do(http.MethodDelete, "/tasks/properties/title", nil)
	if status != http.StatusForbidden {
		t.Errorf("frozen property delete returned %d, want 403", status)
	}

	// deleting a property referenced by a view strips the reference
	s.MustDo(http.MethodPut, "/tasks/views/all", map[string]interface{}{
		"sorts": []schema.SortKey{{PropertyID: "estimate", Direction: "desc"}},
	}, http.StatusOK)
	s.MustDo(http.MethodDelete, "/tasks/properties/estimate", nil, http.StatusOK)

	env = s.MustDo(http.MethodGet, "/tasks/views/all", nil, http.StatusOK)
	var v schema.View
	s.Decode(env, &v)
	if len(v.Sorts) != 0 {
		t.Errorf("deleted property still referenced by sorts: %v", v.Sorts)
	}

	// values against the removed property are rejected
	status, _ = s.Do(http.MethodPost, "/tasks", map[string]interface{}{"title": "b", "estimate": 3})
	if status != http.StatusBadRequest {
		t.Errorf("create with removed property returned %d, want 400", status)
	}
}

func TestBulkOperations(t *testing.T) {
	s := sqliteSuite(t)

	ids := make([]string, 0, 3)
	for _, title := range []string{"a", "b", "c"} {
		ids = append(ids, s.CreateRecord("tasks", map[string]interface{}{"title": title, "status": "todo"}))
	}

	// one unknown id: the rest still succeed and the count excludes it
	payload := map[string]interface{}{
		"recordIds": append(append([]string{}, ids...), "nope"),
		"data":      map[string]interface{}{"status": "done"},
	}
	env := s.MustDo(http.MethodPut, "/tasks/bulk", payload, http.StatusOK)
	var result struct {
		ModifiedCount int `json:"modifiedCount"`
		Results       []struct {
			ID      string `json:"id"`
			Success bool   `json:"success"`
			Error   string `json:"error"`
		} `json:"results"`
	}
	s.Decode(env, &result)
	if result.ModifiedCount != 3 {
		t.Errorf("modifiedCount = %d, want 3", result.ModifiedCount)
	}
	if len(result.Results) != 4 {
		t.Fatalf("got %d results, want 4", len(result.Results))
	}
	last := result.Results[3]
	if last.ID != "nope" || last.Success || last.Error == "" {
		t.Errorf("unknown id result %+v", last)
	}

	// bulk soft delete
	env = s.MustDo(http.MethodDelete, "/tasks/bulk", map[string]interface{}{"recordIds": ids[:2]}, http.StatusOK)
	var deleted struct {
		AffectedCount int `json:"affectedCount"`
	}
	s.Decode(env, &deleted)
	if deleted.AffectedCount != 2 {
		t.Errorf("affectedCount = %d, want 2", deleted.AffectedCount)
	}

	env = s.MustDo(http.MethodGet, "/tasks", nil, http.StatusOK)
	var records []schema.Record
	s.Decode(env, &records)
	if len(records) != 1 {
		t.Errorf("listing after bulk delete has %d records, want 1", len(records))
	}
}

func TestTemplateProvisioningIsPerDatabase(t *testing.T) {
	s := sqliteSuite(t)

	// two entity types in one workspace share the template view ids
	s.CreateRecord("tasks", map[string]interface{}{"title": "a"})
	s.CreateRecord("goals", map[string]interface{}{"title": "g"})

	env := s.MustDo(http.MethodGet, "/goals/views/all", nil, http.StatusOK)
	var v schema.View
	s.Decode(env, &v)
	if v.Name != "All Goals" {
		t.Errorf("goals 'all' view is %q, want 'All Goals'", v.Name)
	}

	// a second workspace provisions its own copy of the same templates
	other := *s
	other.Workspace = "ws-two"
	other.MustDo(http.MethodGet, "/tasks", nil, http.StatusOK)
	env = other.MustDo(http.MethodGet, "/tasks/views", nil, http.StatusOK)
	var views []schema.View
	other.Decode(env, &views)
	if len(views) != 2 {
		t.Fatalf("second workspace seeded %d views, want 2", len(views))
	}
}

func TestProvisioningRequiresOperationAccess(t *testing.T) {
	s := sqliteSuite(t)

	// pin the actor to read-only at workspace scope before any database exists
	ctx := context.Background()
	if err := s.svc.Gate.Allow(ctx, perm.ScopeWorkspace, s.Workspace, s.Actor, perm.LevelRead); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	status, _ := s.Do(http.MethodPost, "/tasks", map[string]interface{}{"title": "a"})
	if status != http.StatusForbidden {
		t.Fatalf("create with read-only workspace grant returned %d, want 403", status)
	}
	// the rejected call must not have provisioned anything
	if _, err := s.svc.Databases.GetByEntity(ctx, s.Workspace, "tasks"); !apperr.IsNotFound(err) {
		t.Errorf("rejected caller still provisioned the database: %v", err)
	}

	// reading is still allowed and provisions as usual
	s.MustDo(http.MethodGet, "/tasks", nil, http.StatusOK)
}

func TestPermissionGrants(t *testing.T) {
	s := sqliteSuite(t)
	id := s.CreateRecord("tasks", map[string]interface{}{"title": "a"})

	env := s.MustDo(http.MethodGet, "/tasks/"+id, nil, http.StatusOK)
	var rec schema.Record
	s.Decode(env, &rec)

	// an explicit read-only grant downgrades the workspace-member default
	ctx := context.Background()
	if err := s.svc.Gate.Allow(ctx, perm.ScopeDatabase, rec.DatabaseID, s.Actor, perm.LevelRead); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	s.MustDo(http.MethodGet, "/tasks/"+id, nil, http.StatusOK)
	status, _ := s.Do(http.MethodPut, "/tasks/"+id, map[string]interface{}{"title": "b"})
	if status != http.StatusForbidden {
		t.Errorf("write with read-only grant returned %d, want 403", status)
	}

	if err := s.svc.Gate.Allow(ctx, perm.ScopeDatabase, rec.DatabaseID, s.Actor, perm.LevelEdit); err != nil {
		t.Fatalf("grant upgrade failed: %v", err)
	}
	s.MustDo(http.MethodPut, "/tasks/"+id, map[string]interface{}{"title": "b"}, http.StatusOK)

	// a caller from another workspace gets its own database, not this one
	other := *s
	other.Workspace = "ws-other"
	other.Actor = "actor-other"
	env = other.MustDo(http.MethodGet, "/tasks", nil, http.StatusOK)
	var records []schema.Record
	other.Decode(env, &records)
	if len(records) != 0 {
		t.Errorf("foreign workspace sees %d records, want 0", len(records))
	}
}

func TestEntityConfig(t *testing.T) {
	s := sqliteSuite(t)

	env := s.MustDo(http.MethodGet, "/books/config", nil, http.StatusOK)
	var tpl schema.Template
	s.Decode(env, &tpl)
	if tpl.EntityType != "books" || len(tpl.Properties) == 0 {
		t.Errorf("unexpected template %+v", tpl)
	}

	env = s.MustDo(http.MethodGet, "/books/frozen-config", nil, http.StatusOK)
	var frozen struct {
		RequiredProperties []string `json:"requiredProperties"`
		FrozenProperties   []string `json:"frozenProperties"`
	}
	s.Decode(env, &frozen)
	if len(frozen.FrozenProperties) == 0 {
		t.Error("frozen-config has no frozen properties")
	}

	status, _ := s.Do(http.MethodGet, "/starships/config", nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown entity config returned %d, want 404", status)
	}
}
