package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/schema"
)

// ViewStore persists saved views. Semantic rules (system views, default view
// resolution) live in the view engine; this layer is row CRUD only.
type ViewStore struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
	logger *zap.SugaredLogger
}

// NewViewStore creates a view store.
func NewViewStore(db *sql.DB, flavor sqlbuilder.Flavor, logger *zap.SugaredLogger) *ViewStore {
	return &ViewStore{db: db, flavor: flavor, logger: logger}
}

const viewColumns = `id, database_id, name, type, is_default, is_system, filters, sorts,
	group_by, visible_properties, config, permissions, created_at, updated_at`

// Insert writes a new view row.
func (s *ViewStore) Insert(ctx context.Context, v *schema.View, now time.Time) error {
	v.CreatedAt = now
	v.UpdatedAt = now
	filters, sorts, visible, config, perms := marshalViewFields(v)

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("views").
		Cols("id", "database_id", "name", "type", "is_default", "is_system", "filters", "sorts",
			"group_by", "visible_properties", "config", "permissions", "created_at", "updated_at").
		Values(v.ID, v.DatabaseID, v.Name, string(v.Type), boolInt(v.Default), boolInt(v.System),
			filters, sorts, v.GroupBy, visible, config, perms, formatTime(now), formatTime(now))
	query, args := ib.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("view create", err)
	}
	return nil
}

// Get loads one view of a database.
func (s *ViewStore) Get(ctx context.Context, databaseID, viewID string) (*schema.View, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(viewColumns).From("views")
	sb.Where(sb.EQ("database_id", databaseID), sb.EQ("id", viewID))
	query, args := sb.BuildWithFlavor(s.flavor)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("view get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apperr.Internal("view get", err)
		}
		return nil, apperr.NotFound("view", viewID)
	}
	return scanView(rows)
}

// List returns every view of a database in creation order.
func (s *ViewStore) List(ctx context.Context, databaseID string) ([]schema.View, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(viewColumns).From("views")
	sb.Where(sb.EQ("database_id", databaseID))
	sb.OrderBy("created_at ASC", "id ASC")
	query, args := sb.BuildWithFlavor(s.flavor)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("view list", err)
	}
	defer rows.Close()

	var out []schema.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, apperr.Internal("view scan", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("view list", err)
	}
	return out, nil
}

// Update rewrites every mutable column of a view row.
func (s *ViewStore) Update(ctx context.Context, v *schema.View) error {
	v.UpdatedAt = time.Now()
	filters, sorts, visible, config, perms := marshalViewFields(v)

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("views").Set(
		ub.Assign("name", v.Name),
		ub.Assign("type", string(v.Type)),
		ub.Assign("is_default", boolInt(v.Default)),
		ub.Assign("filters", filters),
		ub.Assign("sorts", sorts),
		ub.Assign("group_by", v.GroupBy),
		ub.Assign("visible_properties", visible),
		ub.Assign("config", config),
		ub.Assign("permissions", perms),
		ub.Assign("updated_at", formatTime(v.UpdatedAt)),
	)
	ub.Where(ub.EQ("database_id", v.DatabaseID), ub.EQ("id", v.ID))
	query, args := ub.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("view update", err)
	}
	return nil
}

// ClearDefault unsets the default flag on every view of the database except
// keep. Used to hold the one-default-per-database invariant.
func (s *ViewStore) ClearDefault(ctx context.Context, databaseID, keep string) error {
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("views").Set(ub.Assign("is_default", 0))
	ub.Where(ub.EQ("database_id", databaseID), ub.NE("id", keep))
	query, args := ub.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("view update", err)
	}
	return nil
}

// Delete removes a view row.
func (s *ViewStore) Delete(ctx context.Context, databaseID, viewID string) error {
	del := sqlbuilder.NewDeleteBuilder()
	del.DeleteFrom("views")
	del.Where(del.EQ("database_id", databaseID), del.EQ("id", viewID))
	query, args := del.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("view delete", err)
	}
	return nil
}

func marshalViewFields(v *schema.View) (filters, sorts, visible, config, perms string) {
	f, _ := json.Marshal(emptySlice(v.Filters))
	s, _ := json.Marshal(emptySlice(v.Sorts))
	vis, _ := json.Marshal(emptySlice(v.VisibleProperties))
	p, _ := json.Marshal(emptySlice(v.Permissions))
	c := ""
	if v.Config != nil {
		raw, _ := json.Marshal(v.Config)
		c = string(raw)
	}
	return string(f), string(s), string(vis), c, string(p)
}

func scanView(rows *sql.Rows) (*schema.View, error) {
	var v schema.View
	var typ, filters, sorts, visible string
	var isDefault, isSystem int
	var groupBy, config sql.NullString
	var perms string
	var createdAt, updatedAt string

	err := rows.Scan(&v.ID, &v.DatabaseID, &v.Name, &typ, &isDefault, &isSystem, &filters, &sorts,
		&groupBy, &visible, &config, &perms, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.Type = schema.ViewType(typ)
	v.Default = isDefault != 0
	v.System = isSystem != 0
	v.GroupBy = groupBy.String
	if err := json.Unmarshal([]byte(filters), &v.Filters); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sorts), &v.Sorts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(visible), &v.VisibleProperties); err != nil {
		return nil, err
	}
	if config.Valid && config.String != "" {
		v.Config = &schema.ViewConfig{}
		if err := json.Unmarshal([]byte(config.String), v.Config); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(perms), &v.Permissions); err != nil {
		return nil, err
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
