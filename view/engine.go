// Package view manages saved views and resolves which view applies to a
// listing request.
package view

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/builder"
	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/store"
)

// Engine enforces view-level invariants on top of the view store: a single
// default view per database, undeletable system views, and property-reference
// validation on every mutation.
type Engine struct {
	views     *store.ViewStore
	databases *store.DatabaseStore
	records   *store.RecordStore
	logger    *zap.SugaredLogger
}

// NewEngine creates a view engine.
func NewEngine(views *store.ViewStore, databases *store.DatabaseStore, records *store.RecordStore, logger *zap.SugaredLogger) *Engine {
	return &Engine{views: views, databases: databases, records: records, logger: logger}
}

// Create validates and persists a new view. Flagging it default demotes the
// previous default.
func (e *Engine) Create(ctx context.Context, databaseID string, v schema.View) (*schema.View, error) {
	db, err := e.databases.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	v.ID = uuid.NewString()
	v.DatabaseID = databaseID
	v.System = false
	if err := schema.ValidateView(db, &v); err != nil {
		return nil, err
	}
	if err := e.views.Insert(ctx, &v, time.Now()); err != nil {
		return nil, err
	}
	if v.Default {
		if err := e.views.ClearDefault(ctx, databaseID, v.ID); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// Get loads one view.
func (e *Engine) Get(ctx context.Context, databaseID, viewID string) (*schema.View, error) {
	return e.views.Get(ctx, databaseID, viewID)
}

// List returns all views of a database.
func (e *Engine) List(ctx context.Context, databaseID string) ([]schema.View, error) {
	return e.views.List(ctx, databaseID)
}

// Update applies changes to a view. System views keep their name, type and
// system flag; only filters, sorts, grouping, visible properties, config and
// permissions may change on them.
func (e *Engine) Update(ctx context.Context, databaseID, viewID string, updated schema.View) (*schema.View, error) {
	db, err := e.databases.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	current, err := e.views.Get(ctx, databaseID, viewID)
	if err != nil {
		return nil, err
	}

	if current.System {
		updated.Name = current.Name
		updated.Type = current.Type
	}
	updated.ID = current.ID
	updated.DatabaseID = current.DatabaseID
	updated.System = current.System
	updated.CreatedAt = current.CreatedAt

	if err := schema.ValidateView(db, &updated); err != nil {
		return nil, err
	}
	if err := e.views.Update(ctx, &updated); err != nil {
		return nil, err
	}
	if updated.Default && !current.Default {
		if err := e.views.ClearDefault(ctx, databaseID, updated.ID); err != nil {
			return nil, err
		}
	}
	return &updated, nil
}

// Delete removes a view. System views cannot be deleted.
func (e *Engine) Delete(ctx context.Context, databaseID, viewID string) error {
	v, err := e.views.Get(ctx, databaseID, viewID)
	if err != nil {
		return err
	}
	if v.System {
		return apperr.Forbidden("view '%s' is a system view and cannot be deleted", viewID)
	}
	return e.views.Delete(ctx, databaseID, viewID)
}

// GetDefault returns the view flagged default, falling back to the first view
// when none is flagged. The fallback is deliberate: a database freshly
// stripped of its default flag still resolves to a usable view.
func (e *Engine) GetDefault(ctx context.Context, databaseID string) (*schema.View, error) {
	views, err := e.views.List(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, apperr.NotFound("default view", databaseID)
	}
	for i := range views {
		if views[i].Default {
			return &views[i], nil
		}
	}
	return &views[0], nil
}

// Duplicate clones a view under a fresh id with "Copy of" prefixed to the
// name and the default/system flags cleared.
func (e *Engine) Duplicate(ctx context.Context, databaseID, viewID string) (*schema.View, error) {
	src, err := e.views.Get(ctx, databaseID, viewID)
	if err != nil {
		return nil, err
	}
	dup := *src
	dup.ID = uuid.NewString()
	dup.Name = "Copy of " + src.Name
	dup.Default = false
	dup.System = false
	dup.Filters = append([]schema.FilterClause(nil), src.Filters...)
	dup.Sorts = append([]schema.SortKey(nil), src.Sorts...)
	dup.VisibleProperties = append([]string(nil), src.VisibleProperties...)
	dup.Permissions = append([]schema.ViewPermission(nil), src.Permissions...)
	if src.Config != nil {
		c := *src.Config
		dup.Config = &c
	}
	if err := e.views.Insert(ctx, &dup, time.Now()); err != nil {
		return nil, err
	}
	return &dup, nil
}

// UpdateFilters replaces a view's filter chain after validating every
// referenced property and operator against the schema.
func (e *Engine) UpdateFilters(ctx context.Context, databaseID, viewID string, filters []schema.FilterClause) (*schema.View, error) {
	return e.patch(ctx, databaseID, viewID, func(db *schema.Database, v *schema.View) error {
		if err := schema.ValidateClauses(db, filters); err != nil {
			return err
		}
		v.Filters = filters
		return nil
	})
}

// UpdateSorts replaces a view's sort keys.
func (e *Engine) UpdateSorts(ctx context.Context, databaseID, viewID string, sorts []schema.SortKey) (*schema.View, error) {
	return e.patch(ctx, databaseID, viewID, func(db *schema.Database, v *schema.View) error {
		if err := schema.ValidateSorts(db, sorts); err != nil {
			return err
		}
		v.Sorts = sorts
		return nil
	})
}

// UpdateVisibleProperties replaces the visible column set.
func (e *Engine) UpdateVisibleProperties(ctx context.Context, databaseID, viewID string, visible []string) (*schema.View, error) {
	return e.patch(ctx, databaseID, viewID, func(db *schema.Database, v *schema.View) error {
		for _, id := range visible {
			if _, ok := db.Property(id); !ok {
				return apperr.Validation("visibleProperties references unknown property '%s'", id)
			}
		}
		v.VisibleProperties = visible
		return nil
	})
}

func (e *Engine) patch(ctx context.Context, databaseID, viewID string, apply func(*schema.Database, *schema.View) error) (*schema.View, error) {
	db, err := e.databases.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	v, err := e.views.Get(ctx, databaseID, viewID)
	if err != nil {
		return nil, err
	}
	if err := apply(db, v); err != nil {
		return nil, err
	}
	if err := e.views.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListRecords composes a view's stored filters and sorts with the caller's
// pagination and delegates to the record store. Explicit filters or sorts in
// opts take precedence over the view's.
func (e *Engine) ListRecords(ctx context.Context, db *schema.Database, viewID string, opts builder.ListOptions) ([]schema.Record, int64, error) {
	v, err := e.views.Get(ctx, db.ID, viewID)
	if err != nil {
		return nil, 0, err
	}
	if len(opts.Filters) == 0 {
		opts.Filters = v.Filters
	}
	if len(opts.Sorts) == 0 {
		opts.Sorts = v.Sorts
	}
	return e.records.List(ctx, db, opts)
}
