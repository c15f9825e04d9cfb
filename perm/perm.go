// Package perm is the permission gate in front of the record store and view
// engine. Every inbound operation is checked here before any storage call, so
// a rejected caller never observes partial state.
package perm

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/xcono/gridbase/apperr"
)

// Level is a granted or required access level.
type Level string

const (
	LevelRead       Level = "read"
	LevelEdit       Level = "edit"
	LevelFullAccess Level = "full_access"
)

var levelRank = map[Level]int{
	LevelRead:       1,
	LevelEdit:       2,
	LevelFullAccess: 3,
}

// Covers reports whether a granted level satisfies a required one.
func (l Level) Covers(required Level) bool {
	return levelRank[l] >= levelRank[required]
}

// Scope is the granularity a grant attaches to.
type Scope string

const (
	ScopeWorkspace Scope = "workspace"
	ScopeDatabase  Scope = "database"
	ScopeRecord    Scope = "record"
)

// Ref identifies the resource being checked together with its enclosing
// scopes, so the check can fall back outward.
type Ref struct {
	RecordID    string
	DatabaseID  string
	WorkspaceID string
}

// Grant gives a subject a level on one resource.
type Grant struct {
	ID         string `json:"id"`
	Scope      Scope  `json:"scope"`
	ResourceID string `json:"resourceId"`
	SubjectID  string `json:"subjectId"`
	Level      Level  `json:"level"`
}

// Gate resolves grants against the grants table.
type Gate struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
	logger *zap.SugaredLogger
}

// NewGate creates a permission gate.
func NewGate(db *sql.DB, flavor sqlbuilder.Flavor, logger *zap.SugaredLogger) *Gate {
	return &Gate{db: db, flavor: flavor, logger: logger}
}

// Check authorizes actorID against the resource. Resolution is scope-outward:
// a record-specific grant wins, else the owning database's grant, else the
// workspace's. With no grant at any scope, members of the resource's own
// workspace hold full access and everyone else is rejected. Returns a
// ForbiddenError on insufficient level.
func (g *Gate) Check(ctx context.Context, ref Ref, actorID, actorWorkspace string, required Level) error {
	lookups := []struct {
		scope Scope
		id    string
	}{
		{ScopeRecord, ref.RecordID},
		{ScopeDatabase, ref.DatabaseID},
		{ScopeWorkspace, ref.WorkspaceID},
	}
	for _, l := range lookups {
		if l.id == "" {
			continue
		}
		grant, err := g.lookup(ctx, l.scope, l.id, actorID)
		if err != nil {
			return err
		}
		if grant == nil {
			continue
		}
		if !grant.Level.Covers(required) {
			g.logger.Debugw("permission denied",
				"actor", actorID, "scope", l.scope, "resource", l.id,
				"granted", grant.Level, "required", required)
			return apperr.Forbidden("%s access to %s '%s' denied", required, l.scope, l.id)
		}
		return nil
	}

	if ref.WorkspaceID != "" && ref.WorkspaceID == actorWorkspace {
		return nil
	}
	return apperr.Forbidden("actor '%s' has no access to this workspace", actorID)
}

func (g *Gate) lookup(ctx context.Context, scope Scope, resourceID, subjectID string) (*Grant, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "scope", "resource_id", "subject_id", "level").From("grants")
	sb.Where(sb.EQ("scope", string(scope)), sb.EQ("resource_id", resourceID), sb.EQ("subject_id", subjectID))
	query, args := sb.BuildWithFlavor(g.flavor)

	var grant Grant
	err := g.db.QueryRowContext(ctx, query, args...).
		Scan(&grant.ID, &grant.Scope, &grant.ResourceID, &grant.SubjectID, &grant.Level)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("grant lookup", err)
	}
	return &grant, nil
}

// Allow upserts a grant for a subject on a resource.
func (g *Gate) Allow(ctx context.Context, scope Scope, resourceID, subjectID string, level Level) error {
	if _, ok := levelRank[level]; !ok {
		return apperr.Validation("unknown permission level '%s'", level)
	}
	existing, err := g.lookup(ctx, scope, resourceID, subjectID)
	if err != nil {
		return err
	}
	if existing != nil {
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("grants").Set(ub.Assign("level", string(level)))
		ub.Where(ub.EQ("id", existing.ID))
		query, args := ub.BuildWithFlavor(g.flavor)
		if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Internal("grant update", err)
		}
		return nil
	}
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("grants").
		Cols("id", "scope", "resource_id", "subject_id", "level").
		Values(uuid.NewString(), string(scope), resourceID, subjectID, string(level))
	query, args := ib.BuildWithFlavor(g.flavor)
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("grant create", err)
	}
	return nil
}

// Revoke removes a subject's grant on a resource if one exists.
func (g *Gate) Revoke(ctx context.Context, scope Scope, resourceID, subjectID string) error {
	del := sqlbuilder.NewDeleteBuilder()
	del.DeleteFrom("grants")
	del.Where(del.EQ("scope", string(scope)), del.EQ("resource_id", resourceID), del.EQ("subject_id", subjectID))
	query, args := del.BuildWithFlavor(g.flavor)
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("grant revoke", err)
	}
	return nil
}
