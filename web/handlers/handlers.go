package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/perm"
	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/store"
	"github.com/xcono/gridbase/view"
)

// Services bundles the core components the handlers drive.
type Services struct {
	Databases *store.DatabaseStore
	Records   *store.RecordStore
	Views     *view.Engine
	Gate      *perm.Gate
	Cfg       schema.Config
	Logger    *zap.SugaredLogger
}

// Caller identifies the authenticated actor and workspace. The upstream auth
// middleware resolves identity; this service only reads its headers, with
// config defaults for development.
type Caller struct {
	WorkspaceID string
	ActorID     string
}

func (s *Services) caller(r *http.Request) Caller {
	c := Caller{
		WorkspaceID: r.Header.Get("X-Workspace-ID"),
		ActorID:     r.Header.Get("X-Actor-ID"),
	}
	if c.WorkspaceID == "" {
		c.WorkspaceID = s.Cfg.DefaultWorkspace
	}
	if c.ActorID == "" {
		c.ActorID = s.Cfg.DefaultActor
	}
	return c
}

// resolve get-or-creates the caller's database for the entity type, so the
// first touch of /tasks provisions the template-backed Tasks database.
// Provisioning is gated up front at the operation's level. No database or
// record grant can exist before the database does, so the workspace-scope
// check decides exactly what the full check would.
func (s *Services) resolve(ctx context.Context, c Caller, entity string, level perm.Level) (*schema.Database, error) {
	db, err := s.Databases.GetByEntity(ctx, c.WorkspaceID, entity)
	if err == nil {
		return db, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	ref := perm.Ref{WorkspaceID: c.WorkspaceID}
	if err := s.Gate.Check(ctx, ref, c.ActorID, c.WorkspaceID, level); err != nil {
		return nil, err
	}
	return s.Databases.Init(ctx, c.WorkspaceID, entity, c.ActorID)
}

func (s *Services) check(ctx context.Context, c Caller, db *schema.Database, recordID string, level perm.Level) error {
	ref := perm.Ref{RecordID: recordID, DatabaseID: db.ID, WorkspaceID: db.WorkspaceID}
	return s.Gate.Check(ctx, ref, c.ActorID, c.WorkspaceID, level)
}
