package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/schema"
)

// DatabaseStore persists databases and their property schemas.
type DatabaseStore struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
	cfg    schema.Config
	views  *ViewStore
	logger *zap.SugaredLogger
}

// NewDatabaseStore creates a database store.
func NewDatabaseStore(db *sql.DB, flavor sqlbuilder.Flavor, cfg schema.Config, views *ViewStore, logger *zap.SugaredLogger) *DatabaseStore {
	return &DatabaseStore{db: db, flavor: flavor, cfg: cfg, views: views, logger: logger}
}

const databaseColumns = `id, workspace_id, entity_type, name, properties, required_properties,
	frozen_properties, record_count, frozen, created_by, created_at, updated_at, deleted_at`

// Init returns the workspace's database for an entity type, creating it from
// the registry's default template on first use.
func (s *DatabaseStore) Init(ctx context.Context, workspaceID, entityType, actor string) (*schema.Database, error) {
	db, err := s.GetByEntity(ctx, workspaceID, entityType)
	if err == nil {
		return db, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	tpl, err := schema.DefaultTemplate(entityType)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	db = &schema.Database{
		ID:                 uuid.NewString(),
		WorkspaceID:        workspaceID,
		EntityType:         entityType,
		Name:               tpl.DisplayName,
		Properties:         tpl.Properties,
		RequiredProperties: tpl.RequiredProperties,
		FrozenProperties:   tpl.FrozenProperties,
		CreatedBy:          actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	props, _ := json.Marshal(db.Properties)
	required, _ := json.Marshal(db.RequiredProperties)
	frozen, _ := json.Marshal(db.FrozenProperties)

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("databases").
		Cols("id", "workspace_id", "entity_type", "name", "properties", "required_properties",
			"frozen_properties", "record_count", "frozen", "created_by", "created_at", "updated_at").
		Values(db.ID, db.WorkspaceID, db.EntityType, db.Name, string(props), string(required),
			string(frozen), 0, 0, actor, formatTime(now), formatTime(now))
	query, args := ib.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, apperr.Internal("database create", err)
	}

	for i := range tpl.Views {
		tpl.Views[i].DatabaseID = db.ID
		if err := s.views.Insert(ctx, &tpl.Views[i], now); err != nil {
			return nil, err
		}
	}
	db.Views = tpl.Views

	s.logger.Infow("initialized database from template",
		"workspace", workspaceID, "entityType", entityType, "database", db.ID)
	return db, nil
}

// Get loads a database with its views.
func (s *DatabaseStore) Get(ctx context.Context, databaseID string) (*schema.Database, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(databaseColumns).From("databases")
	sb.Where(sb.EQ("id", databaseID), sb.IsNull("deleted_at"))
	return s.queryOne(ctx, sb, databaseID)
}

// GetByEntity loads the workspace's database for an entity type.
func (s *DatabaseStore) GetByEntity(ctx context.Context, workspaceID, entityType string) (*schema.Database, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(databaseColumns).From("databases")
	sb.Where(sb.EQ("workspace_id", workspaceID), sb.EQ("entity_type", entityType), sb.IsNull("deleted_at"))
	return s.queryOne(ctx, sb, entityType)
}

// ListByWorkspace returns every live database of a workspace, views included.
func (s *DatabaseStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*schema.Database, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(databaseColumns).From("databases")
	sb.Where(sb.EQ("workspace_id", workspaceID), sb.IsNull("deleted_at"))
	sb.OrderBy("entity_type ASC")
	query, args := sb.BuildWithFlavor(s.flavor)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("database list", err)
	}
	defer rows.Close()

	var out []*schema.Database
	for rows.Next() {
		db, err := scanDatabase(rows)
		if err != nil {
			return nil, apperr.Internal("database scan", err)
		}
		out = append(out, db)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("database list", err)
	}
	for _, db := range out {
		if db.Views, err = s.views.List(ctx, db.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete soft-deletes a database, or removes it permanently together with its
// records and views when permanent is set.
func (s *DatabaseStore) Delete(ctx context.Context, databaseID string, permanent bool) error {
	if _, err := s.Get(ctx, databaseID); err != nil {
		return err
	}
	if !permanent {
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("databases").Set(ub.Assign("deleted_at", formatTime(time.Now())))
		ub.Where(ub.EQ("id", databaseID))
		query, args := ub.BuildWithFlavor(s.flavor)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Internal("database delete", err)
		}
		return nil
	}
	// ordered cleanup: records, views, then the database row
	for _, table := range []string{"records", "views"} {
		db := sqlbuilder.NewDeleteBuilder()
		db.DeleteFrom(table)
		db.Where(db.EQ("database_id", databaseID))
		query, args := db.BuildWithFlavor(s.flavor)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Internal("database purge", err)
		}
	}
	del := sqlbuilder.NewDeleteBuilder()
	del.DeleteFrom("databases")
	del.Where(del.EQ("id", databaseID))
	query, args := del.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("database purge", err)
	}
	return nil
}

// AddProperty appends or inserts a property definition. Relation targets must
// reference an existing database.
func (s *DatabaseStore) AddProperty(ctx context.Context, databaseID string, def schema.PropertyDefinition, position int) (*schema.Database, error) {
	db, err := s.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if def.Type == schema.TypeRelation && def.Relation != nil {
		if _, err := s.Get(ctx, def.Relation.DatabaseID); err != nil {
			return nil, apperr.Validation("relation target database '%s' does not exist", def.Relation.DatabaseID)
		}
	}
	if err := schema.AddProperty(db, def, position); err != nil {
		return nil, err
	}
	if err := s.persistSchema(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// UpdateProperty replaces a property definition, keeping protected flags.
func (s *DatabaseStore) UpdateProperty(ctx context.Context, databaseID string, def schema.PropertyDefinition) (*schema.Database, error) {
	db, err := s.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if err := schema.UpdateProperty(db, def); err != nil {
		return nil, err
	}
	if err := s.persistSchema(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// DeleteProperty removes a property per the configured view-reference policy
// and persists any views the strip policy modified.
func (s *DatabaseStore) DeleteProperty(ctx context.Context, databaseID, propertyID string) (*schema.Database, error) {
	db, err := s.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if db.Views, err = s.views.List(ctx, databaseID); err != nil {
		return nil, err
	}
	touched, err := schema.DeleteProperty(db, propertyID, s.cfg.OnPropertyDelete)
	if err != nil {
		return nil, err
	}
	if err := s.persistSchema(ctx, db); err != nil {
		return nil, err
	}
	for _, viewID := range touched {
		for i := range db.Views {
			if db.Views[i].ID == viewID {
				if err := s.views.Update(ctx, &db.Views[i]); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(touched) > 0 {
		s.logger.Infow("stripped deleted property from views",
			"database", databaseID, "property", propertyID, "views", touched)
	}
	return db, nil
}

// ReorderProperties applies a new display order to the schema.
func (s *DatabaseStore) ReorderProperties(ctx context.Context, databaseID string, orderedIDs []string) (*schema.Database, error) {
	db, err := s.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if err := schema.ReorderProperties(db, orderedIDs); err != nil {
		return nil, err
	}
	if err := s.persistSchema(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (s *DatabaseStore) persistSchema(ctx context.Context, db *schema.Database) error {
	props, _ := json.Marshal(db.Properties)
	required, _ := json.Marshal(db.RequiredProperties)
	frozen, _ := json.Marshal(db.FrozenProperties)

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("databases").Set(
		ub.Assign("properties", string(props)),
		ub.Assign("required_properties", string(required)),
		ub.Assign("frozen_properties", string(frozen)),
		ub.Assign("updated_at", formatTime(time.Now())),
	)
	ub.Where(ub.EQ("id", db.ID))
	query, args := ub.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("schema update", err)
	}
	return nil
}

func (s *DatabaseStore) queryOne(ctx context.Context, sb *sqlbuilder.SelectBuilder, notFoundID string) (*schema.Database, error) {
	query, args := sb.BuildWithFlavor(s.flavor)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("database get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apperr.Internal("database get", err)
		}
		return nil, apperr.NotFound("database", notFoundID)
	}
	db, err := scanDatabase(rows)
	if err != nil {
		return nil, apperr.Internal("database scan", err)
	}
	return db, nil
}

func scanDatabase(rows *sql.Rows) (*schema.Database, error) {
	var db schema.Database
	var props, required, frozen string
	var frozenFlag int
	var createdBy sql.NullString
	var createdAt, updatedAt string
	var deletedAt sql.NullString

	err := rows.Scan(&db.ID, &db.WorkspaceID, &db.EntityType, &db.Name, &props, &required,
		&frozen, &db.RecordCount, &frozenFlag, &createdBy, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(props), &db.Properties); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(required), &db.RequiredProperties); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(frozen), &db.FrozenProperties); err != nil {
		return nil, err
	}
	db.Frozen = frozenFlag != 0
	db.CreatedBy = createdBy.String
	db.CreatedAt = parseTime(createdAt)
	db.UpdatedAt = parseTime(updatedAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		db.DeletedAt = &t
	}
	return &db, nil
}
