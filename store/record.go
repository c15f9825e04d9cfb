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
	"github.com/xcono/gridbase/builder"
	"github.com/xcono/gridbase/schema"
)

// RecordStore is typed CRUD over records plus bulk and lifecycle operations.
// Values are validated against the owning database's schema on every write;
// the storage layer itself stores an opaque JSON bag.
type RecordStore struct {
	db        *sql.DB
	flavor    sqlbuilder.Flavor
	eval      *builder.Evaluator
	databases *DatabaseStore
	cfg       schema.Config
	logger    *zap.SugaredLogger
}

// NewRecordStore creates a record store.
func NewRecordStore(db *sql.DB, flavor sqlbuilder.Flavor, databases *DatabaseStore, cfg schema.Config, logger *zap.SugaredLogger) *RecordStore {
	return &RecordStore{
		db:        db,
		flavor:    flavor,
		eval:      builder.NewEvaluator(flavor),
		databases: databases,
		cfg:       cfg,
		logger:    logger,
	}
}

// BulkResult reports the outcome for one record id of a bulk operation.
type BulkResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

const recordColumns = `id, database_id, properties, order_num, version, deleted,
	deleted_at, deleted_by, created_by, created_at, updated_by, updated_at`

// Create validates the property map against the database schema, assigns the
// next manual order number and persists the record.
func (s *RecordStore) Create(ctx context.Context, databaseID string, properties map[string]interface{}, actor string) (*schema.Record, error) {
	db, err := s.databases.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if properties == nil {
		properties = map[string]interface{}{}
	}
	if err := validateProperties(db, properties, true); err != nil {
		return nil, err
	}

	orderNum, err := s.nextOrderNum(ctx, databaseID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &schema.Record{
		ID:         uuid.NewString(),
		DatabaseID: databaseID,
		Properties: properties,
		OrderNum:   orderNum,
		Version:    1,
		CreatedBy:  actor,
		CreatedAt:  now,
		UpdatedBy:  actor,
		UpdatedAt:  now,
	}

	bag, err := json.Marshal(properties)
	if err != nil {
		return nil, apperr.Internal("record encode", err)
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("records").
		Cols("id", "database_id", "properties", "order_num", "version", "deleted",
			"created_by", "created_at", "updated_by", "updated_at").
		Values(rec.ID, databaseID, string(bag), orderNum, 1, 0,
			actor, formatTime(now), actor, formatTime(now))
	query, args := ib.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, apperr.Internal("record create", err)
	}

	if err := s.adjustRecordCount(ctx, databaseID, +1); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads one live record.
func (s *RecordStore) Get(ctx context.Context, databaseID, recordID string) (*schema.Record, error) {
	return s.get(ctx, databaseID, recordID, false)
}

func (s *RecordStore) get(ctx context.Context, databaseID, recordID string, includeDeleted bool) (*schema.Record, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(recordColumns).From("records")
	sb.Where(sb.EQ("database_id", databaseID), sb.EQ("id", recordID))
	if !includeDeleted {
		sb.Where(sb.EQ("deleted", 0))
	}
	query, args := sb.BuildWithFlavor(s.flavor)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("record get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apperr.Internal("record get", err)
		}
		return nil, apperr.NotFound("record", recordID)
	}
	return scanRecord(rows)
}

// List pages through a database's records. Filters, search and sorts are
// compiled by the evaluator; soft-deleted records are excluded unless the
// options say otherwise. The page size is clamped.
func (s *RecordStore) List(ctx context.Context, db *schema.Database, opts builder.ListOptions) ([]schema.Record, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = builder.DefaultLimit
	}
	if opts.Limit > builder.MaxLimit {
		opts.Limit = builder.MaxLimit
	}

	total, err := s.count(ctx, db, opts)
	if err != nil {
		return nil, 0, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(recordColumns).From("records")
	if err := s.applyConditions(db, opts, sb); err != nil {
		return nil, 0, err
	}
	order, err := s.eval.CompileSort(db, opts.Sorts)
	if err != nil {
		return nil, 0, err
	}
	sb.OrderBy(order...)
	sb.Limit(opts.Limit).Offset(opts.Offset())
	query, args := sb.BuildWithFlavor(s.flavor)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Internal("record list", err)
	}
	defer rows.Close()

	records := []schema.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, apperr.Internal("record scan", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal("record list", err)
	}
	return records, total, nil
}

func (s *RecordStore) count(ctx context.Context, db *schema.Database, opts builder.ListOptions) (int64, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COUNT(*)").From("records")
	if err := s.applyConditions(db, opts, sb); err != nil {
		return 0, err
	}
	query, args := sb.BuildWithFlavor(s.flavor)

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperr.Internal("record count", err)
	}
	return total, nil
}

func (s *RecordStore) applyConditions(db *schema.Database, opts builder.ListOptions, sb *sqlbuilder.SelectBuilder) error {
	sb.Where(sb.EQ("database_id", db.ID))
	if !opts.IncludeDeleted {
		sb.Where(sb.EQ("deleted", 0))
	}
	if expr, err := s.eval.Compile(db, opts.Filters, sb); err != nil {
		return err
	} else if expr != "" {
		sb.Where(expr)
	}
	if cond := s.eval.SearchCondition(db, opts.Search, sb); cond != "" {
		sb.Where(cond)
	}
	return nil
}

// Update merges only the supplied property ids into the record, re-validating
// each against its definition. A nil value clears the property. The write is
// a compare-and-swap on the record version; a concurrent writer surfaces as a
// version_conflict validation error.
func (s *RecordStore) Update(ctx context.Context, databaseID, recordID string, partial map[string]interface{}, actor string) (*schema.Record, error) {
	db, err := s.databases.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if len(partial) == 0 {
		return nil, apperr.Validation("no properties supplied")
	}
	if err := validateProperties(db, partial, false); err != nil {
		return nil, err
	}

	rec, err := s.get(ctx, databaseID, recordID, false)
	if err != nil {
		return nil, err
	}

	for id, value := range partial {
		if value == nil {
			delete(rec.Properties, id)
			continue
		}
		rec.Properties[id] = value
	}

	bag, err := json.Marshal(rec.Properties)
	if err != nil {
		return nil, apperr.Internal("record encode", err)
	}

	now := time.Now()
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("records").Set(
		ub.Assign("properties", string(bag)),
		ub.Assign("version", rec.Version+1),
		ub.Assign("updated_by", actor),
		ub.Assign("updated_at", formatTime(now)),
	)
	ub.Where(ub.EQ("id", recordID), ub.EQ("version", rec.Version), ub.EQ("deleted", 0))
	query, args := ub.BuildWithFlavor(s.flavor)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("record update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Internal("record update", err)
	}
	if affected == 0 {
		return nil, apperr.Validation("record '%s' was modified concurrently", recordID).
			WithField(apperr.FieldError{Field: "version", Code: "version_conflict",
				Message: "record changed since it was read"})
	}

	rec.Version++
	rec.UpdatedBy = actor
	rec.UpdatedAt = now
	return rec, nil
}

// Delete soft-deletes by default; permanent removes the row. Soft-deleting an
// already deleted record is a no-op, so the cached record count is only
// decremented once.
func (s *RecordStore) Delete(ctx context.Context, databaseID, recordID string, permanent bool, actor string) error {
	rec, err := s.get(ctx, databaseID, recordID, true)
	if err != nil {
		return err
	}

	if !permanent {
		if rec.Deleted {
			return nil
		}
		now := time.Now()
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("records").Set(
			ub.Assign("deleted", 1),
			ub.Assign("deleted_at", formatTime(now)),
			ub.Assign("deleted_by", actor),
		)
		ub.Where(ub.EQ("id", recordID), ub.EQ("deleted", 0))
		query, args := ub.BuildWithFlavor(s.flavor)
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return apperr.Internal("record delete", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return apperr.Internal("record delete", err)
		}
		if affected == 0 {
			// lost the race with another soft delete
			return nil
		}
		return s.cleanupAfterDelete(ctx, databaseID, recordID, true)
	}

	del := sqlbuilder.NewDeleteBuilder()
	del.DeleteFrom("records")
	del.Where(del.EQ("id", recordID))
	query, args := del.BuildWithFlavor(s.flavor)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("record delete", err)
	}
	// a record that was already soft-deleted no longer counts as live
	return s.cleanupAfterDelete(ctx, databaseID, recordID, !rec.Deleted)
}

// cleanupAfterDelete runs the ordered post-delete steps. Kept as a single
// routine so the sequence is deterministic and testable on its own.
func (s *RecordStore) cleanupAfterDelete(ctx context.Context, databaseID, recordID string, wasLive bool) error {
	if wasLive {
		if err := s.adjustRecordCount(ctx, databaseID, -1); err != nil {
			return err
		}
	}
	s.logger.Debugw("record deleted", "database", databaseID, "record", recordID)
	return nil
}

// BulkUpdate applies the same partial update across a set of records. The
// batch is best-effort: per-record failures are reported, not rolled back.
// Cancellation is honored between records.
func (s *RecordStore) BulkUpdate(ctx context.Context, databaseID string, recordIDs []string, partial map[string]interface{}, actor string) ([]BulkResult, int, error) {
	if err := s.checkBulkSize(recordIDs); err != nil {
		return nil, 0, err
	}
	results := make([]BulkResult, 0, len(recordIDs))
	modified := 0
	for _, id := range recordIDs {
		if err := ctx.Err(); err != nil {
			return results, modified, apperr.Internal("bulk update", err)
		}
		if _, err := s.Update(ctx, databaseID, id, partial, actor); err != nil {
			results = append(results, BulkResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{ID: id, Success: true})
		modified++
	}
	return results, modified, nil
}

// BulkDelete deletes a set of records with the same best-effort semantics as
// BulkUpdate.
func (s *RecordStore) BulkDelete(ctx context.Context, databaseID string, recordIDs []string, permanent bool, actor string) ([]BulkResult, int, error) {
	if err := s.checkBulkSize(recordIDs); err != nil {
		return nil, 0, err
	}
	results := make([]BulkResult, 0, len(recordIDs))
	affected := 0
	for _, id := range recordIDs {
		if err := ctx.Err(); err != nil {
			return results, affected, apperr.Internal("bulk delete", err)
		}
		if err := s.Delete(ctx, databaseID, id, permanent, actor); err != nil {
			results = append(results, BulkResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{ID: id, Success: true})
		affected++
	}
	return results, affected, nil
}

func (s *RecordStore) checkBulkSize(recordIDs []string) error {
	if len(recordIDs) == 0 {
		return apperr.Validation("recordIds must not be empty")
	}
	if max := s.cfg.MaxBulkSize; max > 0 && len(recordIDs) > max {
		return apperr.Validation("bulk operation exceeds the %d record limit", max)
	}
	return nil
}

// Duplicate copies a record's property values into a new record with a fresh
// id and order number. Required DATE properties (entry timestamps) are reset
// to now.
func (s *RecordStore) Duplicate(ctx context.Context, databaseID, recordID, actor string) (*schema.Record, error) {
	db, err := s.databases.Get(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	src, err := s.get(ctx, databaseID, recordID, false)
	if err != nil {
		return nil, err
	}

	properties := make(map[string]interface{}, len(src.Properties))
	for id, value := range src.Properties {
		properties[id] = value
	}
	for _, p := range db.Properties {
		if p.Type == schema.TypeDate && p.Required {
			properties[p.ID] = time.Now().UTC().Format(time.RFC3339)
		}
	}
	return s.Create(ctx, databaseID, properties, actor)
}

func (s *RecordStore) nextOrderNum(ctx context.Context, databaseID string) (int64, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COALESCE(MAX(order_num), 0)").From("records")
	sb.Where(sb.EQ("database_id", databaseID))
	query, args := sb.BuildWithFlavor(s.flavor)

	var max int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, apperr.Internal("order number", err)
	}
	return max + 1, nil
}

// adjustRecordCount keeps the cached live-record count in step using an
// atomic relative update, never a read-modify-write from Go.
func (s *RecordStore) adjustRecordCount(ctx context.Context, databaseID string, delta int64) error {
	query := "UPDATE databases SET record_count = record_count + ? WHERE id = ?"
	args := []interface{}{delta, databaseID}
	if s.flavor == sqlbuilder.PostgreSQL {
		query = "UPDATE databases SET record_count = record_count + $1 WHERE id = $2"
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Internal("record count", err)
	}
	return nil
}

// validateProperties checks every supplied property id and value shape, and
// on create that required writable properties are present. A nil value clears
// a property, so nil is never accepted for a required one.
func validateProperties(db *schema.Database, properties map[string]interface{}, forCreate bool) error {
	for id, value := range properties {
		def, ok := db.Property(id)
		if !ok {
			return apperr.Validation("unknown property '%s'", id).WithField(apperr.FieldError{
				Field: id, Code: "unknown_property", Message: "property is not part of the database schema",
			})
		}
		if value == nil && def.Required {
			return apperr.Validation("property '%s' is required", id).WithField(apperr.FieldError{
				Field: id, Code: "required", Message: "a required property cannot be cleared",
			})
		}
		if err := schema.ValidateValue(def, value); err != nil {
			return err
		}
	}
	if forCreate {
		for _, def := range db.Properties {
			if !def.Required || def.Type.Computed() {
				continue
			}
			if v, ok := properties[def.ID]; !ok || v == nil {
				return apperr.Validation("property '%s' is required", def.ID).WithField(apperr.FieldError{
					Field: def.ID, Code: "required", Message: "value is required",
				})
			}
		}
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*schema.Record, error) {
	var rec schema.Record
	var bag string
	var deleted int
	var deletedAt, deletedBy, createdBy, updatedBy sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&rec.ID, &rec.DatabaseID, &bag, &rec.OrderNum, &rec.Version, &deleted,
		&deletedAt, &deletedBy, &createdBy, &createdAt, &updatedBy, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(bag), &rec.Properties); err != nil {
		return nil, err
	}
	rec.Deleted = deleted != 0
	if deletedAt.Valid && deletedAt.String != "" {
		t := parseTime(deletedAt.String)
		rec.DeletedAt = &t
	}
	rec.DeletedBy = deletedBy.String
	rec.CreatedBy = createdBy.String
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedBy = updatedBy.String
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}
