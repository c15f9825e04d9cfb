package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
)

// OpenDB opens the backing store from a "driver://uri" DSN and reports the
// SQL flavor the query builders should use.
func OpenDB(dsn string) (*sql.DB, sqlbuilder.Flavor, error) {
	split := strings.SplitN(dsn, "://", 2)
	if len(split) != 2 {
		return nil, 0, fmt.Errorf("invalid dsn %q: expected driver://uri", dsn)
	}
	driver, uri := split[0], split[1]

	flavor := sqlbuilder.SQLite
	switch driver {
	case "sqlite3":
	case "mysql":
		flavor = sqlbuilder.MySQL
	case "postgres":
		flavor = sqlbuilder.PostgreSQL
		// lib/pq wants the full URL back
		uri = dsn
	default:
		return nil, 0, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, 0, err
	}
	return db, flavor, nil
}

// Timestamps are stored as RFC 3339 text so every driver round-trips them the
// same way and lexicographic ordering matches chronological ordering.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS databases (
		id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		entity_type VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		properties TEXT NOT NULL,
		required_properties TEXT NOT NULL,
		frozen_properties TEXT NOT NULL,
		record_count BIGINT NOT NULL DEFAULT 0,
		frozen INTEGER NOT NULL DEFAULT 0,
		created_by VARCHAR(64),
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		deleted_at VARCHAR(40),
		UNIQUE (workspace_id, entity_type)
	)`,
	`CREATE TABLE IF NOT EXISTS views (
		id VARCHAR(64) NOT NULL,
		database_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(16) NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		is_system INTEGER NOT NULL DEFAULT 0,
		filters TEXT NOT NULL,
		sorts TEXT NOT NULL,
		group_by VARCHAR(64),
		visible_properties TEXT NOT NULL,
		config TEXT,
		permissions TEXT NOT NULL,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		PRIMARY KEY (database_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id VARCHAR(64) PRIMARY KEY,
		database_id VARCHAR(64) NOT NULL,
		properties TEXT NOT NULL,
		order_num BIGINT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at VARCHAR(40),
		deleted_by VARCHAR(64),
		created_by VARCHAR(64),
		created_at VARCHAR(40) NOT NULL,
		updated_by VARCHAR(64),
		updated_at VARCHAR(40) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_database ON records (database_id, deleted, order_num)`,
	`CREATE TABLE IF NOT EXISTS grants (
		id VARCHAR(64) PRIMARY KEY,
		scope VARCHAR(16) NOT NULL,
		resource_id VARCHAR(64) NOT NULL,
		subject_id VARCHAR(64) NOT NULL,
		level VARCHAR(16) NOT NULL,
		UNIQUE (scope, resource_id, subject_id)
	)`,
}

// Migrate creates the storage tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
