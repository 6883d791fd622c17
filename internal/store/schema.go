package store

import (
	"context"
	"database/sql"
)

// Schema statements are idempotent so the server can bootstrap its own tables
// on startup. The compound indexes on sessions are a performance floor for
// register and single-date queries, not an optimization to be dropped.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id               UUID PRIMARY KEY,
		stream           TEXT NOT NULL,
		semester         INT NOT NULL,
		subject          TEXT NOT NULL,
		date             TIMESTAMPTZ NOT NULL,
		time_slot        TEXT NOT NULL,
		students_present JSONB NOT NULL DEFAULT '[]'::jsonb,
		total_students   INT NOT NULL DEFAULT 0,
		present_count    INT NOT NULL DEFAULT 0,
		absent_count     INT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_register
		ON sessions (LOWER(stream), semester, LOWER(subject), date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_date_stream
		ON sessions (date DESC, LOWER(stream))`,

	`CREATE TABLE IF NOT EXISTS students (
		id          UUID PRIMARY KEY,
		student_id  TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		stream      TEXT NOT NULL,
		semester    INT NOT NULL,
		roll_number INT NOT NULL DEFAULT 0,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_roster
		ON students (LOWER(stream), semester, is_active)`,

	`CREATE TABLE IF NOT EXISTS promotion_backups (
		id             UUID PRIMARY KEY,
		stream         TEXT NOT NULL,
		taken_at       TIMESTAMPTZ NOT NULL,
		students       JSONB NOT NULL DEFAULT '[]'::jsonb,
		total_students INT NOT NULL DEFAULT 0,
		restored       BOOLEAN NOT NULL DEFAULT FALSE,
		restored_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backups_stream_taken
		ON promotion_backups (LOWER(stream), taken_at DESC)`,

	`CREATE TABLE IF NOT EXISTS teacher_profiles (
		email             TEXT PRIMARY KEY,
		firebase_uid      TEXT NOT NULL DEFAULT '',
		name              TEXT NOT NULL DEFAULT '',
		created_subjects  JSONB NOT NULL DEFAULT '[]'::jsonb,
		attendance_queue  JSONB NOT NULL DEFAULT '[]'::jsonb,
		completed_classes JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
