package promotion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classregister/internal/apperr"
)

// Repository persists promotion backups in Postgres. The snapshotted roster
// is stored as a JSONB document so a backup is one atomic row.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewRepository creates a repo. Every operation runs under the given timeout.
func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Save writes a backup with restored=false and returns it with its id set.
func (r *Repository) Save(ctx context.Context, b Backup) (Backup, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.TakenAt.IsZero() {
		b.TakenAt = time.Now().UTC()
	}
	students, err := json.Marshal(b.Students)
	if err != nil {
		return Backup{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO promotion_backups (id, stream, taken_at, students, total_students, restored)
		VALUES ($1,$2,$3,$4,$5,FALSE)
	`, b.ID, b.Stream, b.TakenAt, students, b.TotalStudents)
	if err != nil {
		return Backup{}, err
	}
	return b, nil
}

// LatestUnrestored returns the most recent backup for the stream that has
// not been consumed by an undo.
func (r *Repository) LatestUnrestored(ctx context.Context, stream string) (Backup, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, stream, taken_at, students, total_students, restored, restored_at
		FROM promotion_backups
		WHERE LOWER(stream) = LOWER($1) AND NOT restored
		ORDER BY taken_at DESC
		LIMIT 1
	`, stream)

	var b Backup
	var students []byte
	if err := row.Scan(&b.ID, &b.Stream, &b.TakenAt, &students, &b.TotalStudents, &b.Restored, &b.RestoredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Backup{}, apperr.ErrNotFound
		}
		return Backup{}, err
	}
	if len(students) > 0 {
		if err := json.Unmarshal(students, &b.Students); err != nil {
			return Backup{}, fmt.Errorf("decode backup students: %w", err)
		}
	}
	return b, nil
}

// MarkRestored flips the backup to consumed, stamping the restoration time.
func (r *Repository) MarkRestored(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE promotion_backups SET restored = TRUE, restored_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
