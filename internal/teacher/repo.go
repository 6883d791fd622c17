package teacher

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classregister/internal/apperr"
)

// Repository persists teacher profiles in Postgres, each work list as a
// JSONB column so list replacement is an atomic single-row update.
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

// Ensure upserts the profile row. On first contact the lists come up as
// empty arrays; on later contacts existing data is repaired, never replaced.
func (r *Repository) Ensure(ctx context.Context, email, firebaseUID, name string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teacher_profiles (email, firebase_uid, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			firebase_uid      = CASE WHEN EXCLUDED.firebase_uid <> '' THEN EXCLUDED.firebase_uid ELSE teacher_profiles.firebase_uid END,
			name              = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE teacher_profiles.name END,
			created_subjects  = COALESCE(teacher_profiles.created_subjects, '[]'::jsonb),
			attendance_queue  = COALESCE(teacher_profiles.attendance_queue, '[]'::jsonb),
			completed_classes = COALESCE(teacher_profiles.completed_classes, '[]'::jsonb)
	`, email, firebaseUID, name)
	return err
}

// Get returns the full profile document.
func (r *Repository) Get(ctx context.Context, email string) (Profile, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT email, firebase_uid, name, created_subjects, attendance_queue, completed_classes
		FROM teacher_profiles WHERE email = $1
	`, email)

	var p Profile
	var subjects, queue, completed []byte
	if err := row.Scan(&p.Email, &p.FirebaseUID, &p.Name, &subjects, &queue, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, apperr.ErrNotFound
		}
		return Profile{}, err
	}
	for _, col := range []struct {
		raw  []byte
		dest *[]Entry
	}{
		{subjects, &p.CreatedSubjects},
		{queue, &p.AttendanceQueue},
		{completed, &p.CompletedClasses},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return Profile{}, fmt.Errorf("decode teacher list: %w", err)
		}
	}
	return p, nil
}

// SaveList replaces one list atomically. The column name comes from the
// whitelisted List constants, never from request input.
func (r *Repository) SaveList(ctx context.Context, email string, list List, entries []Entry) error {
	if !list.Valid() {
		return apperr.Validationf("unknown list %q", list)
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE teacher_profiles SET %s = $2 WHERE email = $1`, string(list)),
		email, raw)
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
