package session

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

const sessionColumns = `id, stream, semester, subject, date, time_slot, students_present, total_students, present_count, absent_count, created_at`

// Repository persists sessions in Postgres.
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

// Insert writes a new session and returns it with id and created_at set.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	present, err := json.Marshal(s.StudentsPresent)
	if err != nil {
		return Session{}, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, stream, semester, subject, date, time_slot, students_present, total_students, present_count, absent_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, s.ID, s.Stream, s.Semester, s.Subject, s.Date, s.TimeSlot, present, s.TotalStudents, s.PresentCount, s.AbsentCount)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Get returns a single session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.ErrNotFound
	}
	return s, err
}

// Update merges the patch into the stored session and returns the result.
// Nothing is recomputed here; the caller supplies consistent counts.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var present any
	if p.StudentsPresent != nil {
		b, err := json.Marshal(p.StudentsPresent)
		if err != nil {
			return Session{}, err
		}
		present = b
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions SET
			students_present = COALESCE($2, students_present),
			total_students   = COALESCE($3, total_students),
			present_count    = COALESCE($4, present_count),
			absent_count     = COALESCE($5, absent_count),
			date             = COALESCE($6, date),
			time_slot        = COALESCE($7, time_slot)
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, present, p.TotalStudents, p.PresentCount, p.AbsentCount, p.Date, p.TimeSlot)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.ErrNotFound
	}
	return s, err
}

// Delete removes a session. Returns false (not an error) when nothing matched.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteMany removes the given sessions and reports how many went, plus the
// distinct streams touched so the caller can invalidate caches.
func (r *Repository) DeleteMany(ctx context.Context, ids []string) (int, []string, error) {
	if len(ids) == 0 {
		return 0, nil, nil
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	placeholders := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "$" + itoa(i+1)
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `DELETE FROM sessions WHERE id IN (`+placeholders+`) RETURNING stream`, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	count := 0
	seen := map[string]struct{}{}
	var streams []string
	for rows.Next() {
		var stream string
		if err := rows.Scan(&stream); err != nil {
			return count, streams, err
		}
		count++
		if _, ok := seen[stream]; !ok {
			seen[stream] = struct{}{}
			streams = append(streams, stream)
		}
	}
	return count, streams, rows.Err()
}

// List returns sessions matching the filter. Stream and subject match
// case-insensitively; the default order (date, time_slot ascending) is the
// register column order and must stay deterministic.
func (r *Repository) List(ctx context.Context, f Filter) ([]Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	clauses := []string{}
	if f.Stream != "" {
		clauses = append(clauses, "LOWER(stream) = LOWER($"+itoa(len(args)+1)+")")
		args = append(args, f.Stream)
	}
	if f.Semester != 0 {
		clauses = append(clauses, "semester = $"+itoa(len(args)+1))
		args = append(args, f.Semester)
	}
	if f.Subject != "" {
		clauses = append(clauses, "LOWER(subject) = LOWER($"+itoa(len(args)+1)+")")
		args = append(args, f.Subject)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "date >= $"+itoa(len(args)+1))
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "date < $"+itoa(len(args)+1))
		args = append(args, f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	if f.OrderByCreated {
		query += " ORDER BY created_at DESC"
	} else {
		query += " ORDER BY date ASC, time_slot ASC"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// AggregateBySubject rolls sessions up per subject for a stream and semester.
// The rollup itself runs in Go over the queried rows so the empty-roster
// exclusion lives in one tested place rather than in SQL.
func (r *Repository) AggregateBySubject(ctx context.Context, stream string, semester int) ([]SubjectStats, error) {
	sessions, err := r.List(ctx, Filter{Stream: stream, Semester: semester})
	if err != nil {
		return nil, err
	}
	return AggregateSessions(sessions), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var present []byte
	if err := row.Scan(&s.ID, &s.Stream, &s.Semester, &s.Subject, &s.Date, &s.TimeSlot, &present, &s.TotalStudents, &s.PresentCount, &s.AbsentCount, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	if len(present) > 0 {
		if err := json.Unmarshal(present, &s.StudentsPresent); err != nil {
			return Session{}, fmt.Errorf("decode students_present: %w", err)
		}
	}
	return s, nil
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
