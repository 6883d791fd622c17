package roster

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const studentColumns = `id, student_id, name, stream, semester, roll_number, is_active`

// Repository persists students in Postgres.
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

// ActiveStudents returns the active roster for a stream and semester ordered
// by student id, which is the register's row order.
func (r *Repository) ActiveStudents(ctx context.Context, stream string, semester int) ([]Student, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE LOWER(stream) = LOWER($1) AND semester = $2 AND is_active
		ORDER BY student_id
	`, stream, semester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStudents(rows)
}

// StudentsByStream returns every student of a stream regardless of semester,
// the unit of promotion snapshots.
func (r *Repository) StudentsByStream(ctx context.Context, stream string) ([]Student, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE LOWER(stream) = LOWER($1)
		ORDER BY semester, student_id
	`, stream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStudents(rows)
}

// CountBySemester tallies a stream's students per semester.
func (r *Repository) CountBySemester(ctx context.Context, stream string) (map[int]int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT semester, COUNT(*)
		FROM students
		WHERE LOWER(stream) = LOWER($1)
		GROUP BY semester
	`, stream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var semester, n int
		if err := rows.Scan(&semester, &n); err != nil {
			return nil, err
		}
		counts[semester] = n
	}
	return counts, rows.Err()
}

// DeleteAtSemester removes every student of the stream at the given semester
// and reports how many went. Used for graduation.
func (r *Repository) DeleteAtSemester(ctx context.Context, stream string, semester int) (int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM students WHERE LOWER(stream) = LOWER($1) AND semester = $2
	`, stream, semester)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PromoteSemester advances every student currently at the given semester by
// one. Callers iterate semesters strictly descending so nobody is promoted
// twice in one pass.
func (r *Repository) PromoteSemester(ctx context.Context, stream string, semester int) (int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET semester = semester + 1
		WHERE LOWER(stream) = LOWER($1) AND semester = $2
	`, stream, semester)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteByStream removes every student of the stream. Used by promotion undo
// before restoring a snapshot.
func (r *Repository) DeleteByStream(ctx context.Context, stream string) (int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE LOWER(stream) = LOWER($1)`, stream)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// InsertStudents bulk-inserts students, assigning fresh storage ids so
// restored snapshots never collide with their original rows.
func (r *Repository) InsertStudents(ctx context.Context, students []Student) (int, error) {
	if len(students) == 0 {
		return 0, nil
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, st := range students {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO students (id, student_id, name, stream, semester, roll_number, is_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, uuid.NewString(), st.StudentID, st.Name, st.Stream, st.Semester, st.RollNumber, st.IsActive)
		if err != nil {
			return 0, err
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanStudents(rows *sql.Rows) ([]Student, error) {
	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.StudentID, &st.Name, &st.Stream, &st.Semester, &st.RollNumber, &st.IsActive); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}
