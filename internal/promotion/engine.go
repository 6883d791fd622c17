// Package promotion advances a stream's students by one semester, graduates
// the top semester, and keeps a time-boxed backup so a run can be undone.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"classregister/internal/apperr"
	"classregister/internal/cache"
	"classregister/internal/roster"
)

// TopSemester is the graduating semester. Semester 1 is left empty for new
// admissions after a run.
const TopSemester = 6

var promotionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promotion_runs_total",
	Help: "Promotion engine operations by kind.",
}, []string{"op"})

// RosterStore is the roster surface the engine mutates.
type RosterStore interface {
	StudentsByStream(ctx context.Context, stream string) ([]roster.Student, error)
	CountBySemester(ctx context.Context, stream string) (map[int]int, error)
	DeleteAtSemester(ctx context.Context, stream string, semester int) (int, error)
	PromoteSemester(ctx context.Context, stream string, semester int) (int, error)
	DeleteByStream(ctx context.Context, stream string) (int, error)
	InsertStudents(ctx context.Context, students []roster.Student) (int, error)
}

// BackupStore persists promotion snapshots.
type BackupStore interface {
	Save(ctx context.Context, b Backup) (Backup, error)
	LatestUnrestored(ctx context.Context, stream string) (Backup, error)
	MarkRestored(ctx context.Context, id string, at time.Time) error
}

// Backup is the full-roster snapshot taken immediately before a run. It is
// the sole undo mechanism; Restored flips true once an undo consumes it.
type Backup struct {
	ID            string           `json:"id"`
	Stream        string           `json:"stream"`
	TakenAt       time.Time        `json:"timestamp"`
	Students      []roster.Student `json:"students"`
	TotalStudents int              `json:"totalStudents"`
	Restored      bool             `json:"restored"`
	RestoredAt    *time.Time       `json:"restoredAt,omitempty"`
}

// Engine drives the promotion state machine per stream. Execute and Undo for
// the same stream are serialized through an in-process lock; running them
// concurrently would double-promote or restore over fresh mutations.
type Engine struct {
	roster     RosterStore
	backups    BackupStore
	cache      *cache.Cache
	undoWindow time.Duration
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine wires the stores and the shared result cache (nil is allowed).
// undoWindow defaults to 24 hours.
func NewEngine(r RosterStore, b BackupStore, undoWindow time.Duration, c *cache.Cache) *Engine {
	if undoWindow <= 0 {
		undoWindow = 24 * time.Hour
	}
	return &Engine{
		roster:     r,
		backups:    b,
		cache:      c,
		undoWindow: undoWindow,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// invalidate drops the stream's cached register and attendance views; the
// roster they were built over just changed.
func (e *Engine) invalidate(stream string) {
	if e.cache != nil {
		e.cache.InvalidateStream(stream)
	}
}

func (e *Engine) streamLock(stream string) *sync.Mutex {
	key := strings.ToLower(stream)
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// Preview reports, without side effects, what Execute would do.
type Preview struct {
	Stream            string      `json:"stream"`
	SemesterBreakdown map[int]int `json:"semesterBreakdown"`
	PromotionPreview  []string    `json:"promotionPreview"`
	TotalStudents     int         `json:"totalStudents"`
}

// Preview counts students per semester and describes the pending moves.
func (e *Engine) Preview(ctx context.Context, stream string) (Preview, error) {
	counts, err := e.roster.CountBySemester(ctx, stream)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Stream: stream, SemesterBreakdown: make(map[int]int, TopSemester)}
	for sem := 1; sem <= TopSemester; sem++ {
		p.SemesterBreakdown[sem] = counts[sem]
		p.TotalStudents += counts[sem]
	}
	if p.TotalStudents == 0 {
		return Preview{}, apperr.ErrNotFound
	}
	if n := counts[TopSemester]; n > 0 {
		p.PromotionPreview = append(p.PromotionPreview, flowLine(TopSemester, n, true))
	}
	for sem := TopSemester - 1; sem >= 1; sem-- {
		if n := counts[sem]; n > 0 {
			p.PromotionPreview = append(p.PromotionPreview, flowLine(sem, n, false))
		}
	}
	promotionRuns.WithLabelValues("preview").Inc()
	return p, nil
}

// Result reports an executed promotion run.
type Result struct {
	Stream         string   `json:"stream"`
	TotalPromoted  int      `json:"totalPromoted"`
	TotalGraduated int      `json:"totalGraduated"`
	PromotionFlow  []string `json:"promotionFlow"`
}

// Execute snapshots the whole stream, graduates semester 6, then promotes
// semesters 5 down to 1. The snapshot write happens before any mutation and
// the run aborts if it fails, so there is always a backup to undo from.
func (e *Engine) Execute(ctx context.Context, stream string) (Result, error) {
	lock := e.streamLock(stream)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := e.roster.StudentsByStream(ctx, stream)
	if err != nil {
		return Result{}, err
	}
	if len(snapshot) == 0 {
		return Result{}, apperr.ErrNotFound
	}
	if _, err := e.backups.Save(ctx, Backup{
		Stream:        stream,
		TakenAt:       e.now().UTC(),
		Students:      snapshot,
		TotalStudents: len(snapshot),
	}); err != nil {
		return Result{}, fmt.Errorf("promotion aborted, backup write failed: %w", err)
	}

	res := Result{Stream: stream}
	graduated, err := e.roster.DeleteAtSemester(ctx, stream, TopSemester)
	if err != nil {
		return Result{}, err
	}
	res.TotalGraduated = graduated
	if graduated > 0 {
		res.PromotionFlow = append(res.PromotionFlow, flowLine(TopSemester, graduated, true))
	}
	// Strictly descending so nobody is promoted twice in one pass; semester 1
	// ends up empty, ready for new admissions.
	for sem := TopSemester - 1; sem >= 1; sem-- {
		moved, err := e.roster.PromoteSemester(ctx, stream, sem)
		if err != nil {
			return res, err
		}
		res.TotalPromoted += moved
		if moved > 0 {
			res.PromotionFlow = append(res.PromotionFlow, flowLine(sem, moved, false))
		}
	}
	e.invalidate(stream)
	promotionRuns.WithLabelValues("execute").Inc()
	return res, nil
}

// UndoStatus answers whether the last run is still reversible.
type UndoStatus struct {
	CanUndo          bool    `json:"canUndo"`
	HoursOld         float64 `json:"hoursOld"`
	StudentsInBackup int     `json:"studentsInBackup"`
}

// CanUndo inspects the most recent non-restored backup. No backup means
// nothing to undo, reported as canUndo=false rather than an error.
func (e *Engine) CanUndo(ctx context.Context, stream string) (UndoStatus, error) {
	b, err := e.backups.LatestUnrestored(ctx, stream)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return UndoStatus{}, nil
		}
		return UndoStatus{}, err
	}
	hours := e.now().Sub(b.TakenAt).Hours()
	return UndoStatus{
		CanUndo:          hours <= e.undoWindow.Hours(),
		HoursOld:         round2(hours),
		StudentsInBackup: b.TotalStudents,
	}, nil
}

// UndoResult reports a consumed backup.
type UndoResult struct {
	Stream           string `json:"stream"`
	StudentsRestored int    `json:"studentsRestored"`
}

// Undo replaces the stream's current students with the backup's snapshot.
// The window is re-validated here, not just at CanUndo time, since it could
// have expired between check and action. Restored students get fresh storage ids,
// and the backup is marked consumed, so undo itself is irreversible.
func (e *Engine) Undo(ctx context.Context, stream string) (UndoResult, error) {
	lock := e.streamLock(stream)
	lock.Lock()
	defer lock.Unlock()

	b, err := e.backups.LatestUnrestored(ctx, stream)
	if err != nil {
		return UndoResult{}, err
	}
	if e.now().Sub(b.TakenAt) > e.undoWindow {
		return UndoResult{}, apperr.ErrUndoExpired
	}

	if _, err := e.roster.DeleteByStream(ctx, stream); err != nil {
		return UndoResult{}, err
	}
	students := make([]roster.Student, len(b.Students))
	for i, st := range b.Students {
		st.ID = "" // storage identity must not survive restoration
		students[i] = st
	}
	restored, err := e.roster.InsertStudents(ctx, students)
	if err != nil {
		return UndoResult{}, err
	}
	if err := e.backups.MarkRestored(ctx, b.ID, e.now().UTC()); err != nil {
		return UndoResult{}, err
	}
	e.invalidate(stream)
	promotionRuns.WithLabelValues("undo").Inc()
	return UndoResult{Stream: stream, StudentsRestored: restored}, nil
}

func flowLine(sem, count int, graduating bool) string {
	if graduating {
		return fmt.Sprintf("Semester %d → Graduated: %d students", sem, count)
	}
	return fmt.Sprintf("Semester %d → Semester %d: %d students", sem, sem+1, count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
