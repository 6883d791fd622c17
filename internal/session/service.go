package session

import (
	"context"
	"errors"
	"fmt"
	"math"

	"classregister/internal/apperr"
	"classregister/internal/cache"
)

// Store is what the service needs from persistence. *Repository satisfies it;
// tests inject fakes.
type Store interface {
	Insert(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, p Patch) (Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteMany(ctx context.Context, ids []string) (int, []string, error)
	List(ctx context.Context, f Filter) ([]Session, error)
	AggregateBySubject(ctx context.Context, stream string, semester int) ([]SubjectStats, error)
}

// Service is the write-side engine over the session store: submission,
// single and bulk corrections, deletion, and the cached stats read path.
// Every successful write invalidates all cached results for the session's
// stream, both register and stats views.
type Service struct {
	store Store
	cache *cache.Cache
}

// NewService wires the store and the shared result cache.
func NewService(store Store, c *cache.Cache) *Service {
	return &Service{store: store, cache: c}
}

// Submit validates and persists a new session. Present/absent counts are
// derived from the present list; whatever the caller sent is ignored.
func (s *Service) Submit(ctx context.Context, sess Session) (Session, error) {
	sess.Normalize()
	sess.RecomputeCounts()
	if err := sess.Validate(); err != nil {
		return Session{}, err
	}
	created, err := s.store.Insert(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	s.cache.InvalidateStream(created.Stream)
	return created, nil
}

// Get returns one session by id.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.store.Get(ctx, id)
}

// List returns sessions matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Session, error) {
	return s.store.List(ctx, f)
}

// UpdateSession replaces a session's present list and roster size,
// recomputing both counts. A roster size smaller than the present list is
// rejected rather than stored as a negative absent count.
func (s *Service) UpdateSession(ctx context.Context, id string, studentsPresent []string, totalStudents int) (Session, error) {
	present := dedupe(studentsPresent)
	presentCount := len(present)
	absentCount := totalStudents - presentCount
	if totalStudents < 0 {
		return Session{}, apperr.Validationf("totalStudents must not be negative")
	}
	if absentCount < 0 {
		return Session{}, apperr.Validationf("more students present (%d) than totalStudents (%d)", presentCount, totalStudents)
	}
	updated, err := s.store.Update(ctx, id, Patch{
		StudentsPresent: present,
		TotalStudents:   &totalStudents,
		PresentCount:    &presentCount,
		AbsentCount:     &absentCount,
	})
	if err != nil {
		return Session{}, err
	}
	s.cache.InvalidateStream(updated.Stream)
	return updated, nil
}

// Update is one element of a bulk correction.
type Update struct {
	SessionID       string   `json:"sessionId"`
	StudentsPresent []string `json:"studentsPresent"`
	TotalStudents   int      `json:"totalStudents"`
}

// BulkResult reports how much of a bulk correction landed.
type BulkResult struct {
	Requested     int      `json:"requested"`
	ModifiedCount int      `json:"modifiedCount"`
	Failures      []string `json:"failures,omitempty"`
}

// BulkUpdate applies each update as an independent single-row write. There is
// no all-or-nothing semantics across the batch. Partial success is reported
// through ModifiedCount versus Requested; reconciling is the caller's job.
func (s *Service) BulkUpdate(ctx context.Context, updates []Update) (BulkResult, error) {
	res := BulkResult{Requested: len(updates)}
	touched := map[string]struct{}{}
	for _, u := range updates {
		updated, err := s.applyOne(ctx, u)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", u.SessionID, err))
			continue
		}
		res.ModifiedCount++
		touched[updated.Stream] = struct{}{}
	}
	for stream := range touched {
		s.cache.InvalidateStream(stream)
	}
	return res, nil
}

func (s *Service) applyOne(ctx context.Context, u Update) (Session, error) {
	present := dedupe(u.StudentsPresent)
	presentCount := len(present)
	absentCount := u.TotalStudents - presentCount
	if u.TotalStudents < 0 || absentCount < 0 {
		return Session{}, apperr.Validationf("inconsistent totalStudents")
	}
	return s.store.Update(ctx, u.SessionID, Patch{
		StudentsPresent: present,
		TotalStudents:   &u.TotalStudents,
		PresentCount:    &presentCount,
		AbsentCount:     &absentCount,
	})
}

// Delete removes one session permanently. Returns false when the id did not
// match anything, which is not an error.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.cache.InvalidateStream(existing.Stream)
	}
	return removed, nil
}

// DeleteMany removes a selection of sessions and reports how many went.
func (s *Service) DeleteMany(ctx context.Context, ids []string) (int, error) {
	count, streams, err := s.store.DeleteMany(ctx, ids)
	for _, stream := range streams {
		s.cache.InvalidateStream(stream)
	}
	return count, err
}

// Stats returns per-subject aggregates for a stream and semester, memoized
// in the result cache until a write to the stream invalidates it.
func (s *Service) Stats(ctx context.Context, stream string, semester int) ([]SubjectStats, error) {
	key := cache.Key(cache.PrefixStats, stream, map[string]string{"semester": itoa(semester)})
	if v, ok := s.cache.Get(key); ok {
		if stats, ok := v.([]SubjectStats); ok {
			return stats, nil
		}
	}
	stats, err := s.store.AggregateBySubject(ctx, stream, semester)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, stats)
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
