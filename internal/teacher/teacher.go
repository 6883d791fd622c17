// Package teacher manages a teacher's profile and its three work lists:
// subjects they created, classes queued for attendance-taking, and classes
// already completed. Each list is an array-valued document keyed by the
// teacher's email.
package teacher

import (
	"context"
	"strconv"
	"strings"
	"time"

	"classregister/internal/apperr"
)

// Entry is one element of a work list. ID is a client-generated
// timestamp-based string, unique within its list only.
type Entry struct {
	ID           string    `json:"id"`
	Stream       string    `json:"stream"`
	Semester     int       `json:"semester"`
	Subject      string    `json:"subject"`
	TeacherEmail string    `json:"teacherEmail"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile is a teacher's document.
type Profile struct {
	Email            string  `json:"email"`
	FirebaseUID      string  `json:"firebaseUid"`
	Name             string  `json:"name"`
	CreatedSubjects  []Entry `json:"createdSubjects"`
	AttendanceQueue  []Entry `json:"attendanceQueue"`
	CompletedClasses []Entry `json:"completedClasses"`
}

// List names one of the three work lists. Values double as column names in
// the store, so they are whitelisted there.
type List string

const (
	ListSubjects  List = "created_subjects"
	ListQueue     List = "attendance_queue"
	ListCompleted List = "completed_classes"
)

// Valid reports whether l names a known list.
func (l List) Valid() bool {
	switch l {
	case ListSubjects, ListQueue, ListCompleted:
		return true
	}
	return false
}

func (p *Profile) list(l List) []Entry {
	switch l {
	case ListSubjects:
		return p.CreatedSubjects
	case ListQueue:
		return p.AttendanceQueue
	case ListCompleted:
		return p.CompletedClasses
	}
	return nil
}

// Store is the persistence surface. Ensure must guarantee the profile exists
// with all three lists non-null before any read-modify-write.
type Store interface {
	Ensure(ctx context.Context, email, firebaseUID, name string) error
	Get(ctx context.Context, email string) (Profile, error)
	SaveList(ctx context.Context, email string, list List, entries []Entry) error
}

// Service implements the work-list operations with application-side
// duplicate checks. Lists are small; a linear scan per append is fine.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wires the store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// EnsureProfile is the idempotent upsert-repair: it creates the profile with
// empty lists on first contact and never clobbers existing data.
func (s *Service) EnsureProfile(ctx context.Context, email, firebaseUID, name string) error {
	if email == "" {
		return apperr.Validationf("teacher email is required")
	}
	return s.store.Ensure(ctx, email, firebaseUID, name)
}

// Entries returns one of the teacher's lists.
func (s *Service) Entries(ctx context.Context, email string, list List) ([]Entry, error) {
	if !list.Valid() {
		return nil, apperr.Validationf("unknown list %q", list)
	}
	if err := s.EnsureProfile(ctx, email, "", ""); err != nil {
		return nil, err
	}
	p, err := s.store.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	entries := p.list(list)
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Append adds an entry to a list, rejecting a duplicate
// stream+semester+subject combination with a conflict.
func (s *Service) Append(ctx context.Context, email string, list List, e Entry) (Entry, error) {
	if !list.Valid() {
		return Entry{}, apperr.Validationf("unknown list %q", list)
	}
	e.Stream = strings.TrimSpace(e.Stream)
	e.Subject = strings.TrimSpace(e.Subject)
	if e.Stream == "" || e.Subject == "" {
		return Entry{}, apperr.Validationf("stream and subject are required")
	}
	if e.Semester <= 0 {
		return Entry{}, apperr.Validationf("semester is required")
	}
	if err := s.EnsureProfile(ctx, email, "", ""); err != nil {
		return Entry{}, err
	}
	p, err := s.store.Get(ctx, email)
	if err != nil {
		return Entry{}, err
	}
	entries := p.list(list)
	for _, existing := range entries {
		if sameClass(existing, e) {
			return Entry{}, apperr.ErrConflict
		}
	}
	// A client-supplied id that collides within the list would make Remove
	// delete both entries, so it is replaced rather than trusted.
	if e.ID == "" || idTaken(entries, e.ID) {
		e.ID = s.freshID(entries)
	}
	e.TeacherEmail = email
	e.CreatedAt = s.now().UTC()
	entries = append(entries, e)
	if err := s.store.SaveList(ctx, email, list, entries); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Remove deletes the entry with the given id from a list.
func (s *Service) Remove(ctx context.Context, email string, list List, id string) error {
	if !list.Valid() {
		return apperr.Validationf("unknown list %q", list)
	}
	if err := s.EnsureProfile(ctx, email, "", ""); err != nil {
		return err
	}
	p, err := s.store.Get(ctx, email)
	if err != nil {
		return err
	}
	entries := p.list(list)
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return apperr.ErrNotFound
	}
	return s.store.SaveList(ctx, email, list, kept)
}

// freshID mints a millisecond-timestamp id, bumping until it is unique
// within the list (appends in the same millisecond are possible).
func (s *Service) freshID(entries []Entry) string {
	used := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		used[e.ID] = struct{}{}
	}
	ms := s.now().UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if _, taken := used[id]; !taken {
			return id
		}
		ms++
	}
}

func idTaken(entries []Entry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func sameClass(a, b Entry) bool {
	return strings.EqualFold(a.Stream, b.Stream) &&
		a.Semester == b.Semester &&
		strings.EqualFold(a.Subject, b.Subject)
}
