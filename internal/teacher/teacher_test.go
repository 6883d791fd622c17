package teacher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classregister/internal/apperr"
)

type fakeStore struct {
	profiles    map[string]*Profile
	ensureCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[string]*Profile)}
}

func (f *fakeStore) Ensure(_ context.Context, email, uid, name string) error {
	f.ensureCalls++
	p, ok := f.profiles[email]
	if !ok {
		f.profiles[email] = &Profile{
			Email:            email,
			FirebaseUID:      uid,
			Name:             name,
			CreatedSubjects:  []Entry{},
			AttendanceQueue:  []Entry{},
			CompletedClasses: []Entry{},
		}
		return nil
	}
	// Repair without clobbering.
	if p.CreatedSubjects == nil {
		p.CreatedSubjects = []Entry{}
	}
	if p.AttendanceQueue == nil {
		p.AttendanceQueue = []Entry{}
	}
	if p.CompletedClasses == nil {
		p.CompletedClasses = []Entry{}
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, email string) (Profile, error) {
	p, ok := f.profiles[email]
	if !ok {
		return Profile{}, apperr.ErrNotFound
	}
	return *p, nil
}

func (f *fakeStore) SaveList(_ context.Context, email string, list List, entries []Entry) error {
	p, ok := f.profiles[email]
	if !ok {
		return apperr.ErrNotFound
	}
	switch list {
	case ListSubjects:
		p.CreatedSubjects = entries
	case ListQueue:
		p.AttendanceQueue = entries
	case ListCompleted:
		p.CompletedClasses = entries
	}
	return nil
}

const email = "t@school.test"

func entry(stream string, semester int, subject string) Entry {
	return Entry{Stream: stream, Semester: semester, Subject: subject}
}

func TestEnsureProfileIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	require.NoError(t, svc.EnsureProfile(context.Background(), email, "uid-1", "T"))
	_, err := svc.Append(context.Background(), email, ListSubjects, entry("BCA", 2, "DBMS"))
	require.NoError(t, err)

	// A second ensure must leave the populated list untouched.
	require.NoError(t, svc.EnsureProfile(context.Background(), email, "uid-1", "T"))
	entries, err := svc.Entries(context.Background(), email, ListSubjects)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendRejectsDuplicateClass(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.Append(context.Background(), email, ListQueue, entry("BCA", 2, "DBMS"))
	require.NoError(t, err)

	// Same class, different case: still a duplicate.
	_, err = svc.Append(context.Background(), email, ListQueue, entry("bca", 2, "dbms"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Different semester is a different class.
	_, err = svc.Append(context.Background(), email, ListQueue, entry("BCA", 3, "DBMS"))
	assert.NoError(t, err)
}

func TestDuplicateCheckIsPerList(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.Append(context.Background(), email, ListQueue, entry("BCA", 2, "DBMS"))
	require.NoError(t, err)
	_, err = svc.Append(context.Background(), email, ListCompleted, entry("BCA", 2, "DBMS"))
	assert.NoError(t, err, "the three lists are independent")
}

func TestAppendStampsEntry(t *testing.T) {
	svc := NewService(newFakeStore())
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	e, err := svc.Append(context.Background(), email, ListSubjects, entry("BCA", 2, "DBMS"))
	require.NoError(t, err)
	assert.Equal(t, "1740819600000", e.ID, "millisecond timestamp id")
	assert.Equal(t, email, e.TeacherEmail)
	assert.Equal(t, fixed, e.CreatedAt)
}

func TestAppendIDsUniquePerList(t *testing.T) {
	svc := NewService(newFakeStore())
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed } // same millisecond for both appends

	a, err := svc.Append(context.Background(), email, ListQueue, entry("BCA", 2, "DBMS"))
	require.NoError(t, err)
	b, err := svc.Append(context.Background(), email, ListQueue, entry("BCA", 2, "OS"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAppendReplacesTakenClientID(t *testing.T) {
	svc := NewService(newFakeStore())

	a, err := svc.Append(context.Background(), email, ListQueue, Entry{ID: "dup", Stream: "BCA", Semester: 2, Subject: "DBMS"})
	require.NoError(t, err)
	assert.Equal(t, "dup", a.ID)

	// A colliding client id would make Remove delete both entries.
	b, err := svc.Append(context.Background(), email, ListQueue, Entry{ID: "dup", Stream: "BCA", Semester: 2, Subject: "OS"})
	require.NoError(t, err)
	assert.NotEqual(t, "dup", b.ID)

	require.NoError(t, svc.Remove(context.Background(), email, ListQueue, "dup"))
	entries, err := svc.Entries(context.Background(), email, ListQueue)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OS", entries[0].Subject)
}

func TestRemoveByID(t *testing.T) {
	svc := NewService(newFakeStore())

	a, err := svc.Append(context.Background(), email, ListQueue, entry("BCA", 2, "DBMS"))
	require.NoError(t, err)
	_, err = svc.Append(context.Background(), email, ListQueue, entry("BCA", 2, "OS"))
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), email, ListQueue, a.ID))
	entries, err := svc.Entries(context.Background(), email, ListQueue)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OS", entries[0].Subject)

	assert.ErrorIs(t, svc.Remove(context.Background(), email, ListQueue, a.ID), apperr.ErrNotFound)
}

func TestEntriesOnFreshTeacher(t *testing.T) {
	svc := NewService(newFakeStore())
	entries, err := svc.Entries(context.Background(), email, ListCompleted)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestValidation(t *testing.T) {
	svc := NewService(newFakeStore())

	_, err := svc.Append(context.Background(), email, List("bogus"), entry("BCA", 2, "DBMS"))
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Append(context.Background(), email, ListQueue, entry("", 2, "DBMS"))
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Append(context.Background(), email, ListQueue, entry("BCA", 0, "DBMS"))
	assert.True(t, apperr.IsValidation(err))

	assert.True(t, apperr.IsValidation(svc.EnsureProfile(context.Background(), "", "", "")))
}
