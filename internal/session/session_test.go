package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classregister/internal/apperr"
)

func TestNormalizeDedupesAndZeroesDate(t *testing.T) {
	s := Session{
		Stream:          " BCA ",
		Subject:         "DBMS",
		Date:            time.Date(2025, 1, 10, 14, 35, 12, 0, time.UTC),
		StudentsPresent: []string{"S2", "S1", "S2", "", " S3 "},
	}
	s.Normalize()

	assert.Equal(t, "BCA", s.Stream)
	assert.Equal(t, []string{"S1", "S2", "S3"}, s.StudentsPresent)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), s.Date)
}

func TestNormalizeKeepsNilPresentList(t *testing.T) {
	s := Session{Stream: "BCA", Subject: "DBMS"}
	s.Normalize()
	assert.Nil(t, s.StudentsPresent, "an omitted list must stay distinguishable from an empty one")
}

func TestRecomputeCountsInvariant(t *testing.T) {
	s := Session{StudentsPresent: []string{"S1", "S2"}, TotalStudents: 5}
	s.RecomputeCounts()

	assert.Equal(t, 2, s.PresentCount)
	assert.Equal(t, 3, s.AbsentCount)
	assert.Equal(t, s.TotalStudents, s.PresentCount+s.AbsentCount)
}

func TestValidate(t *testing.T) {
	valid := Session{
		Stream:          "BCA",
		Semester:        2,
		Subject:         "DBMS",
		Date:            time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		TimeSlot:        "10:00 AM - 11:00 AM",
		StudentsPresent: []string{"S1"},
		TotalStudents:   3,
	}
	valid.RecomputeCounts()

	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Session) {}},
		{name: "missing stream", mutate: func(s *Session) { s.Stream = "" }, wantErr: true},
		{name: "semester too low", mutate: func(s *Session) { s.Semester = 0 }, wantErr: true},
		{name: "semester too high", mutate: func(s *Session) { s.Semester = 9 }, wantErr: true},
		{name: "missing subject", mutate: func(s *Session) { s.Subject = "" }, wantErr: true},
		{name: "missing date", mutate: func(s *Session) { s.Date = time.Time{} }, wantErr: true},
		{name: "missing time", mutate: func(s *Session) { s.TimeSlot = "" }, wantErr: true},
		{name: "unsortable time label", mutate: func(s *Session) { s.TimeSlot = "morning slot" }, wantErr: true},
		{name: "missing present list", mutate: func(s *Session) { s.StudentsPresent = nil }, wantErr: true},
		{name: "empty present list", mutate: func(s *Session) {
			s.StudentsPresent = []string{}
			s.RecomputeCounts()
		}},
		{name: "negative roster", mutate: func(s *Session) { s.TotalStudents = -1 }, wantErr: true},
		{name: "negative absent", mutate: func(s *Session) { s.AbsentCount = -2 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, apperr.IsValidation(err), "want a validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAggregateSessionsExcludesEmptyRoster(t *testing.T) {
	stats := AggregateSessions([]Session{
		{Subject: "DBMS", PresentCount: 2, AbsentCount: 2, TotalStudents: 4},
		{Subject: "DBMS", PresentCount: 4, AbsentCount: 0, TotalStudents: 4},
		{Subject: "DBMS", PresentCount: 0, AbsentCount: 0, TotalStudents: 0},
		{Subject: "OS", PresentCount: 0, AbsentCount: 0, TotalStudents: 0},
	})
	require.Len(t, stats, 2)

	dbms := stats[0]
	assert.Equal(t, "DBMS", dbms.Subject)
	assert.Equal(t, 3, dbms.TotalClasses, "empty-roster sessions still count as classes")
	assert.Equal(t, 6, dbms.TotalPresent)
	assert.Equal(t, 2, dbms.TotalAbsent)
	assert.Equal(t, 75.0, dbms.AvgAttendance, "average over the two non-empty sessions only, not dragged down by the empty one")

	os := stats[1]
	assert.Equal(t, "OS", os.Subject)
	assert.Equal(t, 1, os.TotalClasses)
	assert.Equal(t, 0.0, os.AvgAttendance)
}

func TestAggregateSessionsOrderedBySubject(t *testing.T) {
	stats := AggregateSessions([]Session{
		{Subject: "OS", PresentCount: 1, AbsentCount: 1, TotalStudents: 2},
		{Subject: "DBMS", PresentCount: 1, AbsentCount: 0, TotalStudents: 1},
	})
	require.Len(t, stats, 2)
	assert.Equal(t, "DBMS", stats[0].Subject)
	assert.Equal(t, "OS", stats[1].Subject)
}

func TestDayRange(t *testing.T) {
	from, to := DayRange(time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), to)
}
