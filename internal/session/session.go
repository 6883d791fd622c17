// Package session persists class-meeting attendance records and applies
// teacher corrections to them. One Session is one class meeting: which
// students were present, out of how many, for a stream/semester/subject on a
// given date and period slot.
package session

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"classregister/internal/apperr"
)

// Semester bounds accepted on session writes.
const (
	MinSemester = 1
	MaxSemester = 8
)

// timeSlotPattern enforces a lexically sortable period label like
// "10:00 AM - 11:00 AM". Labels are free text upstream; validating the shape
// at write time keeps same-day ordering deterministic.
var timeSlotPattern = regexp.MustCompile(`^(0?[1-9]|1[0-2]):[0-5][0-9] (AM|PM) - (0?[1-9]|1[0-2]):[0-5][0-9] (AM|PM)$`)

// Session is one recorded class meeting.
type Session struct {
	ID              string    `json:"id"`
	Stream          string    `json:"stream"`
	Semester        int       `json:"semester"`
	Subject         string    `json:"subject"`
	Date            time.Time `json:"date"`
	TimeSlot        string    `json:"time"`
	StudentsPresent []string  `json:"studentsPresent"`
	TotalStudents   int       `json:"totalStudents"`
	PresentCount    int       `json:"presentCount"`
	AbsentCount     int       `json:"absentCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Normalize deduplicates and sorts the present list and zeroes the date's
// time-of-day (UTC) so day-range queries behave. A nil present list stays
// nil so Validate can tell an omitted list from an explicitly empty one.
func (s *Session) Normalize() {
	s.Stream = strings.TrimSpace(s.Stream)
	s.Subject = strings.TrimSpace(s.Subject)
	s.TimeSlot = strings.TrimSpace(s.TimeSlot)
	if s.StudentsPresent != nil {
		s.StudentsPresent = dedupe(s.StudentsPresent)
	}
	if !s.Date.IsZero() {
		s.Date = StartOfDay(s.Date)
	}
}

// RecomputeCounts derives presentCount and absentCount from the present list
// and roster size. Counts are derived state, never trusted as source of truth.
func (s *Session) RecomputeCounts() {
	s.PresentCount = len(s.StudentsPresent)
	s.AbsentCount = s.TotalStudents - s.PresentCount
}

// Validate checks the fields required on submission. Counts must already be
// consistent (call RecomputeCounts first).
func (s Session) Validate() error {
	switch {
	case s.Stream == "":
		return apperr.Validationf("stream is required")
	case s.Semester < MinSemester || s.Semester > MaxSemester:
		return apperr.Validationf("semester must be between %d and %d", MinSemester, MaxSemester)
	case s.Subject == "":
		return apperr.Validationf("subject is required")
	case s.Date.IsZero():
		return apperr.Validationf("date is required")
	case s.TimeSlot == "":
		return apperr.Validationf("time is required")
	case !timeSlotPattern.MatchString(s.TimeSlot):
		return apperr.Validationf("time must look like \"10:00 AM - 11:00 AM\"")
	// An explicitly empty list (nobody present) is valid; an omitted one is not.
	case s.StudentsPresent == nil:
		return apperr.Validationf("studentsPresent is required")
	case s.TotalStudents < 0:
		return apperr.Validationf("totalStudents must not be negative")
	case s.AbsentCount < 0:
		return apperr.Validationf("more students present (%d) than totalStudents (%d)", s.PresentCount, s.TotalStudents)
	}
	return nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayRange returns [startOfDay, endOfDay) for t in UTC.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.Add(24 * time.Hour)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Filter selects sessions for queries. Zero values mean "any".
type Filter struct {
	Stream   string
	Semester int
	Subject  string
	From     time.Time // inclusive
	To       time.Time // exclusive
	// OrderByCreated sorts by insertion time descending instead of the
	// default (date, time_slot) ascending register order.
	OrderByCreated bool
}

// Patch carries a partial session update; nil fields are left untouched.
// The store applies it as a single-row merge and recomputes nothing; the
// caller must supply consistent counts.
type Patch struct {
	StudentsPresent []string
	TotalStudents   *int
	PresentCount    *int
	AbsentCount     *int
	Date            *time.Time
	TimeSlot        *string
}

// SubjectStats is the per-subject aggregate over a stream and semester.
type SubjectStats struct {
	Subject       string  `json:"subject"`
	TotalClasses  int     `json:"totalClasses"`
	TotalPresent  int     `json:"totalPresent"`
	TotalAbsent   int     `json:"totalAbsent"`
	AvgAttendance float64 `json:"avgAttendance"`
}

// AggregateSessions rolls sessions up per subject, ordered by subject name.
// Sessions with an empty roster carry no attendance signal: they count toward
// totalClasses but are excluded from the average rather than dragging it to
// zero. A subject whose every session has an empty roster averages 0.
func AggregateSessions(sessions []Session) []SubjectStats {
	stats := map[string]*SubjectStats{}
	ratioSum := map[string]float64{}
	ratioCount := map[string]int{}
	for _, s := range sessions {
		st, ok := stats[s.Subject]
		if !ok {
			st = &SubjectStats{Subject: s.Subject}
			stats[s.Subject] = st
		}
		st.TotalClasses++
		st.TotalPresent += s.PresentCount
		st.TotalAbsent += s.AbsentCount
		if s.TotalStudents > 0 {
			ratioSum[s.Subject] += float64(s.PresentCount) / float64(s.TotalStudents)
			ratioCount[s.Subject]++
		}
	}

	subjects := make([]string, 0, len(stats))
	for subject := range stats {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	out := make([]SubjectStats, 0, len(subjects))
	for _, subject := range subjects {
		st := stats[subject]
		if n := ratioCount[subject]; n > 0 {
			st.AvgAttendance = round2(ratioSum[subject] / float64(n) * 100)
		}
		out = append(out, *st)
	}
	return out
}
