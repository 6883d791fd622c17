// Package register reconstructs dense attendance grids from the sparse
// session records: one row per active student, one column per class meeting,
// each cell present or absent by membership in the session's present list.
package register

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"classregister/internal/cache"
	"classregister/internal/roster"
	"classregister/internal/session"
)

// Cell markers in the rendered grid.
const (
	Present = "P"
	Absent  = "A"
)

// SessionSource lists sessions in register order.
type SessionSource interface {
	List(ctx context.Context, f session.Filter) ([]session.Session, error)
}

// RosterSource lists the active roster for a stream and semester.
type RosterSource interface {
	ActiveStudents(ctx context.Context, stream string, semester int) ([]roster.Student, error)
}

// Builder assembles register views, memoizing them in the result cache.
type Builder struct {
	sessions SessionSource
	roster   RosterSource
	cache    *cache.Cache
}

// NewBuilder wires the two stores and the shared result cache.
func NewBuilder(sessions SessionSource, students RosterSource, c *cache.Cache) *Builder {
	return &Builder{sessions: sessions, roster: students, cache: c}
}

// Column describes one session along the register's column axis.
type Column struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	TimeSlot      string    `json:"time"`
	PresentCount  int       `json:"presentCount"`
	AbsentCount   int       `json:"absentCount"`
	TotalStudents int       `json:"totalStudents"`
}

// Row is one student's line across all sessions.
type Row struct {
	StudentID    string   `json:"studentID"`
	Name         string   `json:"name"`
	RollNumber   int      `json:"rollNumber"`
	Attendance   []string `json:"attendance"` // aligned with View.Sessions
	PresentCount int      `json:"presentCount"`
	AbsentCount  int      `json:"absentCount"`
	Percentage   float64  `json:"percentage"`
}

// View is the full register for a stream/semester/subject.
type View struct {
	Stream                   string   `json:"stream"`
	Semester                 int      `json:"semester"`
	Subject                  string   `json:"subject"`
	Sessions                 []Column `json:"sessions"`
	Students                 []Row    `json:"students"`
	TotalSessions            int      `json:"totalSessions"`
	TotalStudents            int      `json:"totalStudents"`
	TotalPossibleAttendances int      `json:"totalPossibleAttendances"`
	AverageAttendance        float64  `json:"averageAttendance"`
}

// BuildFullRegister produces the dense grid plus per-student and register
// aggregates. Either both fetches succeed or the whole call fails; a partial
// view is never cached.
func (b *Builder) BuildFullRegister(ctx context.Context, stream string, semester int, subject string) (View, error) {
	key := cache.Key(cache.PrefixRegister, stream, map[string]string{
		"semester": itoa(semester),
		"subject":  subject,
	})
	if v, ok := b.cache.Get(key); ok {
		if view, ok := v.(View); ok {
			return view, nil
		}
	}

	students, err := b.roster.ActiveStudents(ctx, stream, semester)
	if err != nil {
		return View{}, err
	}
	sessions, err := b.sessions.List(ctx, session.Filter{
		Stream:   stream,
		Semester: semester,
		Subject:  subject,
	})
	if err != nil {
		return View{}, err
	}
	sortStudents(students)
	sortSessions(sessions)

	view := View{
		Stream:                   stream,
		Semester:                 semester,
		Subject:                  subject,
		Sessions:                 columns(sessions),
		TotalSessions:            len(sessions),
		TotalStudents:            len(students),
		TotalPossibleAttendances: len(sessions) * len(students),
	}

	presence := presenceSets(sessions)
	sumPct := 0.0
	for _, st := range students {
		row := Row{
			StudentID:  st.StudentID,
			Name:       st.Name,
			RollNumber: st.RollNumber,
			Attendance: make([]string, 0, len(sessions)),
		}
		for i := range sessions {
			if _, ok := presence[i][st.StudentID]; ok {
				row.Attendance = append(row.Attendance, Present)
				row.PresentCount++
			} else {
				row.Attendance = append(row.Attendance, Absent)
				row.AbsentCount++
			}
		}
		row.Percentage = percentage(row.PresentCount, len(sessions))
		sumPct += row.Percentage
		view.Students = append(view.Students, row)
	}
	if len(students) > 0 {
		view.AverageAttendance = round2(sumPct / float64(len(students)))
	}

	b.cache.Set(key, view)
	return view, nil
}

// DateEntry is one roster student's status in one session of the day.
type DateEntry struct {
	StudentID  string `json:"studentID"`
	Name       string `json:"name"`
	RollNumber int    `json:"rollNumber"`
	Status     string `json:"status"`
}

// DateSession is one class meeting on the requested day. ExtraPresent lists
// present ids that are no longer in the active roster; they stay visible
// rather than being dropped.
type DateSession struct {
	Column
	Entries      []DateEntry `json:"entries"`
	ExtraPresent []string    `json:"extraPresent,omitempty"`
}

// DateView is the single-date register. HasAttendance false means no session
// was recorded that day; the roster is still returned so the caller can offer
// to create one.
type DateView struct {
	Stream        string           `json:"stream"`
	Semester      int              `json:"semester"`
	Subject       string           `json:"subject"`
	Date          time.Time        `json:"date"`
	HasAttendance bool             `json:"hasAttendance"`
	Roster        []roster.Student `json:"roster"`
	Sessions      []DateSession    `json:"sessions,omitempty"`
}

// BuildSingleDateRegister restricts the register to [startOfDay, endOfDay).
// More than one session on a day is legitimate (multiple periods).
func (b *Builder) BuildSingleDateRegister(ctx context.Context, stream string, semester int, subject string, date time.Time) (DateView, error) {
	from, to := session.DayRange(date)
	key := cache.Key(cache.PrefixAttendance, stream, map[string]string{
		"semester": itoa(semester),
		"subject":  subject,
		"date":     from.Format("2006-01-02"),
	})
	if v, ok := b.cache.Get(key); ok {
		if view, ok := v.(DateView); ok {
			return view, nil
		}
	}

	students, err := b.roster.ActiveStudents(ctx, stream, semester)
	if err != nil {
		return DateView{}, err
	}
	sessions, err := b.sessions.List(ctx, session.Filter{
		Stream:   stream,
		Semester: semester,
		Subject:  subject,
		From:     from,
		To:       to,
	})
	if err != nil {
		return DateView{}, err
	}
	sortStudents(students)
	sortSessions(sessions)

	view := DateView{
		Stream:        stream,
		Semester:      semester,
		Subject:       subject,
		Date:          from,
		HasAttendance: len(sessions) > 0,
		Roster:        students,
	}
	rosterIDs := make(map[string]struct{}, len(students))
	for _, st := range students {
		rosterIDs[st.StudentID] = struct{}{}
	}
	for _, s := range sessions {
		ds := DateSession{Column: column(s)}
		present := make(map[string]struct{}, len(s.StudentsPresent))
		for _, id := range s.StudentsPresent {
			present[id] = struct{}{}
			if _, ok := rosterIDs[id]; !ok {
				ds.ExtraPresent = append(ds.ExtraPresent, id)
			}
		}
		for _, st := range students {
			status := Absent
			if _, ok := present[st.StudentID]; ok {
				status = Present
			}
			ds.Entries = append(ds.Entries, DateEntry{
				StudentID:  st.StudentID,
				Name:       st.Name,
				RollNumber: st.RollNumber,
				Status:     status,
			})
		}
		view.Sessions = append(view.Sessions, ds)
	}

	b.cache.Set(key, view)
	return view, nil
}

func columns(sessions []session.Session) []Column {
	out := make([]Column, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, column(s))
	}
	return out
}

func column(s session.Session) Column {
	return Column{
		ID:            s.ID,
		Date:          s.Date,
		TimeSlot:      s.TimeSlot,
		PresentCount:  s.PresentCount,
		AbsentCount:   s.AbsentCount,
		TotalStudents: s.TotalStudents,
	}
}

func presenceSets(sessions []session.Session) []map[string]struct{} {
	sets := make([]map[string]struct{}, len(sessions))
	for i, s := range sessions {
		set := make(map[string]struct{}, len(s.StudentsPresent))
		for _, id := range s.StudentsPresent {
			set[id] = struct{}{}
		}
		sets[i] = set
	}
	return sets
}

func sortStudents(students []roster.Student) {
	sort.Slice(students, func(i, j int) bool {
		return students[i].StudentID < students[j].StudentID
	})
}

// sortSessions orders by date then lexically by time label. Same-day ties
// rely on the validated slot format being sortable as stored.
func sortSessions(sessions []session.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		return sessions[i].TimeSlot < sessions[j].TimeSlot
	})
}

func percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(present) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func itoa(i int) string { return strconv.Itoa(i) }
