package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classregister/internal/apperr"
	"classregister/internal/session"
)

type submitRequest struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
	// Pointer so an omitted list is rejected while an empty one (nobody
	// present) passes through.
	StudentsPresent *[]string `json:"studentsPresent" binding:"required"`
	TotalStudents   *int      `json:"totalStudents" binding:"required"`
}

// SubmitSession records one class meeting's attendance.
func (h *Handler) SubmitSession(c *gin.Context) {
	stream, semester, subject, err := classCtx(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("date, time, studentsPresent and totalStudents are required"))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		fail(c, apperr.Validationf("date must look like 2006-01-02"))
		return
	}
	created, err := h.sessions.Submit(c.Request.Context(), session.Session{
		Stream:          stream,
		Semester:        semester,
		Subject:         subject,
		Date:            date,
		TimeSlot:        req.Time,
		StudentsPresent: *req.StudentsPresent,
		TotalStudents:   *req.TotalStudents,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"session": created})
}

// FullRegister returns the dense grid for a stream/semester/subject.
func (h *Handler) FullRegister(c *gin.Context) {
	stream, semester, subject, err := classCtx(c)
	if err != nil {
		fail(c, err)
		return
	}
	view, err := h.registers.BuildFullRegister(c.Request.Context(), stream, semester, subject)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"register": view})
}

// DateRegister returns the sessions of a single day, or the roster alone
// when nothing was recorded.
func (h *Handler) DateRegister(c *gin.Context) {
	stream, semester, subject, err := classCtx(c)
	if err != nil {
		fail(c, err)
		return
	}
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		fail(c, apperr.Validationf("date must look like 2006-01-02"))
		return
	}
	view, err := h.registers.BuildSingleDateRegister(c.Request.Context(), stream, semester, subject, date)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"attendance": view})
}

type updateRequest struct {
	StudentsPresent []string `json:"studentsPresent"`
	TotalStudents   *int     `json:"totalStudents" binding:"required"`
}

// UpdateSession replaces one session's present list and roster size.
func (h *Handler) UpdateSession(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("totalStudents is required"))
		return
	}
	updated, err := h.sessions.UpdateSession(c.Request.Context(), c.Param("id"), req.StudentsPresent, *req.TotalStudents)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"session": updated})
}

type bulkRequest struct {
	Updates []session.Update `json:"updates" binding:"required"`
}

// BulkUpdate applies independent per-session corrections; partial success is
// part of the contract and reported, never swallowed.
func (h *Handler) BulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("updates are required"))
		return
	}
	res, err := h.sessions.BulkUpdate(c.Request.Context(), req.Updates)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"requested":     res.Requested,
		"modifiedCount": res.ModifiedCount,
		"failures":      res.Failures,
	})
}

// DeleteSession removes one session. A missing id is reported, not an error.
func (h *Handler) DeleteSession(c *gin.Context) {
	removed, err := h.sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": removed})
}

type deleteManyRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// DeleteSessions removes a selection of sessions.
func (h *Handler) DeleteSessions(c *gin.Context) {
	var req deleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("ids are required"))
		return
	}
	count, err := h.sessions.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deletedCount": count})
}

// Stats returns per-subject aggregates for a stream and semester.
func (h *Handler) Stats(c *gin.Context) {
	stream := c.Param("stream")
	semester, err := strconv.Atoi(c.Param("semester"))
	if err != nil {
		fail(c, apperr.Validationf("semester must be a number"))
		return
	}
	stats, err := h.sessions.Stats(c.Request.Context(), stream, semester)
	if err != nil {
		fail(c, err)
		return
	}
	if stats == nil {
		stats = []session.SubjectStats{}
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}
