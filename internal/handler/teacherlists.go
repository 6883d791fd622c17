package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classregister/internal/apperr"
	"classregister/internal/teacher"
)

func (h *Handler) listEntries(c *gin.Context, list teacher.List) {
	email, err := teacherEmail(c)
	if err != nil {
		fail(c, err)
		return
	}
	entries, err := h.teachers.Entries(c.Request.Context(), email, list)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"entries": entries})
}

type entryRequest struct {
	Stream   string `json:"stream" binding:"required"`
	Semester int    `json:"semester" binding:"required"`
	Subject  string `json:"subject" binding:"required"`
	ID       string `json:"id"`
}

func (h *Handler) appendEntry(c *gin.Context, list teacher.List) {
	email, err := teacherEmail(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("stream, semester and subject are required"))
		return
	}
	entry, err := h.teachers.Append(c.Request.Context(), email, list, teacher.Entry{
		ID:       req.ID,
		Stream:   req.Stream,
		Semester: req.Semester,
		Subject:  req.Subject,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"entry": entry})
}

func (h *Handler) removeEntry(c *gin.Context, list teacher.List) {
	email, err := teacherEmail(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.teachers.Remove(c.Request.Context(), email, list, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}
