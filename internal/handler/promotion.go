package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PromotionPreview reports what a run would do, read-only.
func (h *Handler) PromotionPreview(c *gin.Context) {
	preview, err := h.promotion.Preview(c.Request.Context(), c.Param("stream"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"stream":            preview.Stream,
		"totalStudents":     preview.TotalStudents,
		"semesterBreakdown": preview.SemesterBreakdown,
		"promotionPreview":  preview.PromotionPreview,
	})
}

// PromotionExecute runs the promotion for a stream.
func (h *Handler) PromotionExecute(c *gin.Context) {
	res, err := h.promotion.Execute(c.Request.Context(), c.Param("stream"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"stream":         res.Stream,
		"totalPromoted":  res.TotalPromoted,
		"totalGraduated": res.TotalGraduated,
		"promotionFlow":  res.PromotionFlow,
	})
}

// PromotionCanUndo reports whether the last run is still reversible.
func (h *Handler) PromotionCanUndo(c *gin.Context) {
	status, err := h.promotion.CanUndo(c.Request.Context(), c.Param("stream"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"canUndo":          status.CanUndo,
		"hoursOld":         status.HoursOld,
		"studentsInBackup": status.StudentsInBackup,
	})
}

// PromotionUndo restores the pre-promotion roster from the backup.
func (h *Handler) PromotionUndo(c *gin.Context) {
	res, err := h.promotion.Undo(c.Request.Context(), c.Param("stream"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"stream":           res.Stream,
		"studentsRestored": res.StudentsRestored,
	})
}
