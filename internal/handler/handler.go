// Package handler exposes the services over gin. Every response carries a
// success flag; failures add a human-readable message and nothing else.
package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classregister/internal/apperr"
	"classregister/internal/auth"
	"classregister/internal/promotion"
	"classregister/internal/register"
	"classregister/internal/session"
	"classregister/internal/teacher"
)

// Handler carries the wired services.
type Handler struct {
	sessions  *session.Service
	registers *register.Builder
	promotion *promotion.Engine
	teachers  *teacher.Service

	jwtIssuer  string
	jwtKey     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// New builds a handler over the services.
func New(sessions *session.Service, registers *register.Builder, prom *promotion.Engine, teachers *teacher.Service, jwtIssuer, jwtKey string, accessTTL, refreshTTL time.Duration) *Handler {
	return &Handler{
		sessions:   sessions,
		registers:  registers,
		promotion:  prom,
		teachers:   teachers,
		jwtIssuer:  jwtIssuer,
		jwtKey:     jwtKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Routes mounts everything under /api. Teacher and admin routes sit behind
// bearer auth; token exchange is open.
func (h *Handler) Routes(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/auth/token", h.IssueToken)

	authed := api.Group("", auth.RequireAuth(h.jwtKey, h.jwtIssuer))

	authed.POST("/attendance/:stream/:semester/:subject", h.SubmitSession)
	authed.GET("/attendance/:stream/:semester/:subject/register", h.FullRegister)
	authed.GET("/attendance/:stream/:semester/:subject/date/:date", h.DateRegister)
	authed.PUT("/sessions/:id", h.UpdateSession)
	authed.PUT("/sessions", h.BulkUpdate)
	authed.DELETE("/sessions/:id", h.DeleteSession)
	authed.POST("/sessions/delete", h.DeleteSessions)
	authed.GET("/stats/:stream/:semester", h.Stats)

	authed.GET("/promotion/:stream/preview", h.PromotionPreview)
	authed.POST("/promotion/:stream/execute", h.PromotionExecute)
	authed.GET("/promotion/:stream/can-undo", h.PromotionCanUndo)
	authed.POST("/promotion/:stream/undo", h.PromotionUndo)

	for _, l := range []struct {
		path string
		list teacher.List
	}{
		{"subjects", teacher.ListSubjects},
		{"queue", teacher.ListQueue},
		{"completed", teacher.ListCompleted},
	} {
		list := l.list
		authed.GET("/teacher/"+l.path, func(c *gin.Context) { h.listEntries(c, list) })
		authed.POST("/teacher/"+l.path, func(c *gin.Context) { h.appendEntry(c, list) })
		authed.DELETE("/teacher/"+l.path+"/:id", func(c *gin.Context) { h.removeEntry(c, list) })
	}
}

func ok(c *gin.Context, status int, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["success"] = true
	c.JSON(status, payload)
}

// fail maps the error taxonomy onto status codes. Infrastructure errors are
// logged and surfaced as a generic message without internal detail.
func fail(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": ve.Msg})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "not found"})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "already exists"})
	case errors.Is(err, apperr.ErrUndoExpired):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "undo window expired"})
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
	}
}

// classCtx reads the stream/semester/subject route params shared by the
// attendance routes.
func classCtx(c *gin.Context) (string, int, string, error) {
	stream := c.Param("stream")
	subject := c.Param("subject")
	semester, err := strconv.Atoi(c.Param("semester"))
	if err != nil {
		return "", 0, "", apperr.Validationf("semester must be a number")
	}
	if stream == "" {
		return "", 0, "", apperr.Validationf("stream is required")
	}
	return stream, semester, subject, nil
}

// teacherEmail resolves the caller's teacher identity from the token.
func teacherEmail(c *gin.Context) (string, error) {
	email := auth.EmailFromContext(c)
	if email == "" {
		return "", apperr.Validationf("token carries no teacher email")
	}
	return email, nil
}

type tokenRequest struct {
	UID   string `json:"uid" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

// IssueToken exchanges an identity-provider user (opaque uid plus email) for
// service tokens and makes sure the teacher profile exists.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("uid and email are required"))
		return
	}
	if err := h.teachers.EnsureProfile(c.Request.Context(), req.Email, req.UID, req.Name); err != nil {
		fail(c, err)
		return
	}
	tokens, err := auth.Issue(req.UID, req.Email, "teacher", h.jwtIssuer, h.jwtKey, h.accessTTL, h.refreshTTL)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresAt":    tokens.AccessExp.Unix(),
	})
}
