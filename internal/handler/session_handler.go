package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

type sessionService interface {
	List(ctx context.Context, status models.SessionStatus) ([]models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, actorID string, req service.CreateSessionRequest) (*models.Session, error)
}

type sessionLifecycle interface {
	SetSessionStatus(ctx context.Context, actorID, sessionID string, req service.SetSessionStatusRequest) (*models.Session, error)
	ExpireSessions(ctx context.Context, today time.Time) (*dto.ExpirySummary, error)
	RestoreSessions(ctx context.Context, actorID string, req service.RestoreRequest) (*dto.RestoreSummary, error)
	ReconcileStudentStatuses(ctx context.Context) (*dto.ReconcileSummary, error)
}

// SessionHandler exposes course sessions and their lifecycle transitions.
type SessionHandler struct {
	sessions  sessionService
	lifecycle sessionLifecycle
	zone      *clock.Zone
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService, lifecycle sessionLifecycle, zone *clock.Zone) *SessionHandler {
	return &SessionHandler{sessions: sessions, lifecycle: lifecycle, zone: zone}
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param status query string false "Active, Inactive or Completed"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), models.SessionStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Create godoc
// @Summary Create session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// SetStatus godoc
// @Summary Manually activate or deactivate a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.SetSessionStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/status [put]
func (h *SessionHandler) SetStatus(c *gin.Context) {
	var req service.SetSessionStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.lifecycle.SetSessionStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Expire godoc
// @Summary Complete sessions whose end date has passed
// @Tags Sessions
// @Produce json
// @Param today query string false "Override today (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /sessions/expire [post]
func (h *SessionHandler) Expire(c *gin.Context) {
	today, ok := sweepDateParam(c, h.zone)
	if !ok {
		return
	}
	summary, err := h.lifecycle.ExpireSessions(c.Request.Context(), today)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Restore godoc
// @Summary Restore Completed sessions to Active
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.RestoreRequest true "Sessions to restore"
// @Success 200 {object} response.Envelope
// @Router /sessions/restore [post]
func (h *SessionHandler) Restore(c *gin.Context) {
	var req service.RestoreRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.lifecycle.RestoreSessions(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"dry_run": req.DryRun})
}

// Reconcile godoc
// @Summary Mark students whose sessions all completed as Completed
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/reconcile [post]
func (h *SessionHandler) Reconcile(c *gin.Context) {
	summary, err := h.lifecycle.ReconcileStudentStatuses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
