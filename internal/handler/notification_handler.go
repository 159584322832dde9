package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

type notificationReader interface {
	Unread(ctx context.Context, actorID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, actorID string, req service.MarkReadRequest) (int64, error)
}

// NotificationHandler lets operators read their notification feed.
type NotificationHandler struct {
	notifications notificationReader
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications notificationReader) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Unread godoc
// @Summary Unread notifications of the calling operator
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum items"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) Unread(c *gin.Context) {
	items, err := h.notifications.Unread(c.Request.Context(), actorFromContext(c), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// MarkRead godoc
// @Summary Mark notifications read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.MarkReadRequest true "Notification IDs"
// @Success 200 {object} response.Envelope
// @Router /notifications/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req service.MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}
	changed, err := h.notifications.MarkRead(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": changed}, nil)
}
