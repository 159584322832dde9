package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

type ledgerService interface {
	Entries(ctx context.Context, enrollmentID string) ([]dto.LedgerEntryView, error)
	RecordPayment(ctx context.Context, actorID, enrollmentID string, req service.PaymentRequest) (*dto.LedgerEntryView, error)
	ScheduleDue(ctx context.Context, actorID, enrollmentID string, req service.ScheduleDueRequest) (*dto.LedgerEntryView, bool, error)
	PlanInstallments(ctx context.Context, actorID, enrollmentID string, req service.InstallmentPlanRequest) (*dto.InstallmentPlanResult, error)
	SettleDue(ctx context.Context, actorID, entryID string, req service.SettleRequest) (*dto.LedgerEntryView, error)
}

// LedgerHandler exposes payment and scheduled due endpoints.
type LedgerHandler struct {
	ledger ledgerService
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Entries godoc
// @Summary List ledger entries of an enrollment
// @Tags Ledger
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/ledger [get]
func (h *LedgerHandler) Entries(c *gin.Context) {
	entries, err := h.ledger.Entries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// RecordPayment godoc
// @Summary Record a fee payment
// @Tags Ledger
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.PaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/payments [post]
func (h *LedgerHandler) RecordPayment(c *gin.Context) {
	var req service.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.ledger.RecordPayment(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// ScheduleDue godoc
// @Summary Schedule a due date
// @Description Idempotent: an existing due on the same date returns 200 with created=false.
// @Tags Ledger
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ScheduleDueRequest true "Due date"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/dues [post]
func (h *LedgerHandler) ScheduleDue(c *gin.Context) {
	var req service.ScheduleDueRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, created, err := h.ledger.ScheduleDue(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !created {
		response.JSON(c, http.StatusOK, nil, nil, map[string]interface{}{"created": false})
		return
	}
	response.Created(c, entry, map[string]interface{}{"created": true})
}

// PlanInstallments godoc
// @Summary Split the fee into monthly installments
// @Tags Ledger
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.InstallmentPlanRequest true "Plan"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/installments [post]
func (h *LedgerHandler) PlanInstallments(c *gin.Context) {
	var req service.InstallmentPlanRequest
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.ledger.PlanInstallments(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// SettleDue godoc
// @Summary Collect a scheduled due
// @Tags Ledger
// @Accept json
// @Produce json
// @Param entryId path string true "Ledger entry ID"
// @Param payload body service.SettleRequest true "Amount collected"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ledger/{entryId}/settle [post]
func (h *LedgerHandler) SettleDue(c *gin.Context) {
	var req service.SettleRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.ledger.SettleDue(c.Request.Context(), actorFromContext(c), c.Param("entryId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
