package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, actorID string, req service.EnrollRequest) (*dto.EnrollmentResult, error)
	Update(ctx context.Context, actorID, id string, req service.UpdateEnrollmentRequest) (*models.Enrollment, error)
	Withdraw(ctx context.Context, actorID, id string) (*models.Enrollment, error)
	Delete(ctx context.Context, actorID, id string) error
}

type enrollmentBalanceReader interface {
	EnrollmentBalance(ctx context.Context, enrollmentID string) (*dto.EnrollmentBalance, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	balances    enrollmentBalanceReader
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService, balances enrollmentBalanceReader) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, balances: balances}
}

// Enroll godoc
// @Summary Enroll a student into a session
// @Description Rejected with POLICY_VIOLATION when the student already holds an Active enrollment.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update enrollment status, due date, discount or notes
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	var req service.UpdateEnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Withdraw godoc
// @Summary Withdraw an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/withdraw [post]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	enrollment, err := h.enrollments.Withdraw(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Delete godoc
// @Summary Delete an enrollment and its ledger entries
// @Tags Enrollments
// @Param id path string true "Enrollment ID"
// @Success 204
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Balance godoc
// @Summary Enrollment fee balance
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/balance [get]
func (h *EnrollmentHandler) Balance(c *gin.Context) {
	balance, err := h.balances.EnrollmentBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}
