package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

type reportReader interface {
	Overdue(ctx context.Context, today time.Time) ([]dto.OverdueEnrollment, error)
	PendingDues(ctx context.Context) ([]dto.PendingDuesDigest, error)
}

type renewalRunner interface {
	ProcessRenewals(ctx context.Context, opts service.RenewalOptions) (*dto.RenewalSummary, error)
}

// RunRenewalsRequest triggers a renewal sweep by hand.
type RunRenewalsRequest struct {
	DaysAhead int  `json:"days_ahead"`
	DryRun    bool `json:"dry_run"`
}

// ReportHandler exposes balance reports and the manual renewal trigger.
type ReportHandler struct {
	reports  reportReader
	renewals renewalRunner
	zone     *clock.Zone
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportReader, renewals renewalRunner, zone *clock.Zone) *ReportHandler {
	return &ReportHandler{reports: reports, renewals: renewals, zone: zone}
}

// Overdue godoc
// @Summary Enrollments past their due date with an outstanding balance
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Param today query string false "Override today (YYYY-MM-DD)"
// @Param format query string false "csv for a file download"
// @Success 200 {object} response.Envelope
// @Router /reports/overdue [get]
func (h *ReportHandler) Overdue(c *gin.Context) {
	today, ok := todayParam(c, h.zone)
	if !ok {
		return
	}
	items, err := h.reports.Overdue(c.Request.Context(), today)
	if err != nil {
		response.Error(c, err)
		return
	}
	if wantsCSV(c) {
		sendCSV(c, "overdue-"+today.Format(dateLayout)+".csv", overdueTable(items))
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"today": today.Format(dateLayout)})
}

// PendingDues godoc
// @Summary Scheduled dues grouped by student
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Param format query string false "csv for a file download"
// @Success 200 {object} response.Envelope
// @Router /reports/pending-dues [get]
func (h *ReportHandler) PendingDues(c *gin.Context) {
	digests, err := h.reports.PendingDues(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if wantsCSV(c) {
		sendCSV(c, "pending-dues.csv", pendingDuesTable(digests))
		return
	}
	response.JSON(c, http.StatusOK, digests, nil)
}

// RunRenewals godoc
// @Summary Schedule upcoming monthly dues
// @Tags Renewals
// @Accept json
// @Produce json
// @Param payload body RunRenewalsRequest false "Options"
// @Success 200 {object} response.Envelope
// @Router /renewals/run [post]
func (h *ReportHandler) RunRenewals(c *gin.Context) {
	var req RunRenewalsRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	today, ok := sweepDateParam(c, h.zone)
	if !ok {
		return
	}
	summary, err := h.renewals.ProcessRenewals(c.Request.Context(), service.RenewalOptions{
		Today:     today,
		DaysAhead: req.DaysAhead,
		DryRun:    req.DryRun,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
