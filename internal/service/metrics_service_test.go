package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshotAndExposition(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/students/:id/balance", 200, 20*time.Millisecond)
	m.ObserveSweep(SweepExpiry, "ok", time.Millisecond)
	m.ObserveSweep(SweepRenewal, "partial", time.Millisecond)
	m.AddTransitions(SweepExpiry, "session", 2)
	m.IncRenewalsCreated(3)
	m.IncPolicyRejection("single_active")
	m.IncNotification(false)
	m.IncLedgerWrite("paid")

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.RequestsTotal)
	assert.EqualValues(t, 2, snap.SweepRuns)
	assert.EqualValues(t, 1, snap.SweepFailures)
	assert.EqualValues(t, 3, snap.RenewalsCreated)
	assert.EqualValues(t, 1, snap.PolicyRejections)
	assert.EqualValues(t, 1, snap.NotificationFailures)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `ledger_sweep_transitions_total{entity="session",sweep="expiry"} 2`))
	assert.True(t, strings.Contains(body, "ledger_renewal_dues_created_total 3"))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveSweep(SweepExpiry, "ok", time.Second)
	m.IncNotification(true)
	assert.Equal(t, uint64(0), m.Snapshot().SweepRuns)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
