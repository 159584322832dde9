package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
)

// Sweep names used as metric labels and lock keys.
const (
	SweepExpiry  = "expiry"
	SweepRestore = "restore"
	SweepRenewal = "renewal"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	sweepRuns            *prometheus.CounterVec
	sweepTransitions     *prometheus.CounterVec
	sweepDuration        *prometheus.HistogramVec
	renewalsCreated      prometheus.Counter
	ledgerWrites         *prometheus.CounterVec
	policyRejections     *prometheus.CounterVec
	notificationsSent    prometheus.Counter
	notificationFailures prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	sweepRunCount        uint64
	sweepFailureCount    uint64
	renewalCount         uint64
	policyRejectionCount uint64
	notifyFailureCount   uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sweep_runs_total",
		Help: "Sweep invocations by sweep and outcome",
	}, []string{"sweep", "outcome"})

	sweepTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sweep_transitions_total",
		Help: "Rows transitioned by sweeps",
	}, []string{"sweep", "entity"})

	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_sweep_duration_seconds",
		Help:    "Duration of sweep runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"})

	renewalsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_renewal_dues_created_total",
		Help: "Scheduled monthly dues created by the renewal sweep",
	})

	ledgerWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_written_total",
		Help: "Ledger entries written by kind",
	}, []string{"kind"})

	policyRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_policy_rejections_total",
		Help: "Enrollment writes rejected by policy",
	}, []string{"rule"})

	notificationsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_notifications_sent_total",
		Help: "Notification events persisted",
	})

	notificationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_notification_failures_total",
		Help: "Notification events that could not be persisted",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sweepRuns, sweepTransitions, sweepDuration,
		renewalsCreated, ledgerWrites, policyRejections, notificationsSent, notificationFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		sweepRuns:            sweepRuns,
		sweepTransitions:     sweepTransitions,
		sweepDuration:        sweepDuration,
		renewalsCreated:      renewalsCreated,
		ledgerWrites:         ledgerWrites,
		policyRejections:     policyRejections,
		notificationsSent:    notificationsSent,
		notificationFailures: notificationFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveSweep records one sweep run. outcome is "ok", "partial", "failed" or "skipped".
func (m *MetricsService) ObserveSweep(sweep, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(sweep, outcome).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
	atomic.AddUint64(&m.sweepRunCount, 1)
	if outcome == "failed" || outcome == "partial" {
		atomic.AddUint64(&m.sweepFailureCount, 1)
	}
}

// AddTransitions counts rows a sweep moved between states.
func (m *MetricsService) AddTransitions(sweep, entity string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepTransitions.WithLabelValues(sweep, entity).Add(float64(n))
}

// IncRenewalsCreated counts scheduled monthly dues created.
func (m *MetricsService) IncRenewalsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.renewalsCreated.Add(float64(n))
	atomic.AddUint64(&m.renewalCount, uint64(n))
}

// IncLedgerWrite counts one ledger entry written. kind is "paid" or "scheduled_due".
func (m *MetricsService) IncLedgerWrite(kind string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(kind).Inc()
}

// IncPolicyRejection counts an enrollment rejected by rule.
func (m *MetricsService) IncPolicyRejection(rule string) {
	if m == nil {
		return
	}
	m.policyRejections.WithLabelValues(rule).Inc()
	atomic.AddUint64(&m.policyRejectionCount, 1)
}

// IncNotification records a notification outcome.
func (m *MetricsService) IncNotification(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.notificationsSent.Inc()
		return
	}
	m.notificationFailures.Inc()
	atomic.AddUint64(&m.notifyFailureCount, 1)
}

// Snapshot returns aggregated counters for the readiness endpoint.
func (m *MetricsService) Snapshot() dto.MetricsSnapshot {
	if m == nil {
		return dto.MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return dto.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SweepRuns:                atomic.LoadUint64(&m.sweepRunCount),
		SweepFailures:            atomic.LoadUint64(&m.sweepFailureCount),
		RenewalsCreated:          atomic.LoadUint64(&m.renewalCount),
		PolicyRejections:         atomic.LoadUint64(&m.policyRejectionCount),
		NotificationFailures:     atomic.LoadUint64(&m.notifyFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
