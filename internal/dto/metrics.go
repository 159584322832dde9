package dto

import "time"

// MetricsSnapshot summarises process counters for the readiness endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SweepRuns                uint64    `json:"sweep_runs"`
	SweepFailures            uint64    `json:"sweep_failures"`
	RenewalsCreated          uint64    `json:"renewals_created"`
	PolicyRejections         uint64    `json:"policy_rejections"`
	NotificationFailures     uint64    `json:"notification_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
