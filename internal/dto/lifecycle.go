package dto

// SessionTransition reports one session moved by a sweep or restore.
type SessionTransition struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	Enrollments int    `json:"enrollments"`
	Students    int    `json:"students"`
}

// SweepFailure records an item a sweep could not process.
type SweepFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ExpirySummary is the outcome of an expiry sweep.
type ExpirySummary struct {
	Sessions    []SessionTransition `json:"sessions"`
	Enrollments int                 `json:"enrollments"`
	Students    int                 `json:"students"`
	Failures    []SweepFailure      `json:"failures,omitempty"`
	Skipped     bool                `json:"skipped,omitempty"`
}

// RestoreSummary is the outcome of restoring Completed sessions.
type RestoreSummary struct {
	DryRun      bool                `json:"dry_run"`
	Sessions    []SessionTransition `json:"sessions"`
	Enrollments int                 `json:"enrollments"`
	Students    int                 `json:"students"`
	Skipped     []string            `json:"skipped_enrollments,omitempty"`
	Failures    []SweepFailure      `json:"failures,omitempty"`
}

// ReconcileSummary reports students moved to Completed by reconciliation.
type ReconcileSummary struct {
	Updated  int      `json:"updated"`
	Students []string `json:"students,omitempty"`
}
