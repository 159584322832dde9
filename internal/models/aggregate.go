package models

// EnrollmentLedger groups an enrollment with its session and ledger rows for balance math.
type EnrollmentLedger struct {
	Enrollment Enrollment
	Session    Session
	Entries    []LedgerEntry
}

// StudentLedger is the full set of enrollments for one student.
type StudentLedger struct {
	Student     Student
	Enrollments []EnrollmentLedger
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
