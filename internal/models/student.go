package models

import "time"

// StudentStatus is the overall standing of a student across all enrollments.
type StudentStatus string

// Student statuses. Completed marks an ex-student.
const (
	StudentStatusActive    StudentStatus = "Active"
	StudentStatusInactive  StudentStatus = "Inactive"
	StudentStatusCompleted StudentStatus = "Completed"
)

// InactiveReason qualifies an Inactive student.
type InactiveReason string

// Inactivation reasons.
const (
	InactiveReasonFreeze   InactiveReason = "Freeze"
	InactiveReasonExpelled InactiveReason = "Expelled"
)

// Valid reports whether r is a known reason.
func (r InactiveReason) Valid() bool {
	return r == InactiveReasonFreeze || r == InactiveReasonExpelled
}

// Student is a learner registered with the institute.
type Student struct {
	ID             string          `db:"id" json:"id"`
	RollNo         *string         `db:"rollno" json:"rollno,omitempty"`
	FullName       string          `db:"full_name" json:"full_name"`
	FatherName     string          `db:"father_name" json:"father_name"`
	Email          string          `db:"email" json:"email"`
	Phone          string          `db:"phone" json:"phone"`
	Status         StudentStatus   `db:"status" json:"status"`
	InactiveReason *InactiveReason `db:"inactive_reason" json:"inactive_reason,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// HasRollNo reports whether a roll number has been issued.
func (s Student) HasRollNo() bool {
	return s.RollNo != nil && *s.RollNo != ""
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
