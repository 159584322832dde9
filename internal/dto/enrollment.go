package dto

import "github.com/noah-isme/tuition-ledger-api/internal/models"

// EnrollmentResult is returned after a successful enrollment.
type EnrollmentResult struct {
	Enrollment         models.Enrollment `json:"enrollment"`
	RollNo             *string           `json:"rollno,omitempty"`
	RollNoIssued       bool              `json:"rollno_issued"`
	RegistrationWaived bool              `json:"registration_waived"`
}
