package models

import "time"

// VerificationStatus mirrors the most recently decided request for the user.
type VerificationStatus string

const (
	StatusNotSubmitted VerificationStatus = "not_submitted"
	StatusPending      VerificationStatus = "pending"
	StatusApproved     VerificationStatus = "approved"
	StatusRejected     VerificationStatus = "rejected"
)

// VerificationState is the verification subset of the user entity. Verified
// must equal Status == approved at all times; the reconciler repairs any
// window where the two records diverged.
type VerificationState struct {
	UserID         string             `json:"userId"`
	Status         VerificationStatus `json:"verificationStatus"`
	Verified       bool               `json:"verified"`
	ApprovedAt     *time.Time         `json:"approvedAt,omitempty"`
	RejectedAt     *time.Time         `json:"rejectedAt,omitempty"`
	LastSubmission *time.Time         `json:"lastVerificationSubmission,omitempty"`
}

// Consistent reports whether the Verified flag agrees with the status.
func (s *VerificationState) Consistent() bool {
	return s.Verified == (s.Status == StatusApproved)
}
