package domain

import "time"

// PrescriptionStatus of an uploaded prescription.
type PrescriptionStatus string

const (
	PrescriptionStatusPending    PrescriptionStatus = "pending"
	PrescriptionStatusProcessing PrescriptionStatus = "processing"
	PrescriptionStatusVerified   PrescriptionStatus = "verified"
	PrescriptionStatusRejected   PrescriptionStatus = "rejected"
	PrescriptionStatusExpired    PrescriptionStatus = "expired"
)

// PrescriptionIssue explains why a cart line's prescription is not usable.
type PrescriptionIssue string

const (
	IssueNone        PrescriptionIssue = ""
	IssueMissing     PrescriptionIssue = "prescription_missing"
	IssueNotFound    PrescriptionIssue = "prescription_not_found"
	IssueNotVerified PrescriptionIssue = "prescription_not_verified"
	IssueExpired     PrescriptionIssue = "prescription_expired"
	IssueNotOwned    PrescriptionIssue = "prescription_not_owned"
	IssueNotCovering PrescriptionIssue = "prescription_not_covering"
)

// Prescription metadata. MedicineIDs comes from upstream text extraction.
type Prescription struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	Status            PrescriptionStatus `json:"status"`
	ValidUntil        *time.Time         `json:"valid_until,omitempty"`
	MedicineIDs       []string           `json:"medicine_ids"`
	DoctorName        string             `json:"doctor_name,omitempty"`
	VerificationNotes string             `json:"verification_notes,omitempty"`
	VerifiedBy        string             `json:"verified_by,omitempty"`
	VerifiedAt        *time.Time         `json:"verified_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

var prescriptionTransitions = map[PrescriptionStatus][]PrescriptionStatus{
	PrescriptionStatusPending:    {PrescriptionStatusProcessing, PrescriptionStatusVerified, PrescriptionStatusRejected},
	PrescriptionStatusProcessing: {PrescriptionStatusVerified, PrescriptionStatusRejected},
	PrescriptionStatusVerified:   {PrescriptionStatusExpired},
}

// CanMoveTo reports whether a pharmacist or the expiry sweep may move p to next.
func (p *Prescription) CanMoveTo(next PrescriptionStatus) bool {
	for _, s := range prescriptionTransitions[p.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// Covers reports whether medicineID is on the prescription.
// An empty list means extraction produced nothing and coverage is not enforced.
func (p *Prescription) Covers(medicineID string) bool {
	if len(p.MedicineIDs) == 0 {
		return true
	}
	for _, id := range p.MedicineIDs {
		if id == medicineID {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether ValidUntil is set and not in the future.
func (p *Prescription) ExpiredAt(now time.Time) bool {
	return p.ValidUntil != nil && !p.ValidUntil.After(now)
}

// CheckFor returns IssueNone when p authorises userID to buy medicineID at now.
func (p *Prescription) CheckFor(userID, medicineID string, now time.Time) PrescriptionIssue {
	switch {
	case p.UserID != userID:
		return IssueNotOwned
	case p.Status == PrescriptionStatusExpired:
		return IssueExpired
	case p.Status != PrescriptionStatusVerified:
		return IssueNotVerified
	case p.ExpiredAt(now):
		return IssueExpired
	case !p.Covers(medicineID):
		return IssueNotCovering
	}
	return IssueNone
}
