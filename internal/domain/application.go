package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Application is the aggregate root tracked through the origination workflow
type Application struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	ApplicantID        string          `json:"applicant_id" db:"applicant_id"`
	Status             Status          `json:"status" db:"status"`
	ApprovedAmount     decimal.Decimal `json:"approved_amount" db:"approved_amount"`
	Currency           string          `json:"currency" db:"currency"`
	AssignedReviewerID *string         `json:"assigned_reviewer_id,omitempty" db:"assigned_reviewer_id"`
	CreatedByID        string          `json:"created_by_id" db:"created_by_id"`
	KYCVerified        bool            `json:"kyc_verified" db:"kyc_verified"`
	BookingReference   *string         `json:"booking_reference,omitempty" db:"booking_reference"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
	StatusChangedAt    time.Time       `json:"status_changed_at" db:"status_changed_at"`
	SubmittedAt        *time.Time      `json:"submitted_at,omitempty" db:"submitted_at"`
	DecidedAt          *time.Time      `json:"decided_at,omitempty" db:"decided_at"`
}

// Phase is derived from Status
func (a *Application) Phase() Phase {
	return a.Status.Phase()
}

// IsAssignedReviewer reports whether actorID is the application's current reviewer
func (a *Application) IsAssignedReviewer(actorID string) bool {
	return a.AssignedReviewerID != nil && *a.AssignedReviewerID == actorID
}

// Clone returns a copy safe to mutate without touching the original
func (a *Application) Clone() *Application {
	c := *a
	if a.AssignedReviewerID != nil {
		v := *a.AssignedReviewerID
		c.AssignedReviewerID = &v
	}
	if a.BookingReference != nil {
		v := *a.BookingReference
		c.BookingReference = &v
	}
	if a.SubmittedAt != nil {
		v := *a.SubmittedAt
		c.SubmittedAt = &v
	}
	if a.DecidedAt != nil {
		v := *a.DecidedAt
		c.DecidedAt = &v
	}
	return &c
}

// StatusInfo is returned by every orchestrator trigger
type StatusInfo struct {
	ApplicationID    uuid.UUID `json:"application_id"`
	Status           Status    `json:"status"`
	Phase            Phase     `json:"phase"`
	ValidTransitions []Status  `json:"valid_transitions"`
	ProgressPercent  int       `json:"progress_percent"`
	DaysInStage      int       `json:"days_in_stage"`
	SLABreached      bool      `json:"sla_breached"`
}

// DTOs for requests and responses

type CreateApplicationRequest struct {
	ApplicantID    string          `json:"applicant_id" validate:"required"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	Currency       string          `json:"currency" validate:"required,len=3"`
}

type TransitionRequest struct {
	Target Status `json:"target" validate:"required"`
	Reason string `json:"reason"`
}

type CreditDecision string

const (
	CreditDecisionApprove CreditDecision = "APPROVE"
	CreditDecisionDecline CreditDecision = "DECLINE"
	CreditDecisionRefer   CreditDecision = "REFER"
)

type CreditDecisionRequest struct {
	Decision       CreditDecision  `json:"decision" validate:"required,oneof=APPROVE DECLINE REFER"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	Reason         string          `json:"reason"`
}

type KYCResultRequest struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

type ESignCompletedRequest struct {
	EnvelopeID string `json:"envelope_id"`
}
