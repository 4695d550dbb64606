package domain

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalDecision string

const (
	ApprovalPending  ApprovalDecision = "PENDING"
	ApprovalApproved ApprovalDecision = "APPROVED"
	ApprovalRejected ApprovalDecision = "REJECTED"
)

// Approval is a maker-checker record. DecidedByID never equals RequestedByID.
type Approval struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	ApplicationID  uuid.UUID        `json:"application_id" db:"application_id"`
	RequestedByID  string           `json:"requested_by_id" db:"requested_by_id"`
	DecidedByID    *string          `json:"decided_by_id,omitempty" db:"decided_by_id"`
	Decision       ApprovalDecision `json:"decision" db:"decision"`
	Reason         string           `json:"reason" db:"reason"`
	DecisionReason string           `json:"decision_reason" db:"decision_reason"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
}

type RequestApprovalRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type DecideApprovalRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}
