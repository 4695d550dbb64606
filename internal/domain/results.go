package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Responses returned by orchestrator operations that touch more than the
// application itself.

type TaskResult struct {
	Task   *WorkflowTask `json:"task"`
	Status *StatusInfo   `json:"status"`
}

type ApprovalResult struct {
	Approval *Approval   `json:"approval"`
	Status   *StatusInfo `json:"status"`
}

type ConditionResult struct {
	Condition *OfferCondition `json:"condition"`
	Status    *StatusInfo     `json:"status"`
}

// AllocationView is an allocation plus its reconciliation state
type AllocationView struct {
	Allocation *DisbursementAllocation `json:"allocation"`
	Allocated  decimal.Decimal         `json:"allocated"`
	Remaining  decimal.Decimal         `json:"remaining"`
	Reconciled bool                    `json:"reconciled"`
	Problem    string                  `json:"problem,omitempty"`
}

// SLABreach is one application that has sat in its stage too long
type SLABreach struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Status        Status    `json:"status"`
	Phase         Phase     `json:"phase"`
	DaysInStage   int       `json:"days_in_stage"`
	ThresholdDays int       `json:"threshold_days"`
}
