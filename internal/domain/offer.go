package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferStatusActive   OfferStatus = "ACTIVE"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusVoided   OfferStatus = "VOIDED"
	OfferStatusExpired  OfferStatus = "EXPIRED"
)

type ConditionStatus string

const (
	ConditionPending   ConditionStatus = "PENDING"
	ConditionSatisfied ConditionStatus = "SATISFIED"
	ConditionWaived    ConditionStatus = "WAIVED"
)

// Offer is a versioned proposal; at most one is ACTIVE per application
type Offer struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	ApplicationID uuid.UUID       `json:"application_id" db:"application_id"`
	Version       int             `json:"version" db:"version"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	TermMonths    int             `json:"term_months" db:"term_months"`
	InterestRate  decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	Status        OfferStatus     `json:"status" db:"status"`
	ExpiryAt      time.Time       `json:"expiry_at" db:"expiry_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	AcceptedAt    *time.Time      `json:"accepted_at,omitempty" db:"accepted_at"`
	AcceptedByID  *string         `json:"accepted_by_id,omitempty" db:"accepted_by_id"`
}

// OfferCondition is a condition precedent attached to an offer
type OfferCondition struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OfferID       uuid.UUID       `json:"offer_id" db:"offer_id"`
	ConditionType string          `json:"condition_type" db:"condition_type"`
	Status        ConditionStatus `json:"status" db:"status"`
	ResolvedByID  *string         `json:"resolved_by_id,omitempty" db:"resolved_by_id"`
	WaiverReason  string          `json:"waiver_reason,omitempty" db:"waiver_reason"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// OfferTerms are the proposal terms supplied when generating an offer
type OfferTerms struct {
	Amount       decimal.Decimal `json:"amount"`
	TermMonths   int             `json:"term_months" validate:"required,gt=0"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	ExpiryAt     *time.Time      `json:"expiry_at,omitempty"`
}

type OfferResponse struct {
	Offer      *Offer            `json:"offer"`
	Conditions []*OfferCondition `json:"conditions"`
	Status     *StatusInfo       `json:"status,omitempty"`
}

type WaiveConditionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CountPending returns how many conditions are still PENDING
func CountPending(conditions []*OfferCondition) int {
	n := 0
	for _, c := range conditions {
		if c.Status == ConditionPending {
			n++
		}
	}
	return n
}
