package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DisbursementLine is one payout destination. Percentage is always derived
// from Amount.
type DisbursementLine struct {
	ID         uuid.UUID       `json:"id"`
	AccountRef string          `json:"account_ref"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	IsExternal bool            `json:"is_external"`
}

// DisbursementAllocation is the working set built before booking
type DisbursementAllocation struct {
	ApplicationID  uuid.UUID           `json:"application_id"`
	ApprovedAmount decimal.Decimal     `json:"approved_amount"`
	Currency       string              `json:"currency"`
	Lines          []*DisbursementLine `json:"lines"`
}

type AddLineRequest struct {
	AccountRef string `json:"account_ref" validate:"required"`
	IsExternal bool   `json:"is_external"`
}

type SetAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type SetPercentageRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
}

type BookingResultRequest struct {
	Success          bool   `json:"success"`
	BookingReference string `json:"booking_reference"`
	ErrorMessage     string `json:"error_message"`
}
