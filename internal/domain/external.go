package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PartyType string

const (
	PartyTypeIndividual PartyType = "INDIVIDUAL"
	PartyTypeBusiness   PartyType = "BUSINESS"
)

// Party is what the customer directory knows about a party id
type Party struct {
	ID     string    `json:"id"`
	Exists bool      `json:"exists"`
	Type   PartyType `json:"type,omitempty"`
}

// BookingRequest is the finalized allocation handed to core banking
type BookingRequest struct {
	ApplicationID  uuid.UUID           `json:"application_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	Lines          []*DisbursementLine `json:"lines"`
}

// BookingResult is what core banking reports back
type BookingResult struct {
	Success          bool   `json:"success"`
	BookingReference string `json:"booking_reference,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}
