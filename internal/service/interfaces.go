package service

import (
	"context"

	"github.com/segyhp/loan-origination/internal/domain"
)

// PartyDirectory answers whether a party exists and what kind it is
type PartyDirectory interface {
	LookupParty(ctx context.Context, partyID string) (*domain.Party, error)
}

// BookingGateway submits a finalized allocation to core banking
type BookingGateway interface {
	Book(ctx context.Context, req *domain.BookingRequest) (*domain.BookingResult, error)
}

// ConditionPolicy decides which conditions precedent a new offer carries
type ConditionPolicy interface {
	ConditionsFor(app *domain.Application, terms domain.OfferTerms) []string
}

// StaticConditionPolicy attaches the same condition types to every offer
type StaticConditionPolicy struct {
	Types []string
}

func (p StaticConditionPolicy) ConditionsFor(_ *domain.Application, _ domain.OfferTerms) []string {
	return append([]string(nil), p.Types...)
}
