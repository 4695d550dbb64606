package mocks

import (
	"context"

	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPartyDirectory struct {
	mock.Mock
}

func (m *MockPartyDirectory) LookupParty(ctx context.Context, partyID string) (*domain.Party, error) {
	args := m.Called(ctx, partyID)
	if fn, ok := args.Get(0).(func(context.Context, string) *domain.Party); ok {
		return fn(ctx, partyID), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Party), args.Error(1)
}

// NewMockPartyDirectory creates a directory that knows every party by default
// when acceptAll is set
func NewMockPartyDirectory(acceptAll bool) *MockPartyDirectory {
	m := &MockPartyDirectory{}
	if acceptAll {
		m.On("LookupParty", mock.Anything, mock.Anything).Return(
			func(_ context.Context, partyID string) *domain.Party {
				return &domain.Party{ID: partyID, Exists: true, Type: domain.PartyTypeIndividual}
			},
			nil,
		).Maybe()
	}
	return m
}

type MockBookingGateway struct {
	mock.Mock
}

func (m *MockBookingGateway) Book(ctx context.Context, req *domain.BookingRequest) (*domain.BookingResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingResult), args.Error(1)
}

// NewMockBookingGateway creates a new mock booking gateway instance
func NewMockBookingGateway() *MockBookingGateway {
	return &MockBookingGateway{}
}
