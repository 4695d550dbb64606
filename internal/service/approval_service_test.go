package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/segyhp/loan-origination/internal/mocks"
	"github.com/segyhp/loan-origination/internal/repository"
	customError "github.com/segyhp/loan-origination/pkg/errors"
)

func TestApprovalAuthority_Request(t *testing.T) {
	appID := uuid.New()

	tests := []struct {
		name       string
		reason     string
		setupMocks func(*mocks.MockApprovalRepository)
		code       string
	}{
		{
			name:   "Success - Request approval",
			reason: "exposure above limit",
			setupMocks: func(m *mocks.MockApprovalRepository) {
				m.On("FindPending", mock.Anything, appID).Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.Approval) bool {
					return a.RequestedByID == "maker-1" && a.Decision == domain.ApprovalPending
				})).Return(nil)
			},
		},
		{
			name:       "Failure - Missing reason",
			setupMocks: func(m *mocks.MockApprovalRepository) {},
			code:       customError.ErrCodeValidation,
		},
		{
			name:   "Failure - Pending approval exists",
			reason: "again",
			setupMocks: func(m *mocks.MockApprovalRepository) {
				m.On("FindPending", mock.Anything, appID).Return(&domain.Approval{ID: uuid.New()}, nil)
			},
			code: customError.ErrCodeDuplicatePendingApproval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockApprovalRepository{}
			tt.setupMocks(repo)

			approval, err := NewApprovalAuthority(repo, fixedClock).Request(context.Background(), appID, "maker-1", tt.reason)

			if tt.code != "" {
				assert.Equal(t, tt.code, customError.CodeOf(err))
				assert.Nil(t, approval)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.reason, approval.Reason)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestApprovalAuthority_Decide(t *testing.T) {
	pending := func() *domain.Approval {
		return &domain.Approval{ID: uuid.New(), RequestedByID: "maker-1", Decision: domain.ApprovalPending}
	}

	tests := []struct {
		name     string
		approval *domain.Approval
		checker  string
		approve  bool
		decideOK bool
		decide   bool
		code     string
		want     domain.ApprovalDecision
	}{
		{name: "Success - Approve", approval: pending(), checker: "checker-1", approve: true, decide: true, decideOK: true, want: domain.ApprovalApproved},
		{name: "Success - Reject", approval: pending(), checker: "checker-1", decide: true, decideOK: true, want: domain.ApprovalRejected},
		{name: "Failure - Maker decides own approval", approval: pending(), checker: "maker-1", approve: true, code: customError.ErrCodeSelfApprovalForbidden},
		{
			name:     "Failure - Maker decides own decided approval",
			approval: &domain.Approval{ID: uuid.New(), RequestedByID: "maker-1", Decision: domain.ApprovalApproved},
			checker:  "maker-1",
			code:     customError.ErrCodeSelfApprovalForbidden,
		},
		{
			name:     "Failure - Already decided",
			approval: &domain.Approval{ID: uuid.New(), RequestedByID: "maker-1", Decision: domain.ApprovalRejected},
			checker:  "checker-1",
			code:     customError.ErrCodeAlreadyDecided,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockApprovalRepository{}
			repo.On("GetByID", mock.Anything, tt.approval.ID).Return(tt.approval, nil)
			if tt.decide {
				repo.On("Decide", mock.Anything, mock.MatchedBy(func(a *domain.Approval) bool {
					return a.DecidedByID != nil && *a.DecidedByID == tt.checker
				})).Return(tt.decideOK, nil)
			}

			decided, err := NewApprovalAuthority(repo, fixedClock).Decide(context.Background(), tt.approval.ID, tt.checker, tt.approve, "")

			if tt.code != "" {
				assert.Equal(t, tt.code, customError.CodeOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, decided.Decision)
				assert.Equal(t, fixedClock(), *decided.DecidedAt)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestApprovalAuthority_Granted(t *testing.T) {
	appID := uuid.New()

	since := fixedClock()
	before := since.Add(-time.Hour)
	after := since.Add(time.Minute)

	tests := []struct {
		name      string
		approvals []*domain.Approval
		want      bool
	}{
		{name: "none", approvals: []*domain.Approval{}, want: false},
		{name: "pending only", approvals: []*domain.Approval{{Decision: domain.ApprovalPending, CreatedAt: after}}, want: false},
		{name: "approved", approvals: []*domain.Approval{{Decision: domain.ApprovalApproved, CreatedAt: since}}, want: true},
		{name: "rejected after approved", approvals: []*domain.Approval{{Decision: domain.ApprovalApproved, CreatedAt: since}, {Decision: domain.ApprovalRejected, CreatedAt: after}}, want: false},
		{name: "approved then pending", approvals: []*domain.Approval{{Decision: domain.ApprovalApproved, CreatedAt: since}, {Decision: domain.ApprovalPending, CreatedAt: after}}, want: true},
		{name: "approved in an earlier stage", approvals: []*domain.Approval{{Decision: domain.ApprovalApproved, CreatedAt: before}}, want: false},
		{name: "earlier approval then pending", approvals: []*domain.Approval{{Decision: domain.ApprovalApproved, CreatedAt: before}, {Decision: domain.ApprovalPending, CreatedAt: after}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockApprovalRepository{}
			repo.On("ListByApplication", mock.Anything, appID).Return(tt.approvals, nil)

			got, err := NewApprovalAuthority(repo, fixedClock).Granted(context.Background(), appID, since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
