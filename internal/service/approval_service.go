package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/segyhp/loan-origination/internal/repository"
	customError "github.com/segyhp/loan-origination/pkg/errors"
)

// ApprovalAuthority is a two-party confirmation primitive: the checker must
// differ from the maker and a decision is final.
type ApprovalAuthority struct {
	repo  repository.ApprovalRepository
	clock func() time.Time
}

func NewApprovalAuthority(repo repository.ApprovalRepository, clock func() time.Time) *ApprovalAuthority {
	if clock == nil {
		clock = time.Now
	}
	return &ApprovalAuthority{repo: repo, clock: clock}
}

// Request opens a PENDING approval for an application
func (a *ApprovalAuthority) Request(ctx context.Context, applicationID uuid.UUID, makerID, reason string) (*domain.Approval, error) {
	if reason == "" {
		return nil, customError.WrapValidation("approval reason is required")
	}

	pending, err := a.repo.FindPending(ctx, applicationID)
	if err == nil && pending != nil {
		return nil, customError.WrapDuplicatePendingApproval(applicationID.String())
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	approval := &domain.Approval{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		RequestedByID: makerID,
		Decision:      domain.ApprovalPending,
		Reason:        reason,
		CreatedAt:     a.clock(),
	}

	if err := a.repo.Create(ctx, approval); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return approval, nil
}

func (a *ApprovalAuthority) Get(ctx context.Context, approvalID uuid.UUID) (*domain.Approval, error) {
	approval, err := a.repo.GetByID(ctx, approvalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("approval", approvalID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return approval, nil
}

// Decide records the checker's verdict
func (a *ApprovalAuthority) Decide(ctx context.Context, approvalID uuid.UUID, checkerID string, approve bool, reason string) (*domain.Approval, error) {
	approval, err := a.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	if checkerID == approval.RequestedByID {
		return nil, customError.WrapSelfApprovalForbidden(approvalID.String())
	}
	if approval.Decision != domain.ApprovalPending {
		return nil, customError.WrapAlreadyDecided(approvalID.String(), string(approval.Decision))
	}

	now := a.clock()
	decided := *approval
	decided.DecidedByID = &checkerID
	decided.DecidedAt = &now
	decided.DecisionReason = reason
	decided.Decision = domain.ApprovalRejected
	if approve {
		decided.Decision = domain.ApprovalApproved
	}

	ok, err := a.repo.Decide(ctx, &decided)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		current, err := a.Get(ctx, approvalID)
		if err != nil {
			return nil, err
		}
		return nil, customError.WrapAlreadyDecided(approvalID.String(), string(current.Decision))
	}

	return &decided, nil
}

func (a *ApprovalAuthority) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.Approval, error) {
	approvals, err := a.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return approvals, nil
}

// Granted reports whether the most recent decided approval requested at or
// after since was APPROVED. Approvals from an earlier stage do not count.
func (a *ApprovalAuthority) Granted(ctx context.Context, applicationID uuid.UUID, since time.Time) (bool, error) {
	approvals, err := a.ListByApplication(ctx, applicationID)
	if err != nil {
		return false, err
	}
	for i := len(approvals) - 1; i >= 0; i-- {
		if approvals[i].CreatedAt.Before(since) {
			break
		}
		switch approvals[i].Decision {
		case domain.ApprovalApproved:
			return true, nil
		case domain.ApprovalRejected:
			return false, nil
		}
	}
	return false, nil
}
