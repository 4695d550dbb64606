package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, task *domain.WorkflowTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkflowTask), args.Error(1)
}

func (m *MockTaskRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.WorkflowTask, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WorkflowTask), args.Error(1)
}

func (m *MockTaskRepository) FindUnfinished(ctx context.Context, applicationID uuid.UUID, queue string) (*domain.WorkflowTask, error) {
	args := m.Called(ctx, applicationID, queue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkflowTask), args.Error(1)
}

func (m *MockTaskRepository) Claim(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, actorID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) Release(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, actorID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) Complete(ctx context.Context, id uuid.UUID, actorID string, decision domain.TaskDecision, notes string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, actorID, decision, notes, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) Close(ctx context.Context, id uuid.UUID, notes string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, notes, at)
	return args.Bool(0), args.Error(1)
}

type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	args := m.Called(ctx, approval)
	return args.Error(0)
}

func (m *MockApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Approval), args.Error(1)
}

func (m *MockApprovalRepository) FindPending(ctx context.Context, applicationID uuid.UUID) (*domain.Approval, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Approval), args.Error(1)
}

func (m *MockApprovalRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.Approval, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Approval), args.Error(1)
}

func (m *MockApprovalRepository) Decide(ctx context.Context, approval *domain.Approval) (bool, error) {
	args := m.Called(ctx, approval)
	return args.Bool(0), args.Error(1)
}
