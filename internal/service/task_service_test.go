package service

import (
	"context"
	"errors"
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

func fixedClock() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func taskWith(status domain.TaskStatus, assignee string) *domain.WorkflowTask {
	task := &domain.WorkflowTask{
		ID:            uuid.New(),
		ApplicationID: uuid.New(),
		Queue:         domain.QueueUnderwriting,
		Status:        status,
	}
	if assignee != "" {
		task.AssigneeID = &assignee
	}
	return task
}

func TestTaskQueue_CreateTask(t *testing.T) {
	appID := uuid.New()

	tests := []struct {
		name       string
		setupMocks func(*mocks.MockTaskRepository)
		code       string
	}{
		{
			name: "Success - Create new task",
			setupMocks: func(m *mocks.MockTaskRepository) {
				m.On("FindUnfinished", mock.Anything, appID, domain.QueueUnderwriting).Return(nil, repository.ErrNotFound)
				m.On("Create", mock.Anything, mock.MatchedBy(func(task *domain.WorkflowTask) bool {
					return task.ApplicationID == appID && task.Status == domain.TaskStatusOpen && task.Priority == 1
				})).Return(nil)
			},
		},
		{
			name: "Failure - Unfinished task exists",
			setupMocks: func(m *mocks.MockTaskRepository) {
				m.On("FindUnfinished", mock.Anything, appID, domain.QueueUnderwriting).Return(taskWith(domain.TaskStatusOpen, ""), nil)
			},
			code: customError.ErrCodeDuplicateTask,
		},
		{
			name: "Failure - Database error on lookup",
			setupMocks: func(m *mocks.MockTaskRepository) {
				m.On("FindUnfinished", mock.Anything, appID, domain.QueueUnderwriting).Return(nil, errors.New("connection reset"))
			},
			code: customError.ErrCodeDatabaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockTaskRepository{}
			tt.setupMocks(repo)
			queue := NewTaskQueue(repo, fixedClock)

			task, err := queue.CreateTask(context.Background(), appID, domain.QueueUnderwriting, 1)

			if tt.code != "" {
				assert.Error(t, err)
				assert.Equal(t, tt.code, customError.CodeOf(err))
				assert.Nil(t, task)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, fixedClock(), task.CreatedAt)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestTaskQueue_Claim(t *testing.T) {
	tests := []struct {
		name      string
		task      *domain.WorkflowTask
		claimOK   bool
		claimCall bool
		code      string
	}{
		{
			name:      "Success - Claim open task",
			task:      taskWith(domain.TaskStatusOpen, ""),
			claimOK:   true,
			claimCall: true,
		},
		{
			name: "Failure - Already in progress",
			task: taskWith(domain.TaskStatusInProgress, "uw-2"),
			code: customError.ErrCodeAlreadyClaimed,
		},
		{
			name: "Failure - Task done",
			task: taskWith(domain.TaskStatusDone, "uw-2"),
			code: customError.ErrCodeWrongState,
		},
		{
			name:      "Failure - Lost the race",
			task:      taskWith(domain.TaskStatusOpen, ""),
			claimOK:   false,
			claimCall: true,
			code:      customError.ErrCodeAlreadyClaimed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockTaskRepository{}
			repo.On("GetByID", mock.Anything, tt.task.ID).Return(tt.task, nil)
			if tt.claimCall {
				repo.On("Claim", mock.Anything, tt.task.ID, "uw-1", fixedClock()).Return(tt.claimOK, nil)
			}
			queue := NewTaskQueue(repo, fixedClock)

			_, err := queue.Claim(context.Background(), tt.task.ID, "uw-1")

			if tt.code != "" {
				assert.Equal(t, tt.code, customError.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestTaskQueue_CompleteRequiresAssignee(t *testing.T) {
	tests := []struct {
		name  string
		task  *domain.WorkflowTask
		actor string
		code  string
	}{
		{name: "Failure - Open task", task: taskWith(domain.TaskStatusOpen, ""), actor: "uw-1", code: customError.ErrCodeWrongState},
		{name: "Failure - Other assignee", task: taskWith(domain.TaskStatusInProgress, "uw-2"), actor: "uw-1", code: customError.ErrCodeNotAssignee},
		{name: "Failure - Done task", task: taskWith(domain.TaskStatusDone, "uw-1"), actor: "uw-1", code: customError.ErrCodeWrongState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockTaskRepository{}
			repo.On("GetByID", mock.Anything, tt.task.ID).Return(tt.task, nil)
			queue := NewTaskQueue(repo, fixedClock)

			_, err := queue.Complete(context.Background(), tt.task.ID, tt.actor, domain.TaskDecisionApprove, "")
			assert.Equal(t, tt.code, customError.CodeOf(err))

			_, err = queue.Release(context.Background(), tt.task.ID, tt.actor)
			assert.Equal(t, tt.code, customError.CodeOf(err))

			repo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTaskQueue_CloseUnfinished(t *testing.T) {
	appID := uuid.New()
	held := taskWith(domain.TaskStatusInProgress, "uw-1")
	held.ApplicationID = appID

	tests := []struct {
		name       string
		setupMocks func(*mocks.MockTaskRepository)
		wantTask   bool
	}{
		{
			name: "Success - Held task is closed",
			setupMocks: func(m *mocks.MockTaskRepository) {
				m.On("FindUnfinished", mock.Anything, appID, domain.QueueUnderwriting).Return(held, nil)
				m.On("Close", mock.Anything, held.ID, "moved on", fixedClock()).Return(true, nil)
				done := *held
				done.Status = domain.TaskStatusDone
				m.On("GetByID", mock.Anything, held.ID).Return(&done, nil)
			},
			wantTask: true,
		},
		{
			name: "Success - Nothing unfinished",
			setupMocks: func(m *mocks.MockTaskRepository) {
				m.On("FindUnfinished", mock.Anything, appID, domain.QueueUnderwriting).Return(nil, repository.ErrNotFound)
			},
		},
		{
			name: "Success - Completed meanwhile",
			setupMocks: func(m *mocks.MockTaskRepository) {
				m.On("FindUnfinished", mock.Anything, appID, domain.QueueUnderwriting).Return(held, nil)
				m.On("Close", mock.Anything, held.ID, "moved on", fixedClock()).Return(false, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockTaskRepository{}
			tt.setupMocks(repo)

			task, err := NewTaskQueue(repo, fixedClock).CloseUnfinished(context.Background(), appID, domain.QueueUnderwriting, "moved on")
			require.NoError(t, err)
			if tt.wantTask {
				require.NotNil(t, task)
				assert.Equal(t, domain.TaskStatusDone, task.Status)
			} else {
				assert.Nil(t, task)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestTaskQueue_GetNotFound(t *testing.T) {
	repo := &mocks.MockTaskRepository{}
	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := NewTaskQueue(repo, fixedClock).Get(context.Background(), id)
	assert.Equal(t, customError.ErrCodeNotFound, customError.CodeOf(err))
}
