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

// TaskQueue manages human work items. Claim is a storage level
// compare-and-set, so it is safe without any outer lock.
type TaskQueue struct {
	repo  repository.TaskRepository
	clock func() time.Time
}

func NewTaskQueue(repo repository.TaskRepository, clock func() time.Time) *TaskQueue {
	if clock == nil {
		clock = time.Now
	}
	return &TaskQueue{repo: repo, clock: clock}
}

// CreateTask opens a task unless the application already has an unfinished
// one on the same queue
func (q *TaskQueue) CreateTask(ctx context.Context, applicationID uuid.UUID, queue string, priority int) (*domain.WorkflowTask, error) {
	existing, err := q.repo.FindUnfinished(ctx, applicationID, queue)
	if err == nil && existing != nil {
		return nil, customError.WrapDuplicateTask(applicationID.String(), queue)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	now := q.clock()
	task := &domain.WorkflowTask{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		Queue:         queue,
		Status:        domain.TaskStatusOpen,
		Priority:      priority,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := q.repo.Create(ctx, task); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return task, nil
}

func (q *TaskQueue) Get(ctx context.Context, taskID uuid.UUID) (*domain.WorkflowTask, error) {
	task, err := q.repo.GetByID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("task", taskID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return task, nil
}

func (q *TaskQueue) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.WorkflowTask, error) {
	tasks, err := q.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return tasks, nil
}

// Claim assigns an OPEN task to actorID. Of two racing claimers exactly one
// wins; the other gets AlreadyClaimed.
func (q *TaskQueue) Claim(ctx context.Context, taskID uuid.UUID, actorID string) (*domain.WorkflowTask, error) {
	task, err := q.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case domain.TaskStatusInProgress:
		return nil, customError.WrapAlreadyClaimed(taskID.String())
	case domain.TaskStatusDone:
		return nil, customError.WrapWrongState(taskID.String(), string(task.Status))
	}

	ok, err := q.repo.Claim(ctx, taskID, actorID, q.clock())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		return nil, customError.WrapAlreadyClaimed(taskID.String())
	}

	return q.Get(ctx, taskID)
}

// Release hands an IN_PROGRESS task back to the queue
func (q *TaskQueue) Release(ctx context.Context, taskID uuid.UUID, actorID string) (*domain.WorkflowTask, error) {
	task, err := q.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := checkHeld(task, actorID); err != nil {
		return nil, err
	}

	ok, err := q.repo.Release(ctx, taskID, actorID, q.clock())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		return nil, q.heldConflict(ctx, taskID, actorID)
	}

	return q.Get(ctx, taskID)
}

// Complete closes an IN_PROGRESS task with a decision for the orchestrator
func (q *TaskQueue) Complete(ctx context.Context, taskID uuid.UUID, actorID string, decision domain.TaskDecision, notes string) (*domain.WorkflowTask, error) {
	task, err := q.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := checkHeld(task, actorID); err != nil {
		return nil, err
	}

	ok, err := q.repo.Complete(ctx, taskID, actorID, decision, notes, q.clock())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		return nil, q.heldConflict(ctx, taskID, actorID)
	}

	return q.Get(ctx, taskID)
}

// CloseUnfinished marks the unfinished task of a queue DONE without a
// decision. It returns nil when there is nothing to close.
func (q *TaskQueue) CloseUnfinished(ctx context.Context, applicationID uuid.UUID, queue, notes string) (*domain.WorkflowTask, error) {
	task, err := q.repo.FindUnfinished(ctx, applicationID, queue)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && task == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	ok, err := q.repo.Close(ctx, task.ID, notes, q.clock())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		return nil, nil
	}
	return q.Get(ctx, task.ID)
}

func checkHeld(task *domain.WorkflowTask, actorID string) error {
	if task.Status != domain.TaskStatusInProgress {
		return customError.WrapWrongState(task.ID.String(), string(task.Status))
	}
	if !task.IsAssignee(actorID) {
		return customError.WrapNotAssignee(task.ID.String(), actorID)
	}
	return nil
}

// heldConflict explains why a conditional update matched no row
func (q *TaskQueue) heldConflict(ctx context.Context, taskID uuid.UUID, actorID string) error {
	task, err := q.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := checkHeld(task, actorID); err != nil {
		return err
	}
	return customError.WrapWrongState(taskID.String(), string(task.Status))
}
