package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/loan-origination/internal/domain"
)

type taskRepository struct {
	db *PostgresDB
}

func NewTaskRepository(db *PostgresDB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, application_id, queue, status, assignee_id, priority, notes, decision,
		created_at, updated_at, completed_at`

func (r *taskRepository) Create(ctx context.Context, task *domain.WorkflowTask) error {
	query := `
		INSERT INTO workflow_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.executor(ctx).ExecContext(ctx, query,
		task.ID,
		task.ApplicationID,
		task.Queue,
		task.Status,
		task.AssigneeID,
		task.Priority,
		task.Notes,
		task.Decision,
		task.CreatedAt,
		task.UpdatedAt,
		task.CompletedAt,
	)

	return err
}

func (r *taskRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks WHERE id = $1`

	var task domain.WorkflowTask
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &task, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &task, nil
}

func (r *taskRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.WorkflowTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM workflow_tasks
		WHERE application_id = $1
		ORDER BY created_at
	`

	var tasks []*domain.WorkflowTask
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &tasks, query, applicationID); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (r *taskRepository) FindUnfinished(ctx context.Context, applicationID uuid.UUID, queue string) (*domain.WorkflowTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM workflow_tasks
		WHERE application_id = $1 AND queue = $2 AND status <> 'DONE'
		LIMIT 1
	`

	var task domain.WorkflowTask
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &task, query, applicationID, queue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &task, nil
}

// Claim is a single conditional UPDATE; of two concurrent claimers exactly
// one sees a row affected.
func (r *taskRepository) Claim(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	query := `
		UPDATE workflow_tasks
		SET status = 'IN_PROGRESS', assignee_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'OPEN'
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query, id, actorID, at)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *taskRepository) Release(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	query := `
		UPDATE workflow_tasks
		SET status = 'OPEN', assignee_id = NULL, updated_at = $3
		WHERE id = $1 AND status = 'IN_PROGRESS' AND assignee_id = $2
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query, id, actorID, at)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *taskRepository) Complete(ctx context.Context, id uuid.UUID, actorID string, decision domain.TaskDecision, notes string, at time.Time) (bool, error) {
	query := `
		UPDATE workflow_tasks
		SET status = 'DONE', decision = $3, notes = $4, updated_at = $5, completed_at = $5
		WHERE id = $1 AND status = 'IN_PROGRESS' AND assignee_id = $2
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query, id, actorID, decision, notes, at)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *taskRepository) Close(ctx context.Context, id uuid.UUID, notes string, at time.Time) (bool, error) {
	query := `
		UPDATE workflow_tasks
		SET status = 'DONE', decision = 'NONE', notes = $2, updated_at = $3, completed_at = $3
		WHERE id = $1 AND status <> 'DONE'
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query, id, notes, at)
	if err != nil {
		return false, err
	}
	return affected(res)
}
