package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/loan-origination/internal/domain"
)

type approvalRepository struct {
	db *PostgresDB
}

func NewApprovalRepository(db *PostgresDB) ApprovalRepository {
	return &approvalRepository{db: db}
}

const approvalColumns = `id, application_id, requested_by_id, decided_by_id, decision, reason, decision_reason,
		created_at, decided_at`

func (r *approvalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.executor(ctx).ExecContext(ctx, query,
		approval.ID,
		approval.ApplicationID,
		approval.RequestedByID,
		approval.DecidedByID,
		approval.Decision,
		approval.Reason,
		approval.DecisionReason,
		approval.CreatedAt,
		approval.DecidedAt,
	)

	return err
}

func (r *approvalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	var approval domain.Approval
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &approval, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &approval, nil
}

func (r *approvalRepository) FindPending(ctx context.Context, applicationID uuid.UUID) (*domain.Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE application_id = $1 AND decision = 'PENDING'
		LIMIT 1
	`

	var approval domain.Approval
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &approval, query, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &approval, nil
}

func (r *approvalRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE application_id = $1
		ORDER BY created_at
	`

	var approvals []*domain.Approval
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &approvals, query, applicationID); err != nil {
		return nil, err
	}

	return approvals, nil
}

func (r *approvalRepository) Decide(ctx context.Context, approval *domain.Approval) (bool, error) {
	query := `
		UPDATE approvals
		SET decision = $2, decided_by_id = $3, decision_reason = $4, decided_at = $5
		WHERE id = $1 AND decision = 'PENDING'
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query,
		approval.ID,
		approval.Decision,
		approval.DecidedByID,
		approval.DecisionReason,
		approval.DecidedAt,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}
