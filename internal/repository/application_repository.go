package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/loan-origination/internal/domain"
)

type applicationRepository struct {
	db *PostgresDB
}

func NewApplicationRepository(db *PostgresDB) ApplicationRepository {
	return &applicationRepository{db: db}
}

const applicationColumns = `id, applicant_id, status, approved_amount, currency, assigned_reviewer_id, created_by_id,
		kyc_verified, booking_reference, created_at, updated_at, status_changed_at, submitted_at, decided_at`

func (r *applicationRepository) Create(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.executor(ctx).ExecContext(ctx, query,
		app.ID,
		app.ApplicantID,
		app.Status,
		app.ApprovedAmount,
		app.Currency,
		app.AssignedReviewerID,
		app.CreatedByID,
		app.KYCVerified,
		app.BookingReference,
		app.CreatedAt,
		app.UpdatedAt,
		app.StatusChangedAt,
		app.SubmittedAt,
		app.DecidedAt,
	)

	return err
}

func (r *applicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE id = $1
	`

	var app domain.Application
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &app, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &app, nil
}

func (r *applicationRepository) Update(ctx context.Context, app *domain.Application, expectedStatus domain.Status) error {
	query := `
		UPDATE applications
		SET status = $3, approved_amount = $4, assigned_reviewer_id = $5, kyc_verified = $6,
			booking_reference = $7, updated_at = $8, status_changed_at = $9, submitted_at = $10, decided_at = $11
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query,
		app.ID,
		expectedStatus,
		app.Status,
		app.ApprovedAmount,
		app.AssignedReviewerID,
		app.KYCVerified,
		app.BookingReference,
		app.UpdatedAt,
		app.StatusChangedAt,
		app.SubmittedAt,
		app.DecidedAt,
	)
	if err != nil {
		return err
	}

	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (r *applicationRepository) ListActive(ctx context.Context) ([]*domain.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE status NOT IN ('BOOKED', 'DECLINED', 'CANCELLED', 'WITHDRAWN')
		ORDER BY created_at
	`

	var apps []*domain.Application
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &apps, query); err != nil {
		return nil, err
	}

	return apps, nil
}
