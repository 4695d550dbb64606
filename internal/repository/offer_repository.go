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

type offerRepository struct {
	db *PostgresDB
}

func NewOfferRepository(db *PostgresDB) OfferRepository {
	return &offerRepository{db: db}
}

const offerColumns = `id, application_id, version, amount, term_months, interest_rate, status, expiry_at,
		created_at, accepted_at, accepted_by_id`

const conditionColumns = `id, offer_id, condition_type, status, resolved_by_id, waiver_reason, resolved_at`

func (r *offerRepository) Create(ctx context.Context, offer *domain.Offer, conditions []*domain.OfferCondition) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO offers (` + offerColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`

		_, err := r.db.executor(ctx).ExecContext(ctx, query,
			offer.ID,
			offer.ApplicationID,
			offer.Version,
			offer.Amount,
			offer.TermMonths,
			offer.InterestRate,
			offer.Status,
			offer.ExpiryAt,
			offer.CreatedAt,
			offer.AcceptedAt,
			offer.AcceptedByID,
		)
		if err != nil {
			return err
		}

		condQuery := `
			INSERT INTO offer_conditions (` + conditionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for _, c := range conditions {
			_, err := r.db.executor(ctx).ExecContext(ctx, condQuery,
				c.ID,
				c.OfferID,
				c.ConditionType,
				c.Status,
				c.ResolvedByID,
				c.WaiverReason,
				c.ResolvedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *offerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	var offer domain.Offer
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &offer, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &offer, nil
}

func (r *offerRepository) GetLatest(ctx context.Context, applicationID uuid.UUID) (*domain.Offer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE application_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	var offer domain.Offer
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &offer, query, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &offer, nil
}

func (r *offerRepository) Update(ctx context.Context, offer *domain.Offer, expected domain.OfferStatus) (bool, error) {
	query := `
		UPDATE offers
		SET status = $3, accepted_at = $4, accepted_by_id = $5
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query,
		offer.ID,
		expected,
		offer.Status,
		offer.AcceptedAt,
		offer.AcceptedByID,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *offerRepository) ListExpirable(ctx context.Context, now time.Time) ([]*domain.Offer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE status = 'ACTIVE' AND expiry_at < $1
		ORDER BY expiry_at
	`

	var offers []*domain.Offer
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &offers, query, now); err != nil {
		return nil, err
	}

	return offers, nil
}

func (r *offerRepository) ListConditions(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferCondition, error) {
	query := `
		SELECT ` + conditionColumns + `
		FROM offer_conditions
		WHERE offer_id = $1
		ORDER BY condition_type
	`

	var conditions []*domain.OfferCondition
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &conditions, query, offerID); err != nil {
		return nil, err
	}

	return conditions, nil
}

func (r *offerRepository) GetCondition(ctx context.Context, id uuid.UUID) (*domain.OfferCondition, error) {
	query := `SELECT ` + conditionColumns + ` FROM offer_conditions WHERE id = $1`

	var condition domain.OfferCondition
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &condition, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &condition, nil
}

func (r *offerRepository) ResolveCondition(ctx context.Context, condition *domain.OfferCondition) (bool, error) {
	query := `
		UPDATE offer_conditions
		SET status = $2, resolved_by_id = $3, waiver_reason = $4, resolved_at = $5
		WHERE id = $1 AND status = 'PENDING'
	`

	res, err := r.db.executor(ctx).ExecContext(ctx, query,
		condition.ID,
		condition.Status,
		condition.ResolvedByID,
		condition.WaiverReason,
		condition.ResolvedAt,
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}
