package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/segyhp/loan-origination/internal/repository"
	customError "github.com/segyhp/loan-origination/pkg/errors"
	"github.com/segyhp/loan-origination/pkg/utils"
)

// OfferManager owns offer versions and their conditions precedent. At most
// one offer per application is ACTIVE.
type OfferManager struct {
	repo     repository.OfferRepository
	policy   ConditionPolicy
	validity time.Duration
	clock    func() time.Time
}

func NewOfferManager(repo repository.OfferRepository, policy ConditionPolicy, validity time.Duration, clock func() time.Time) *OfferManager {
	if clock == nil {
		clock = time.Now
	}
	if policy == nil {
		policy = StaticConditionPolicy{}
	}
	return &OfferManager{repo: repo, policy: policy, validity: validity, clock: clock}
}

// Generate voids the current ACTIVE offer, if any, and creates the next
// version with conditions seeded from policy. It returns the voided offer.
func (m *OfferManager) Generate(ctx context.Context, app *domain.Application, terms domain.OfferTerms) (*domain.OfferResponse, *domain.Offer, error) {
	now := m.clock()

	amount := terms.Amount
	if amount.IsZero() {
		amount = app.ApprovedAmount
	}
	amount = utils.RoundCurrency(amount)
	if !amount.IsPositive() {
		return nil, nil, customError.WrapValidation("offer amount must be greater than 0")
	}
	if amount.GreaterThan(app.ApprovedAmount) {
		return nil, nil, customError.WrapValidation(fmt.Sprintf("offer amount %s exceeds approved amount %s", amount, app.ApprovedAmount))
	}
	if terms.TermMonths <= 0 {
		return nil, nil, customError.WrapValidation("term_months must be greater than 0")
	}
	if terms.InterestRate.IsNegative() {
		return nil, nil, customError.WrapValidation("interest_rate must not be negative")
	}

	expiry := now.Add(m.validity)
	if terms.ExpiryAt != nil {
		expiry = *terms.ExpiryAt
	}
	if !expiry.After(now) {
		return nil, nil, customError.WrapValidation("offer expiry must be in the future")
	}

	version := 1
	var voided *domain.Offer
	latest, err := m.repo.GetLatest(ctx, app.ID)
	switch {
	case err == nil:
		version = latest.Version + 1
		if latest.Status == domain.OfferStatusActive {
			v := *latest
			v.Status = domain.OfferStatusVoided
			ok, err := m.repo.Update(ctx, &v, domain.OfferStatusActive)
			if err != nil {
				return nil, nil, customError.WrapDatabaseError(err)
			}
			if ok {
				voided = &v
			}
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, nil, customError.WrapDatabaseError(err)
	}

	offer := &domain.Offer{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		Version:       version,
		Amount:        amount,
		TermMonths:    terms.TermMonths,
		InterestRate:  terms.InterestRate,
		Status:        domain.OfferStatusActive,
		ExpiryAt:      expiry,
		CreatedAt:     now,
	}

	conditions := make([]*domain.OfferCondition, 0)
	for _, conditionType := range m.policy.ConditionsFor(app, terms) {
		conditions = append(conditions, &domain.OfferCondition{
			ID:            uuid.New(),
			OfferID:       offer.ID,
			ConditionType: conditionType,
			Status:        domain.ConditionPending,
		})
	}

	if err := m.repo.Create(ctx, offer, conditions); err != nil {
		return nil, nil, customError.WrapDatabaseError(err)
	}

	return &domain.OfferResponse{Offer: offer, Conditions: conditions}, voided, nil
}

func (m *OfferManager) Get(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := m.repo.GetByID(ctx, offerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("offer", offerID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return offer, nil
}

// Latest returns the newest offer of an application with its conditions
func (m *OfferManager) Latest(ctx context.Context, applicationID uuid.UUID) (*domain.OfferResponse, error) {
	offer, err := m.repo.GetLatest(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("offer for application", applicationID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	conditions, err := m.Conditions(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	return &domain.OfferResponse{Offer: offer, Conditions: conditions}, nil
}

func (m *OfferManager) Conditions(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferCondition, error) {
	conditions, err := m.repo.ListConditions(ctx, offerID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return conditions, nil
}

func (m *OfferManager) GetCondition(ctx context.Context, conditionID uuid.UUID) (*domain.OfferCondition, error) {
	condition, err := m.repo.GetCondition(ctx, conditionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("condition", conditionID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return condition, nil
}

// Accept marks an ACTIVE offer ACCEPTED. Expiry is checked before conditions.
func (m *OfferManager) Accept(ctx context.Context, offerID uuid.UUID, actorID string) (*domain.Offer, error) {
	offer, err := m.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	switch offer.Status {
	case domain.OfferStatusActive:
	case domain.OfferStatusExpired:
		return nil, customError.WrapOfferExpired(offerID.String())
	default:
		return nil, customError.WrapOfferNotActive(offerID.String(), string(offer.Status))
	}

	if now.After(offer.ExpiryAt) {
		return nil, customError.WrapOfferExpired(offerID.String())
	}

	conditions, err := m.Conditions(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if pending := domain.CountPending(conditions); pending > 0 {
		return nil, customError.WrapConditionsPending(offerID.String(), pending)
	}

	accepted := *offer
	accepted.Status = domain.OfferStatusAccepted
	accepted.AcceptedAt = &now
	accepted.AcceptedByID = &actorID

	ok, err := m.repo.Update(ctx, &accepted, domain.OfferStatusActive)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		current, err := m.Get(ctx, offerID)
		if err != nil {
			return nil, err
		}
		return nil, customError.WrapOfferNotActive(offerID.String(), string(current.Status))
	}

	return &accepted, nil
}

// Satisfy records that a condition has genuinely been met
func (m *OfferManager) Satisfy(ctx context.Context, conditionID uuid.UUID, actorID string) (*domain.OfferCondition, *domain.Offer, error) {
	return m.resolve(ctx, conditionID, actorID, domain.ConditionSatisfied, "")
}

// Waive records that a condition was set aside. A reason is mandatory.
func (m *OfferManager) Waive(ctx context.Context, conditionID uuid.UUID, actorID, reason string) (*domain.OfferCondition, *domain.Offer, error) {
	if reason == "" {
		return nil, nil, customError.WrapValidation("waiver reason is required")
	}
	return m.resolve(ctx, conditionID, actorID, domain.ConditionWaived, reason)
}

func (m *OfferManager) resolve(ctx context.Context, conditionID uuid.UUID, actorID string, status domain.ConditionStatus, reason string) (*domain.OfferCondition, *domain.Offer, error) {
	condition, err := m.GetCondition(ctx, conditionID)
	if err != nil {
		return nil, nil, err
	}
	if condition.Status != domain.ConditionPending {
		return nil, nil, customError.WrapConditionNotPending(conditionID.String(), string(condition.Status))
	}

	offer, err := m.Get(ctx, condition.OfferID)
	if err != nil {
		return nil, nil, err
	}
	if offer.Status != domain.OfferStatusActive {
		return nil, nil, customError.WrapOfferNotActive(offer.ID.String(), string(offer.Status))
	}

	now := m.clock()
	resolved := *condition
	resolved.Status = status
	resolved.ResolvedByID = &actorID
	resolved.ResolvedAt = &now
	resolved.WaiverReason = reason

	ok, err := m.repo.ResolveCondition(ctx, &resolved)
	if err != nil {
		return nil, nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		current, err := m.GetCondition(ctx, conditionID)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, customError.WrapConditionNotPending(conditionID.String(), string(current.Status))
	}

	return &resolved, offer, nil
}

// ListExpirable returns ACTIVE offers already past expiry
func (m *OfferManager) ListExpirable(ctx context.Context) ([]*domain.Offer, error) {
	offers, err := m.repo.ListExpirable(ctx, m.clock())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return offers, nil
}

// Expire marks an ACTIVE offer EXPIRED, reporting false if it was no longer
// ACTIVE or not yet due
func (m *OfferManager) Expire(ctx context.Context, offerID uuid.UUID) (*domain.Offer, bool, error) {
	offer, err := m.Get(ctx, offerID)
	if err != nil {
		return nil, false, err
	}
	if offer.Status != domain.OfferStatusActive || !m.clock().After(offer.ExpiryAt) {
		return offer, false, nil
	}

	expired := *offer
	expired.Status = domain.OfferStatusExpired
	ok, err := m.repo.Update(ctx, &expired, domain.OfferStatusActive)
	if err != nil {
		return nil, false, customError.WrapDatabaseError(err)
	}
	return &expired, ok, nil
}

// VoidActive voids the ACTIVE offer of an application, if there is one
func (m *OfferManager) VoidActive(ctx context.Context, applicationID uuid.UUID) (*domain.Offer, error) {
	latest, err := m.repo.GetLatest(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if latest.Status != domain.OfferStatusActive {
		return nil, nil
	}

	voided := *latest
	voided.Status = domain.OfferStatusVoided
	ok, err := m.repo.Update(ctx, &voided, domain.OfferStatusActive)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		return nil, nil
	}
	return &voided, nil
}

// offerFacts summarizes the latest offer for transition guards
func (m *OfferManager) offerFacts(ctx context.Context, applicationID uuid.UUID) (active, accepted bool, pending int, err error) {
	latest, err := m.repo.GetLatest(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, false, 0, nil
	}
	if err != nil {
		return false, false, 0, customError.WrapDatabaseError(err)
	}

	conditions, err := m.Conditions(ctx, latest.ID)
	if err != nil {
		return false, false, 0, err
	}

	return latest.Status == domain.OfferStatusActive, latest.Status == domain.OfferStatusAccepted, domain.CountPending(conditions), nil
}
