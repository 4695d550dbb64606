package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional update matched no row because
	// the row changed underneath the caller
	ErrConflict = errors.New("record changed concurrently")
)

// TxManager runs fn in a single storage transaction. Nested calls reuse the
// outer transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ApplicationRepository defines the interface for application data operations
type ApplicationRepository interface {
	// Create creates a new application
	Create(ctx context.Context, app *domain.Application) error

	// GetByID retrieves an application by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)

	// Update writes app if its stored status still equals expectedStatus,
	// otherwise it returns ErrConflict
	Update(ctx context.Context, app *domain.Application, expectedStatus domain.Status) error

	// ListActive lists every application not in a terminal status
	ListActive(ctx context.Context) ([]*domain.Application, error)
}

// TaskRepository defines the interface for workflow task operations
type TaskRepository interface {
	// Create creates a new task
	Create(ctx context.Context, task *domain.WorkflowTask) error

	// GetByID retrieves a task by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowTask, error)

	// ListByApplication lists tasks of an application, oldest first
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.WorkflowTask, error)

	// FindUnfinished returns the OPEN or IN_PROGRESS task for a queue
	FindUnfinished(ctx context.Context, applicationID uuid.UUID, queue string) (*domain.WorkflowTask, error)

	// Claim moves an OPEN task to IN_PROGRESS for actorID. It reports false
	// when the task was no longer OPEN.
	Claim(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error)

	// Release returns an IN_PROGRESS task held by actorID to OPEN
	Release(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error)

	// Complete marks an IN_PROGRESS task held by actorID as DONE
	Complete(ctx context.Context, id uuid.UUID, actorID string, decision domain.TaskDecision, notes string, at time.Time) (bool, error)

	// Close marks an OPEN or IN_PROGRESS task as DONE with no decision,
	// whoever holds it
	Close(ctx context.Context, id uuid.UUID, notes string, at time.Time) (bool, error)
}

// ApprovalRepository defines the interface for maker-checker records
type ApprovalRepository interface {
	// Create creates a new approval
	Create(ctx context.Context, approval *domain.Approval) error

	// GetByID retrieves an approval by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Approval, error)

	// FindPending returns the PENDING approval of an application
	FindPending(ctx context.Context, applicationID uuid.UUID) (*domain.Approval, error)

	// ListByApplication lists approvals of an application, oldest first
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.Approval, error)

	// Decide records the decision if the approval is still PENDING
	Decide(ctx context.Context, approval *domain.Approval) (bool, error)
}

// OfferRepository defines the interface for offers and their conditions
type OfferRepository interface {
	// Create stores an offer together with its conditions
	Create(ctx context.Context, offer *domain.Offer, conditions []*domain.OfferCondition) error

	// GetByID retrieves an offer by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error)

	// GetLatest returns the highest version offer of an application
	GetLatest(ctx context.Context, applicationID uuid.UUID) (*domain.Offer, error)

	// Update writes the offer if its stored status still equals expected
	Update(ctx context.Context, offer *domain.Offer, expected domain.OfferStatus) (bool, error)

	// ListExpirable lists ACTIVE offers whose expiry is before now
	ListExpirable(ctx context.Context, now time.Time) ([]*domain.Offer, error)

	// ListConditions lists the conditions of an offer
	ListConditions(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferCondition, error)

	// GetCondition retrieves a condition by its ID
	GetCondition(ctx context.Context, id uuid.UUID) (*domain.OfferCondition, error)

	// ResolveCondition writes the condition if it is still PENDING
	ResolveCondition(ctx context.Context, condition *domain.OfferCondition) (bool, error)
}

// AuditRepository is the append-only audit log
type AuditRepository interface {
	// Append stores a new event
	Append(ctx context.Context, event *domain.AuditEvent) error

	// ListByApplication lists events of an application in order
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.AuditEvent, error)
}

// AllocationRepository holds the transient disbursement working set
type AllocationRepository interface {
	Get(ctx context.Context, applicationID uuid.UUID) (*domain.DisbursementAllocation, error)
	Save(ctx context.Context, alloc *domain.DisbursementAllocation) error
	Delete(ctx context.Context, applicationID uuid.UUID) error
}

// Repositories bundles every store the orchestrator needs
type Repositories struct {
	Tx           TxManager
	Applications ApplicationRepository
	Tasks        TaskRepository
	Approvals    ApprovalRepository
	Offers       OfferRepository
	Audit        AuditRepository
	Allocations  AllocationRepository
}
