package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types
const (
	EventApplicationCreated = "APPLICATION_CREATED"
	EventStatusChanged      = "STATUS_CHANGED"
	EventKYCRecorded        = "KYC_RECORDED"
	EventTaskClaimed        = "TASK_CLAIMED"
	EventTaskReleased       = "TASK_RELEASED"
	EventTaskCompleted      = "TASK_COMPLETED"
	EventApprovalRequested  = "APPROVAL_REQUESTED"
	EventApprovalDecided    = "APPROVAL_DECIDED"
	EventOfferGenerated     = "OFFER_GENERATED"
	EventOfferAccepted      = "OFFER_ACCEPTED"
	EventOfferExpired       = "OFFER_EXPIRED"
	EventConditionSatisfied = "CONDITION_SATISFIED"
	EventConditionWaived    = "CONDITION_WAIVED"
	EventBookingInitiated   = "BOOKING_INITIATED"
	EventBookingSucceeded   = "BOOKING_SUCCEEDED"
	EventBookingFailed      = "BOOKING_FAILED"
)

// AuditEvent is immutable and append-only
type AuditEvent struct {
	ID            uuid.UUID              `json:"id" db:"id"`
	ApplicationID uuid.UUID              `json:"application_id" db:"application_id"`
	EventType     string                 `json:"event_type" db:"event_type"`
	PreviousState Status                 `json:"previous_state" db:"previous_state"`
	NewState      Status                 `json:"new_state" db:"new_state"`
	ActorID       string                 `json:"actor_id" db:"actor_id"`
	Timestamp     time.Time              `json:"timestamp" db:"timestamp"`
	Details       map[string]interface{} `json:"details" db:"-"`
}

// NewAuditEvent builds an event with a fresh ID
func NewAuditEvent(applicationID uuid.UUID, eventType string, prev, next Status, actorID string, at time.Time, details map[string]interface{}) *AuditEvent {
	if details == nil {
		details = map[string]interface{}{}
	}
	return &AuditEvent{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		EventType:     eventType,
		PreviousState: prev,
		NewState:      next,
		ActorID:       actorID,
		Timestamp:     at,
		Details:       details,
	}
}
