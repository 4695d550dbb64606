package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "OPEN"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// Named work categories
const (
	QueueUnderwriting = "UNDERWRITING"
	QueueSeniorReview = "SENIOR_REVIEW"
)

// TaskDecision is the outcome handed to the orchestrator on completion
type TaskDecision string

const (
	TaskDecisionApprove TaskDecision = "APPROVE"
	TaskDecisionDecline TaskDecision = "DECLINE"
	TaskDecisionRefer   TaskDecision = "REFER"
	TaskDecisionNone    TaskDecision = "NONE"
)

// WorkflowTask is a unit of human work tied to one application
type WorkflowTask struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	ApplicationID uuid.UUID    `json:"application_id" db:"application_id"`
	Queue         string       `json:"queue" db:"queue"`
	Status        TaskStatus   `json:"status" db:"status"`
	AssigneeID    *string      `json:"assignee_id,omitempty" db:"assignee_id"`
	Priority      int          `json:"priority" db:"priority"`
	Notes         string       `json:"notes" db:"notes"`
	Decision      TaskDecision `json:"decision,omitempty" db:"decision"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// IsAssignee reports whether actorID currently holds the task
func (t *WorkflowTask) IsAssignee(actorID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == actorID
}

type CompleteTaskRequest struct {
	Decision TaskDecision `json:"decision" validate:"required,oneof=APPROVE DECLINE REFER NONE"`
	Notes    string       `json:"notes"`
}
