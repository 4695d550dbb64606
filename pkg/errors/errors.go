package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	// state machine
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor not authorized for transition")
	ErrPreconditionUnmet = errors.New("transition precondition unmet")
	ErrAlreadyTerminal   = errors.New("application is in a terminal status")

	// task queue
	ErrDuplicateTask  = errors.New("open task already exists for queue")
	ErrAlreadyClaimed = errors.New("task already claimed")
	ErrNotAssignee    = errors.New("actor is not the task assignee")
	ErrWrongState     = errors.New("task is in the wrong state")

	// approvals
	ErrDuplicatePendingApproval = errors.New("a pending approval already exists")
	ErrSelfApprovalForbidden    = errors.New("maker cannot decide own approval")
	ErrAlreadyDecided           = errors.New("approval already decided")

	// offers
	ErrOfferExpired      = errors.New("offer has expired")
	ErrConditionsPending = errors.New("offer has pending conditions")

	// disbursement
	ErrAllocationMismatch = errors.New("disbursement allocation does not reconcile")

	// collaborators
	ErrExternalServiceFailure = errors.New("external service failure")

	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation error")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error

	// CurrentStatus and ValidTransitions are set on state machine errors so the
	// caller can pick its next action.
	CurrentStatus    string
	ValidTransitions []string
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithStatus attaches the current status and its legal targets.
func (e *BusinessError) WithStatus(current string, valid []string) *BusinessError {
	e.CurrentStatus = current
	e.ValidTransitions = append([]string(nil), valid...)
	return e
}

// Error codes
const (
	ErrCodeInvalidTransition        = "INVALID_TRANSITION"
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodePreconditionUnmet        = "PRECONDITION_UNMET"
	ErrCodeAlreadyTerminal          = "ALREADY_TERMINAL"
	ErrCodeDuplicateTask            = "DUPLICATE_TASK"
	ErrCodeAlreadyClaimed           = "ALREADY_CLAIMED"
	ErrCodeNotAssignee              = "NOT_ASSIGNEE"
	ErrCodeWrongState               = "WRONG_STATE"
	ErrCodeDuplicatePendingApproval = "DUPLICATE_PENDING_APPROVAL"
	ErrCodeSelfApprovalForbidden    = "SELF_APPROVAL_FORBIDDEN"
	ErrCodeAlreadyDecided           = "ALREADY_DECIDED"
	ErrCodeOfferExpired             = "OFFER_EXPIRED"
	ErrCodeConditionsPending        = "CONDITIONS_PENDING"
	ErrCodeAllocationMismatch       = "ALLOCATION_MISMATCH"
	ErrCodeExternalServiceFailure   = "EXTERNAL_SERVICE_FAILURE"
	ErrCodeNotFound                 = "NOT_FOUND"
	ErrCodeValidation               = "VALIDATION_ERROR"
	ErrCodeDatabaseError            = "DATABASE_ERROR"
	ErrCodeCacheError               = "CACHE_ERROR"
	ErrCodeLockError                = "LOCK_ERROR"
)

// CodeOf returns the business code carried by err, or "" when err is not a
// BusinessError.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func WrapInvalidTransition(from, to string, valid []string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("cannot move from %s to %s (valid: %s)", from, to, strings.Join(valid, ", ")),
		ErrInvalidTransition,
	).WithStatus(from, valid)
}

func WrapUnauthorized(actorID, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeUnauthorized,
		fmt.Sprintf("actor %s may not move application from %s to %s", actorID, from, to),
		ErrUnauthorized,
	)
}

func WrapPreconditionUnmet(from, to, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodePreconditionUnmet,
		fmt.Sprintf("cannot move from %s to %s: %s", from, to, reason),
		ErrPreconditionUnmet,
	)
}

func WrapAlreadyTerminal(status string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyTerminal,
		fmt.Sprintf("application is %s and accepts no further transitions", status),
		ErrAlreadyTerminal,
	).WithStatus(status, nil)
}

func WrapDuplicateTask(applicationID, queue string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateTask,
		fmt.Sprintf("application %s already has an unfinished %s task", applicationID, queue),
		ErrDuplicateTask,
	)
}

func WrapAlreadyClaimed(taskID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyClaimed,
		fmt.Sprintf("task %s is already claimed", taskID),
		ErrAlreadyClaimed,
	)
}

func WrapNotAssignee(taskID, actorID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotAssignee,
		fmt.Sprintf("actor %s is not assigned to task %s", actorID, taskID),
		ErrNotAssignee,
	)
}

func WrapWrongState(taskID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeWrongState,
		fmt.Sprintf("task %s is %s", taskID, status),
		ErrWrongState,
	)
}

func WrapConditionNotPending(conditionID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeWrongState,
		fmt.Sprintf("condition %s is already %s", conditionID, status),
		ErrWrongState,
	)
}

func WrapOfferNotActive(offerID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeWrongState,
		fmt.Sprintf("offer %s is %s", offerID, status),
		ErrWrongState,
	)
}

func WrapDuplicatePendingApproval(applicationID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicatePendingApproval,
		fmt.Sprintf("application %s already has a pending approval", applicationID),
		ErrDuplicatePendingApproval,
	)
}

func WrapSelfApprovalForbidden(approvalID string) *BusinessError {
	return NewBusinessError(
		ErrCodeSelfApprovalForbidden,
		fmt.Sprintf("approval %s cannot be decided by its requester", approvalID),
		ErrSelfApprovalForbidden,
	)
}

func WrapAlreadyDecided(approvalID, decision string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyDecided,
		fmt.Sprintf("approval %s is already %s", approvalID, decision),
		ErrAlreadyDecided,
	)
}

func WrapOfferExpired(offerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeOfferExpired,
		fmt.Sprintf("offer %s has expired", offerID),
		ErrOfferExpired,
	)
}

func WrapConditionsPending(offerID string, pending int) *BusinessError {
	return NewBusinessError(
		ErrCodeConditionsPending,
		fmt.Sprintf("offer %s has %d pending condition(s)", offerID, pending),
		ErrConditionsPending,
	)
}

func WrapAllocationMismatch(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeAllocationMismatch,
		reason,
		ErrAllocationMismatch,
	)
}

func WrapExternalServiceFailure(service string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeExternalServiceFailure,
		fmt.Sprintf("%s call failed: %v", service, err),
		ErrExternalServiceFailure,
	)
}

func WrapNotFound(kind, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s with ID %s not found", kind, id),
		ErrNotFound,
	)
}

func WrapValidation(message string) *BusinessError {
	return NewBusinessError(
		ErrCodeValidation,
		message,
		ErrValidation,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

func WrapLockError(key string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeLockError,
		fmt.Sprintf("could not acquire lock for %s", key),
		err,
	)
}
