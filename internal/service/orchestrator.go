package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/disbursement"
	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/segyhp/loan-origination/internal/lock"
	"github.com/segyhp/loan-origination/internal/repository"
	"github.com/segyhp/loan-origination/internal/workflow"
	customError "github.com/segyhp/loan-origination/pkg/errors"
	"github.com/segyhp/loan-origination/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Actor ids used for triggers that do not originate from a person
const (
	CoreBankingActor = "core-banking"
	SchedulerActor   = "scheduler"
)

const defaultLockWait = 5 * time.Second

// WorkflowDeps are the collaborators of the orchestrator. Zero values get
// in-process defaults except Repositories, Parties and Booking.
type WorkflowDeps struct {
	Repositories  repository.Repositories
	Registry      *workflow.Registry
	Allocator     *disbursement.Allocator
	Parties       PartyDirectory
	Booking       *BookingDispatcher
	Locker        lock.Locker
	Conditions    ConditionPolicy
	OfferValidity time.Duration
	SLAThresholds map[domain.Phase]int
	LockWait      time.Duration
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Workflow is the single entry point for every trigger on an application.
// Triggers for one application run one at a time; each commits its state
// change together with exactly one audit event.
type Workflow struct {
	repos     repository.Repositories
	registry  *workflow.Registry
	tasks     *TaskQueue
	approvals *ApprovalAuthority
	offers    *OfferManager
	allocator *disbursement.Allocator
	parties   PartyDirectory
	booking   *BookingDispatcher
	locker    lock.Locker
	sla       map[domain.Phase]int
	lockWait  time.Duration
	logger    *zap.Logger
	clock     func() time.Time
}

func NewWorkflow(deps WorkflowDeps) *Workflow {
	if deps.Registry == nil {
		deps.Registry = workflow.NewRegistry()
	}
	if deps.Allocator == nil {
		deps.Allocator = disbursement.NewAllocator(disbursement.DefaultTolerance)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.LockWait <= 0 {
		deps.LockWait = defaultLockWait
	}
	if deps.OfferValidity <= 0 {
		deps.OfferValidity = 30 * 24 * time.Hour
	}

	return &Workflow{
		repos:     deps.Repositories,
		registry:  deps.Registry,
		tasks:     NewTaskQueue(deps.Repositories.Tasks, deps.Clock),
		approvals: NewApprovalAuthority(deps.Repositories.Approvals, deps.Clock),
		offers:    NewOfferManager(deps.Repositories.Offers, deps.Conditions, deps.OfferValidity, deps.Clock),
		allocator: deps.Allocator,
		parties:   deps.Parties,
		booking:   deps.Booking,
		locker:    deps.Locker,
		sla:       deps.SLAThresholds,
		lockWait:  deps.LockWait,
		logger:    deps.Logger,
		clock:     deps.Clock,
	}
}

// plumbing

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return customError.WrapValidation("actor id is required")
	}
	return nil
}

// mutate locks the application, loads it and runs fn in one transaction.
// fn returns the application as it should be reported afterwards.
func (w *Workflow) mutate(ctx context.Context, op string, applicationID uuid.UUID, fn func(ctx context.Context, app *domain.Application) (*domain.Application, error)) (*domain.StatusInfo, error) {
	lockCtx, cancel := context.WithTimeout(ctx, w.lockWait)
	unlock, err := w.locker.Lock(lockCtx, lock.ApplicationKey(applicationID.String()))
	cancel()
	if err != nil {
		return nil, customError.WrapLockError(applicationID.String(), err)
	}
	defer unlock()

	var result *domain.Application
	err = w.repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		app, err := w.loadApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		next, err := fn(ctx, app)
		if err != nil {
			return err
		}
		if next == nil {
			next = app
		}
		result = next
		return nil
	})
	if err != nil {
		w.logFailure(op, applicationID, err)
		return nil, err
	}

	w.logger.Info("workflow trigger applied",
		zap.String("op", op),
		zap.String("application_id", applicationID.String()),
		zap.String("status", result.Status.String()),
	)
	return w.statusInfo(result), nil
}

func (w *Workflow) logFailure(op string, applicationID uuid.UUID, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("application_id", applicationID.String()),
		zap.Error(err),
	}
	var be *customError.BusinessError
	if errors.As(err, &be) && be.Code != customError.ErrCodeDatabaseError && be.Code != customError.ErrCodeCacheError {
		w.logger.Debug("workflow trigger rejected", append(fields, zap.String("code", be.Code))...)
		return
	}
	w.logger.Error("workflow trigger failed", fields...)
}

func (w *Workflow) loadApplication(ctx context.Context, applicationID uuid.UUID) (*domain.Application, error) {
	app, err := w.repos.Applications.GetByID(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotFound("application", applicationID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return app, nil
}

func (w *Workflow) save(ctx context.Context, prev, next *domain.Application) error {
	err := w.repos.Applications.Update(ctx, next, prev.Status)
	if errors.Is(err, repository.ErrConflict) {
		return customError.NewBusinessError(
			customError.ErrCodeInvalidTransition,
			fmt.Sprintf("application %s changed while it was being updated", prev.ID),
			customError.ErrInvalidTransition,
		)
	}
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (w *Workflow) appendEvent(ctx context.Context, event *domain.AuditEvent) error {
	if err := w.repos.Audit.Append(ctx, event); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// record appends an event that leaves the status unchanged
func (w *Workflow) record(ctx context.Context, app *domain.Application, eventType, actorID string, details map[string]interface{}) error {
	return w.appendEvent(ctx, domain.NewAuditEvent(app.ID, eventType, app.Status, app.Status, actorID, w.clock(), details))
}

// transitionTo validates and persists app -> target with its side effects and
// a single audit event of eventType
func (w *Workflow) transitionTo(ctx context.Context, app *domain.Application, target domain.Status, actorID, reason string, facts workflow.Facts, eventType string, details map[string]interface{}) (*domain.Application, error) {
	next, event, err := w.registry.Transition(app, target, actorID, reason, facts, w.clock())
	if err != nil {
		return nil, err
	}
	event.EventType = eventType
	for k, v := range details {
		event.Details[k] = v
	}

	if err := w.save(ctx, app, next); err != nil {
		return nil, err
	}

	// the stage's review task cannot be completed once the stage is left
	if spec, ok := w.registry.TaskOnEntry(app.Status); ok {
		closed, err := w.tasks.CloseUnfinished(ctx, app.ID, spec.Queue, "closed on move to "+target.String())
		if err != nil {
			return nil, err
		}
		if closed != nil {
			event.Details["closed_task_id"] = closed.ID.String()
		}
	}

	if spec, ok := w.registry.TaskOnEntry(target); ok {
		task, err := w.tasks.CreateTask(ctx, app.ID, spec.Queue, spec.Priority)
		if err != nil {
			return nil, err
		}
		event.Details["task_id"] = task.ID.String()
	}

	if target.IsTerminal() {
		voided, err := w.offers.VoidActive(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		if voided != nil {
			event.Details["voided_offer_id"] = voided.ID.String()
		}
	}

	if err := w.appendEvent(ctx, event); err != nil {
		return nil, err
	}

	w.logger.Debug("application transitioned",
		zap.String("application_id", app.ID.String()),
		zap.String("from", app.Status.String()),
		zap.String("to", target.String()),
		zap.String("actor_id", actorID),
	)
	return next, nil
}

// facts gathers everything the transition guards look at
func (w *Workflow) facts(ctx context.Context, app *domain.Application) (workflow.Facts, error) {
	var f workflow.Facts

	active, accepted, pending, err := w.offers.offerFacts(ctx, app.ID)
	if err != nil {
		return f, err
	}
	f.ActiveOffer = active
	f.AcceptedOffer = accepted
	f.PendingConditions = pending

	granted, err := w.approvals.Granted(ctx, app.ID, app.StatusChangedAt)
	if err != nil {
		return f, err
	}
	f.ApprovalGranted = granted

	if app.Status == domain.StatusESignCompleted {
		alloc, err := w.loadAllocation(ctx, app)
		if err != nil {
			return f, err
		}
		view := w.viewOf(alloc)
		f.AllocationReconciled = view.Reconciled
		f.AllocationProblem = view.Problem
	}

	return f, nil
}

func (w *Workflow) statusInfo(app *domain.Application) *domain.StatusInfo {
	valid := w.registry.ValidTransitions(app.Status)
	if valid == nil {
		valid = []domain.Status{}
	}

	days := utils.DaysInStage(app.StatusChangedAt, w.clock())
	return &domain.StatusInfo{
		ApplicationID:    app.ID,
		Status:           app.Status,
		Phase:            app.Phase(),
		ValidTransitions: valid,
		ProgressPercent:  workflow.Progress(app.Status),
		DaysInStage:      days,
		SLABreached:      !app.Status.IsTerminal() && utils.IsSLABreached(days, w.sla[app.Phase()]),
	}
}

func (w *Workflow) validTargets(status domain.Status) []string {
	targets := w.registry.ValidTransitions(status)
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.String()
	}
	return out
}

// applications

// CreateApplication opens a DRAFT application after checking both the
// applicant and the creator with the party directory
func (w *Workflow) CreateApplication(ctx context.Context, actorID string, req *domain.CreateApplicationRequest) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if !req.ApprovedAmount.IsPositive() {
		return nil, customError.WrapValidation("approved_amount must be greater than 0")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, customError.WrapValidation("currency must be a 3 letter code")
	}

	for _, partyID := range []string{req.ApplicantID, actorID} {
		party, err := w.parties.LookupParty(ctx, partyID)
		if err != nil {
			return nil, customError.WrapExternalServiceFailure("party-directory", err)
		}
		if party == nil || !party.Exists {
			return nil, customError.WrapValidation(fmt.Sprintf("party %s does not exist", partyID))
		}
	}

	now := w.clock()
	app := &domain.Application{
		ID:              uuid.New(),
		ApplicantID:     req.ApplicantID,
		Status:          domain.StatusDraft,
		ApprovedAmount:  utils.RoundCurrency(req.ApprovedAmount),
		Currency:        currency,
		CreatedByID:     actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
	event := domain.NewAuditEvent(app.ID, domain.EventApplicationCreated, "", domain.StatusDraft, actorID, now, map[string]interface{}{
		"applicant_id":    app.ApplicantID,
		"approved_amount": app.ApprovedAmount.StringFixed(2),
		"currency":        app.Currency,
	})

	err := w.repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := w.repos.Applications.Create(ctx, app); err != nil {
			return customError.WrapDatabaseError(err)
		}
		return w.appendEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("application created",
		zap.String("application_id", app.ID.String()),
		zap.String("applicant_id", app.ApplicantID),
		zap.String("created_by", actorID),
	)
	return w.statusInfo(app), nil
}

// Submit moves a DRAFT to SUBMITTED; only the creator may do it
func (w *Workflow) Submit(ctx context.Context, applicationID uuid.UUID, actorID string) (*domain.StatusInfo, error) {
	return w.Transition(ctx, applicationID, actorID, domain.StatusSubmitted, "")
}

// Transition requests an explicit status change. Asking for the current
// non-terminal status is a no-op. Moving to PENDING_BOOKING goes through
// InitiateBooking so the booking is actually dispatched.
func (w *Workflow) Transition(ctx context.Context, applicationID uuid.UUID, actorID string, target domain.Status, reason string) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown status %q", target))
	}
	if target == domain.StatusPendingBooking {
		return w.InitiateBooking(ctx, applicationID, actorID)
	}

	return w.mutate(ctx, "transition", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status == target && !target.IsTerminal() {
			return app, nil
		}
		facts, err := w.facts(ctx, app)
		if err != nil {
			return nil, err
		}
		return w.transitionTo(ctx, app, target, actorID, reason, facts, domain.EventStatusChanged, nil)
	})
}

// RecordKYCResult stores a KYC outcome. From PENDING_KYC a pass moves on to
// credit check and a fail declines; elsewhere only the flag changes. A
// result that changes nothing is a no-op.
func (w *Workflow) RecordKYCResult(ctx context.Context, applicationID uuid.UUID, actorID string, verified bool, reason string) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	return w.mutate(ctx, "kyc_result", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.KYCVerified == verified && app.Status != domain.StatusPendingKYC {
			return app, nil
		}
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}

		base := app.Clone()
		base.KYCVerified = verified
		base.UpdatedAt = w.clock()

		details := map[string]interface{}{"kyc_verified": verified}
		if reason != "" {
			details["reason"] = reason
		}

		if app.Status == domain.StatusPendingKYC {
			target := domain.StatusPendingCreditCheck
			if !verified {
				target = domain.StatusDeclined
			}
			facts, err := w.facts(ctx, base)
			if err != nil {
				return nil, err
			}
			return w.transitionTo(ctx, base, target, actorID, reason, facts, domain.EventKYCRecorded, details)
		}

		if err := w.save(ctx, app, base); err != nil {
			return nil, err
		}
		if err := w.record(ctx, app, domain.EventKYCRecorded, actorID, details); err != nil {
			return nil, err
		}
		return base, nil
	})
}

var creditTargets = map[domain.CreditDecision]domain.Status{
	domain.CreditDecisionApprove: domain.StatusApproved,
	domain.CreditDecisionDecline: domain.StatusDeclined,
	domain.CreditDecisionRefer:   domain.StatusReferredToUnderwriter,
}

// RecordCreditDecision applies the credit engine outcome to an application
// in PENDING_CREDIT_CHECK. Redelivery of an already applied decision is a
// no-op.
func (w *Workflow) RecordCreditDecision(ctx context.Context, applicationID uuid.UUID, actorID string, decision domain.CreditDecision, approvedAmount decimal.Decimal, reason string) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	target, ok := creditTargets[decision]
	if !ok {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown credit decision %q", decision))
	}

	return w.mutate(ctx, "credit_decision", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status == target {
			return app, nil
		}

		base := app.Clone()
		if decision == domain.CreditDecisionApprove && approvedAmount.IsPositive() {
			base.ApprovedAmount = utils.RoundCurrency(approvedAmount)
		}

		facts, err := w.facts(ctx, base)
		if err != nil {
			return nil, err
		}
		return w.transitionTo(ctx, base, target, actorID, reason, facts, domain.EventStatusChanged, map[string]interface{}{
			"credit_decision": string(decision),
			"approved_amount": base.ApprovedAmount.StringFixed(2),
		})
	})
}

// RecordESignCompleted advances PENDING_ESIGN once the envelope is signed
func (w *Workflow) RecordESignCompleted(ctx context.Context, applicationID uuid.UUID, actorID, envelopeID string) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	return w.mutate(ctx, "esign_completed", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status == domain.StatusESignCompleted {
			return app, nil
		}
		facts, err := w.facts(ctx, app)
		if err != nil {
			return nil, err
		}
		details := map[string]interface{}{}
		if envelopeID != "" {
			details["envelope_id"] = envelopeID
		}
		return w.transitionTo(ctx, app, domain.StatusESignCompleted, actorID, "", facts, domain.EventStatusChanged, details)
	})
}

// tasks

// ClaimTask assigns a task to actorID. Claiming the review task of the
// current stage also makes the actor the application's reviewer.
func (w *Workflow) ClaimTask(ctx context.Context, taskID uuid.UUID, actorID string) (*domain.TaskResult, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var claimed *domain.WorkflowTask
	info, err := w.mutate(ctx, "claim_task", task.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}

		t, err := w.tasks.Claim(ctx, taskID, actorID)
		if err != nil {
			return nil, err
		}
		claimed = t

		next := app
		if spec, ok := w.registry.TaskOnEntry(app.Status); ok && spec.Queue == t.Queue {
			next = app.Clone()
			next.AssignedReviewerID = &actorID
			next.UpdatedAt = w.clock()
			if err := w.save(ctx, app, next); err != nil {
				return nil, err
			}
		}

		return next, w.record(ctx, app, domain.EventTaskClaimed, actorID, map[string]interface{}{
			"task_id": t.ID.String(),
			"queue":   t.Queue,
		})
	})
	if err != nil {
		return nil, err
	}
	return &domain.TaskResult{Task: claimed, Status: info}, nil
}

// ReleaseTask hands a task back to its queue and clears the reviewer
func (w *Workflow) ReleaseTask(ctx context.Context, taskID uuid.UUID, actorID string) (*domain.TaskResult, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var released *domain.WorkflowTask
	info, err := w.mutate(ctx, "release_task", task.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		t, err := w.tasks.Release(ctx, taskID, actorID)
		if err != nil {
			return nil, err
		}
		released = t

		next := app
		if spec, ok := w.registry.TaskOnEntry(app.Status); ok && spec.Queue == t.Queue && app.IsAssignedReviewer(actorID) {
			next = app.Clone()
			next.AssignedReviewerID = nil
			next.UpdatedAt = w.clock()
			if err := w.save(ctx, app, next); err != nil {
				return nil, err
			}
		}

		return next, w.record(ctx, app, domain.EventTaskReleased, actorID, map[string]interface{}{
			"task_id": t.ID.String(),
			"queue":   t.Queue,
		})
	})
	if err != nil {
		return nil, err
	}
	return &domain.TaskResult{Task: released, Status: info}, nil
}

// taskTarget maps a task decision onto the status it leads to
func taskTarget(queue string, decision domain.TaskDecision) (domain.Status, bool, error) {
	switch decision {
	case domain.TaskDecisionApprove:
		return domain.StatusApproved, true, nil
	case domain.TaskDecisionDecline:
		return domain.StatusDeclined, true, nil
	case domain.TaskDecisionRefer:
		if queue != domain.QueueUnderwriting {
			return "", false, customError.WrapValidation(fmt.Sprintf("a %s task cannot be referred further", queue))
		}
		return domain.StatusReferredToSenior, true, nil
	case domain.TaskDecisionNone:
		return "", false, nil
	default:
		return "", false, customError.WrapValidation(fmt.Sprintf("unknown task decision %q", decision))
	}
}

// CompleteTask closes a task and applies its decision to the application.
// Both happen in the same transaction, so a rejected transition leaves the
// task IN_PROGRESS.
func (w *Workflow) CompleteTask(ctx context.Context, taskID uuid.UUID, actorID string, decision domain.TaskDecision, notes string) (*domain.TaskResult, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	target, move, err := taskTarget(task.Queue, decision)
	if err != nil {
		return nil, err
	}

	var completed *domain.WorkflowTask
	info, err := w.mutate(ctx, "complete_task", task.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}

		t, err := w.tasks.Complete(ctx, taskID, actorID, decision, notes)
		if err != nil {
			return nil, err
		}
		completed = t

		details := map[string]interface{}{
			"task_id":  t.ID.String(),
			"queue":    t.Queue,
			"decision": string(decision),
		}
		if notes != "" {
			details["notes"] = notes
		}

		if !move {
			return app, w.record(ctx, app, domain.EventTaskCompleted, actorID, details)
		}

		facts, err := w.facts(ctx, app)
		if err != nil {
			return nil, err
		}
		return w.transitionTo(ctx, app, target, actorID, notes, facts, domain.EventTaskCompleted, details)
	})
	if err != nil {
		return nil, err
	}
	return &domain.TaskResult{Task: completed, Status: info}, nil
}

// ListTasks returns every task of an application, oldest first
func (w *Workflow) ListTasks(ctx context.Context, applicationID uuid.UUID) ([]*domain.WorkflowTask, error) {
	if _, err := w.loadApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return w.tasks.ListByApplication(ctx, applicationID)
}

// approvals

// RequestApproval opens a maker-checker approval on an application
func (w *Workflow) RequestApproval(ctx context.Context, applicationID uuid.UUID, makerID, reason string) (*domain.ApprovalResult, error) {
	if err := requireActor(makerID); err != nil {
		return nil, err
	}

	var requested *domain.Approval
	info, err := w.mutate(ctx, "request_approval", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}

		approval, err := w.approvals.Request(ctx, app.ID, makerID, reason)
		if err != nil {
			return nil, err
		}
		requested = approval

		return app, w.record(ctx, app, domain.EventApprovalRequested, makerID, map[string]interface{}{
			"approval_id": approval.ID.String(),
			"reason":      reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &domain.ApprovalResult{Approval: requested, Status: info}, nil
}

// DecideApproval records the checker's decision
func (w *Workflow) DecideApproval(ctx context.Context, approvalID uuid.UUID, checkerID string, approve bool, reason string) (*domain.ApprovalResult, error) {
	if err := requireActor(checkerID); err != nil {
		return nil, err
	}
	approval, err := w.approvals.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	var decided *domain.Approval
	info, err := w.mutate(ctx, "decide_approval", approval.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		a, err := w.approvals.Decide(ctx, approvalID, checkerID, approve, reason)
		if err != nil {
			return nil, err
		}
		decided = a

		details := map[string]interface{}{
			"approval_id":  a.ID.String(),
			"decision":     string(a.Decision),
			"requested_by": a.RequestedByID,
		}
		if reason != "" {
			details["reason"] = reason
		}
		return app, w.record(ctx, app, domain.EventApprovalDecided, checkerID, details)
	})
	if err != nil {
		return nil, err
	}
	return &domain.ApprovalResult{Approval: decided, Status: info}, nil
}

// ListApprovals returns every approval of an application, oldest first
func (w *Workflow) ListApprovals(ctx context.Context, applicationID uuid.UUID) ([]*domain.Approval, error) {
	if _, err := w.loadApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return w.approvals.ListByApplication(ctx, applicationID)
}

// offers

// GenerateOffer issues a new offer version. The first offer moves APPROVED
// to OFFER_GENERATED; later ones replace the active offer in place.
func (w *Workflow) GenerateOffer(ctx context.Context, applicationID uuid.UUID, actorID string, terms domain.OfferTerms) (*domain.OfferResponse, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var generated *domain.OfferResponse
	info, err := w.mutate(ctx, "generate_offer", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}
		if app.Status != domain.StatusApproved && app.Status != domain.StatusOfferGenerated {
			return nil, customError.WrapInvalidTransition(app.Status.String(), domain.StatusOfferGenerated.String(), w.validTargets(app.Status))
		}

		resp, voided, err := w.offers.Generate(ctx, app, terms)
		if err != nil {
			return nil, err
		}
		generated = resp

		details := map[string]interface{}{
			"offer_id":   resp.Offer.ID.String(),
			"version":    resp.Offer.Version,
			"amount":     resp.Offer.Amount.StringFixed(2),
			"expiry_at":  resp.Offer.ExpiryAt.Format(time.RFC3339),
			"conditions": len(resp.Conditions),
		}
		if voided != nil {
			details["voided_offer_id"] = voided.ID.String()
		}

		if app.Status == domain.StatusOfferGenerated {
			return app, w.record(ctx, app, domain.EventOfferGenerated, actorID, details)
		}

		facts, err := w.facts(ctx, app)
		if err != nil {
			return nil, err
		}
		return w.transitionTo(ctx, app, domain.StatusOfferGenerated, actorID, "", facts, domain.EventOfferGenerated, details)
	})
	if err != nil {
		return nil, err
	}
	generated.Status = info
	return generated, nil
}

// GetLatestOffer returns the newest offer with its conditions
func (w *Workflow) GetLatestOffer(ctx context.Context, applicationID uuid.UUID) (*domain.OfferResponse, error) {
	app, err := w.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	resp, err := w.offers.Latest(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	resp.Status = w.statusInfo(app)
	return resp, nil
}

// AcceptOffer accepts the active offer and moves the application to
// PENDING_ESIGN. The accepted amount becomes the amount to disburse.
// Accepting an already accepted offer again is a no-op.
func (w *Workflow) AcceptOffer(ctx context.Context, offerID uuid.UUID, actorID string) (*domain.OfferResponse, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	offer, err := w.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var accepted *domain.Offer
	info, err := w.mutate(ctx, "accept_offer", offer.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}

		current, err := w.offers.Get(ctx, offerID)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.OfferStatusAccepted && app.Status != domain.StatusOfferGenerated {
			accepted = current
			return app, nil
		}
		if app.Status != domain.StatusOfferGenerated {
			return nil, customError.WrapInvalidTransition(app.Status.String(), domain.StatusPendingESign.String(), w.validTargets(app.Status))
		}

		a, err := w.offers.Accept(ctx, offerID, actorID)
		if err != nil {
			return nil, err
		}
		accepted = a

		base := app.Clone()
		base.ApprovedAmount = a.Amount

		facts, err := w.facts(ctx, base)
		if err != nil {
			return nil, err
		}
		return w.transitionTo(ctx, base, domain.StatusPendingESign, actorID, "", facts, domain.EventOfferAccepted, map[string]interface{}{
			"offer_id": a.ID.String(),
			"version":  a.Version,
			"amount":   a.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	conditions, err := w.offers.Conditions(ctx, offerID)
	if err != nil {
		return nil, err
	}
	return &domain.OfferResponse{Offer: accepted, Conditions: conditions, Status: info}, nil
}

// SatisfyCondition marks a condition as met
func (w *Workflow) SatisfyCondition(ctx context.Context, conditionID uuid.UUID, actorID string) (*domain.ConditionResult, error) {
	return w.resolveCondition(ctx, "satisfy_condition", conditionID, actorID, "", false)
}

// WaiveCondition sets a condition aside. The reason is mandatory and the
// audit trail keeps waivers distinct from satisfactions.
func (w *Workflow) WaiveCondition(ctx context.Context, conditionID uuid.UUID, actorID, reason string) (*domain.ConditionResult, error) {
	return w.resolveCondition(ctx, "waive_condition", conditionID, actorID, reason, true)
}

func (w *Workflow) resolveCondition(ctx context.Context, op string, conditionID uuid.UUID, actorID, reason string, waive bool) (*domain.ConditionResult, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if waive && strings.TrimSpace(reason) == "" {
		return nil, customError.WrapValidation("waiver reason is required")
	}
	condition, err := w.offers.GetCondition(ctx, conditionID)
	if err != nil {
		return nil, err
	}
	offer, err := w.offers.Get(ctx, condition.OfferID)
	if err != nil {
		return nil, err
	}

	var resolved *domain.OfferCondition
	info, err := w.mutate(ctx, op, offer.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}

		var c *domain.OfferCondition
		var err error
		eventType := domain.EventConditionSatisfied
		if waive {
			eventType = domain.EventConditionWaived
			c, _, err = w.offers.Waive(ctx, conditionID, actorID, reason)
		} else {
			c, _, err = w.offers.Satisfy(ctx, conditionID, actorID)
		}
		if err != nil {
			return nil, err
		}
		resolved = c

		details := map[string]interface{}{
			"condition_id":   c.ID.String(),
			"condition_type": c.ConditionType,
			"offer_id":       c.OfferID.String(),
		}
		if waive {
			details["reason"] = reason
		}
		return app, w.record(ctx, app, eventType, actorID, details)
	})
	if err != nil {
		return nil, err
	}
	return &domain.ConditionResult{Condition: resolved, Status: info}, nil
}

// ExpireOffers marks every ACTIVE offer past its expiry EXPIRED. Each offer
// is handled under its application's lock; failures are logged and
// reported together.
func (w *Workflow) ExpireOffers(ctx context.Context) (int, error) {
	due, err := w.offers.ListExpirable(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, offer := range due {
		offerID := offer.ID
		changed := false
		_, err := w.mutate(ctx, "expire_offer", offer.ApplicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
			o, ok, err := w.offers.Expire(ctx, offerID)
			if err != nil || !ok {
				return app, err
			}
			changed = true
			return app, w.record(ctx, app, domain.EventOfferExpired, SchedulerActor, map[string]interface{}{
				"offer_id":  o.ID.String(),
				"version":   o.Version,
				"expiry_at": o.ExpiryAt.Format(time.RFC3339),
			})
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			expired++
		}
	}

	return expired, errors.Join(errs...)
}

// disbursement

func allocationEditable(status domain.Status) bool {
	return status == domain.StatusPendingESign || status == domain.StatusESignCompleted
}

func (w *Workflow) loadAllocation(ctx context.Context, app *domain.Application) (*domain.DisbursementAllocation, error) {
	alloc, err := w.repos.Allocations.Get(ctx, app.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return disbursement.NewAllocation(app), nil
	}
	if err != nil {
		return nil, customError.WrapCacheError(err)
	}
	return alloc, nil
}

func (w *Workflow) viewOf(alloc *domain.DisbursementAllocation) *domain.AllocationView {
	view := &domain.AllocationView{
		Allocation: alloc,
		Allocated:  disbursement.Sum(alloc),
		Remaining:  w.allocator.Remaining(alloc),
		Reconciled: true,
	}
	if err := w.allocator.Validate(alloc); err != nil {
		view.Reconciled = false
		var be *customError.BusinessError
		if errors.As(err, &be) {
			view.Problem = be.Message
		} else {
			view.Problem = err.Error()
		}
	}
	return view
}

// editAllocation runs fn on the working set under the application lock
func (w *Workflow) editAllocation(ctx context.Context, op string, applicationID uuid.UUID, actorID string, fn func(alloc *domain.DisbursementAllocation) error) (*domain.AllocationView, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var view *domain.AllocationView
	_, err := w.mutate(ctx, op, applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}
		if !allocationEditable(app.Status) {
			return nil, customError.WrapPreconditionUnmet(app.Status.String(), domain.StatusPendingBooking.String(),
				"the disbursement allocation can only be edited between offer acceptance and booking")
		}

		alloc, err := w.loadAllocation(ctx, app)
		if err != nil {
			return nil, err
		}
		if err := fn(alloc); err != nil {
			return nil, err
		}
		if err := w.repos.Allocations.Save(ctx, alloc); err != nil {
			return nil, customError.WrapCacheError(err)
		}

		view = w.viewOf(alloc)
		return app, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GetAllocation returns the working set, empty if nothing was added yet
func (w *Workflow) GetAllocation(ctx context.Context, applicationID uuid.UUID) (*domain.AllocationView, error) {
	app, err := w.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	alloc, err := w.loadAllocation(ctx, app)
	if err != nil {
		return nil, err
	}
	return w.viewOf(alloc), nil
}

func (w *Workflow) AddDisbursementLine(ctx context.Context, applicationID uuid.UUID, actorID, accountRef string, isExternal bool) (*domain.AllocationView, error) {
	return w.editAllocation(ctx, "add_line", applicationID, actorID, func(alloc *domain.DisbursementAllocation) error {
		_, err := w.allocator.AddLine(alloc, accountRef, isExternal)
		return err
	})
}

func (w *Workflow) SetLineAmount(ctx context.Context, applicationID uuid.UUID, actorID string, lineID uuid.UUID, amount decimal.Decimal) (*domain.AllocationView, error) {
	return w.editAllocation(ctx, "set_amount", applicationID, actorID, func(alloc *domain.DisbursementAllocation) error {
		_, err := w.allocator.SetAmount(alloc, lineID, amount)
		return err
	})
}

func (w *Workflow) SetLinePercentage(ctx context.Context, applicationID uuid.UUID, actorID string, lineID uuid.UUID, pct decimal.Decimal) (*domain.AllocationView, error) {
	return w.editAllocation(ctx, "set_percentage", applicationID, actorID, func(alloc *domain.DisbursementAllocation) error {
		_, err := w.allocator.SetPercentage(alloc, lineID, pct)
		return err
	})
}

func (w *Workflow) DistributeEqually(ctx context.Context, applicationID uuid.UUID, actorID string) (*domain.AllocationView, error) {
	return w.editAllocation(ctx, "distribute", applicationID, actorID, w.allocator.DistributeEqually)
}

func (w *Workflow) RemoveLine(ctx context.Context, applicationID uuid.UUID, actorID string, lineID uuid.UUID) (*domain.AllocationView, error) {
	return w.editAllocation(ctx, "remove_line", applicationID, actorID, func(alloc *domain.DisbursementAllocation) error {
		return w.allocator.RemoveLine(alloc, lineID)
	})
}

// ValidateAllocation fails with AllocationMismatch unless the working set
// reconciles
func (w *Workflow) ValidateAllocation(ctx context.Context, applicationID uuid.UUID) (*domain.AllocationView, error) {
	view, err := w.GetAllocation(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := w.allocator.Validate(view.Allocation); err != nil {
		return view, err
	}
	return view, nil
}

// booking

func bookingRequest(app *domain.Application, alloc *domain.DisbursementAllocation, attempt int) *domain.BookingRequest {
	return &domain.BookingRequest{
		ApplicationID:  app.ID,
		IdempotencyKey: fmt.Sprintf("%s-%d", app.ID, attempt),
		Amount:         alloc.ApprovedAmount,
		Currency:       alloc.Currency,
		Lines:          alloc.Lines,
	}
}

// bookingHistory returns the last booking event type and how many attempts
// were started
func (w *Workflow) bookingHistory(ctx context.Context, applicationID uuid.UUID) (string, int, error) {
	events, err := w.repos.Audit.ListByApplication(ctx, applicationID)
	if err != nil {
		return "", 0, customError.WrapDatabaseError(err)
	}
	last, attempts := "", 0
	for _, e := range events {
		switch e.EventType {
		case domain.EventBookingInitiated:
			attempts++
			last = e.EventType
		case domain.EventBookingFailed, domain.EventBookingSucceeded:
			last = e.EventType
		}
	}
	return last, attempts, nil
}

// InitiateBooking validates the allocation, snapshots it into the audit
// record, moves to PENDING_BOOKING and submits to core banking in the
// background. Calling it again while the booking is pending is a no-op.
func (w *Workflow) InitiateBooking(ctx context.Context, applicationID uuid.UUID, actorID string) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var req *domain.BookingRequest
	info, err := w.mutate(ctx, "initiate_booking", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status == domain.StatusPendingBooking {
			return app, nil
		}

		facts, err := w.facts(ctx, app)
		if err != nil {
			return nil, err
		}
		alloc, err := w.loadAllocation(ctx, app)
		if err != nil {
			return nil, err
		}

		next, err := w.transitionTo(ctx, app, domain.StatusPendingBooking, actorID, "", facts, domain.EventBookingInitiated, map[string]interface{}{
			"allocation": disbursement.Snapshot(alloc),
			"attempt":    1,
		})
		if err != nil {
			return nil, err
		}
		req = bookingRequest(next, alloc, 1)
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	w.dispatch(req, applicationID)
	return info, nil
}

// RetryBooking resubmits a booking whose last attempt failed
func (w *Workflow) RetryBooking(ctx context.Context, applicationID uuid.UUID, actorID string) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var req *domain.BookingRequest
	info, err := w.mutate(ctx, "retry_booking", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if app.Status.IsTerminal() {
			return nil, customError.WrapAlreadyTerminal(app.Status.String())
		}
		if app.Status != domain.StatusPendingBooking {
			return nil, customError.WrapInvalidTransition(app.Status.String(), domain.StatusPendingBooking.String(), w.validTargets(app.Status))
		}

		last, attempts, err := w.bookingHistory(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		if last != domain.EventBookingFailed {
			return nil, customError.WrapPreconditionUnmet(app.Status.String(), app.Status.String(), "the current booking attempt has not failed")
		}

		alloc, err := w.loadAllocation(ctx, app)
		if err != nil {
			return nil, err
		}
		if err := w.allocator.Validate(alloc); err != nil {
			return nil, err
		}

		attempt := attempts + 1
		if err := w.record(ctx, app, domain.EventBookingInitiated, actorID, map[string]interface{}{
			"allocation": disbursement.Snapshot(alloc),
			"attempt":    attempt,
		}); err != nil {
			return nil, err
		}
		req = bookingRequest(app, alloc, attempt)
		return app, nil
	})
	if err != nil {
		return nil, err
	}

	w.dispatch(req, applicationID)
	return info, nil
}

// dispatch hands req to core banking. Without a dispatcher the result is
// expected on the booking callback route.
func (w *Workflow) dispatch(req *domain.BookingRequest, applicationID uuid.UUID) {
	if req == nil || w.booking == nil {
		return
	}
	w.booking.Dispatch(req, w.bookingCallback(applicationID))
}

func (w *Workflow) bookingCallback(applicationID uuid.UUID) func(context.Context, *domain.BookingResult) {
	return func(ctx context.Context, result *domain.BookingResult) {
		if _, err := w.RecordBookingResult(ctx, applicationID, CoreBankingActor, result); err != nil {
			w.logger.Error("failed to record booking result",
				zap.String("application_id", applicationID.String()),
				zap.Bool("success", result.Success),
				zap.Error(err),
			)
		}
	}
}

// RecordBookingResult applies a core banking outcome. Success books the
// application; failure is audited and leaves it in PENDING_BOOKING for a
// manual retry. Redelivered results are no-ops.
func (w *Workflow) RecordBookingResult(ctx context.Context, applicationID uuid.UUID, actorID string, result *domain.BookingResult) (*domain.StatusInfo, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, customError.WrapValidation("booking result is required")
	}

	booked := false
	info, err := w.mutate(ctx, "booking_result", applicationID, func(ctx context.Context, app *domain.Application) (*domain.Application, error) {
		if result.Success {
			if app.Status == domain.StatusBooked {
				return app, nil
			}
			if strings.TrimSpace(result.BookingReference) == "" {
				return nil, customError.WrapValidation("a successful booking needs a booking reference")
			}

			base := app.Clone()
			reference := result.BookingReference
			base.BookingReference = &reference

			facts, err := w.facts(ctx, base)
			if err != nil {
				return nil, err
			}
			next, err := w.transitionTo(ctx, base, domain.StatusBooked, actorID, "", facts, domain.EventBookingSucceeded, map[string]interface{}{
				"booking_reference": reference,
			})
			if err != nil {
				return nil, err
			}
			booked = true
			return next, nil
		}

		if app.Status != domain.StatusPendingBooking {
			return nil, customError.WrapInvalidTransition(app.Status.String(), domain.StatusPendingBooking.String(), w.validTargets(app.Status))
		}
		last, _, err := w.bookingHistory(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		if last == domain.EventBookingFailed {
			return app, nil
		}

		w.logger.Warn("booking failed",
			zap.String("application_id", app.ID.String()),
			zap.String("error_message", result.ErrorMessage),
		)
		return app, w.record(ctx, app, domain.EventBookingFailed, actorID, map[string]interface{}{
			"error_message": result.ErrorMessage,
		})
	})
	if err != nil {
		return nil, err
	}

	if booked {
		if err := w.repos.Allocations.Delete(ctx, applicationID); err != nil {
			w.logger.Warn("failed to drop booked allocation", zap.String("application_id", applicationID.String()), zap.Error(err))
		}
	}
	return info, nil
}

// reads

func (w *Workflow) GetApplication(ctx context.Context, applicationID uuid.UUID) (*domain.Application, error) {
	return w.loadApplication(ctx, applicationID)
}

// GetStatusInfo returns status, phase, legal next steps, progress and SLA
func (w *Workflow) GetStatusInfo(ctx context.Context, applicationID uuid.UUID) (*domain.StatusInfo, error) {
	app, err := w.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return w.statusInfo(app), nil
}

// AuditTrail returns every event of an application in order
func (w *Workflow) AuditTrail(ctx context.Context, applicationID uuid.UUID) ([]*domain.AuditEvent, error) {
	if _, err := w.loadApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	events, err := w.repos.Audit.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return events, nil
}

// ScanSLABreaches lists active applications that exceeded their phase
// threshold. It is read-only.
func (w *Workflow) ScanSLABreaches(ctx context.Context) ([]*domain.SLABreach, error) {
	apps, err := w.repos.Applications.ListActive(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	breaches := make([]*domain.SLABreach, 0)
	for _, app := range apps {
		info := w.statusInfo(app)
		if !info.SLABreached {
			continue
		}
		breach := &domain.SLABreach{
			ApplicationID: app.ID,
			Status:        app.Status,
			Phase:         info.Phase,
			DaysInStage:   info.DaysInStage,
			ThresholdDays: w.sla[info.Phase],
		}
		breaches = append(breaches, breach)

		w.logger.Warn("SLA breached",
			zap.String("application_id", app.ID.String()),
			zap.String("status", app.Status.String()),
			zap.Int("days_in_stage", breach.DaysInStage),
			zap.Int("threshold_days", breach.ThresholdDays),
		)
	}
	return breaches, nil
}
