package workflow

import (
	"time"

	"github.com/segyhp/loan-origination/internal/domain"
	customError "github.com/segyhp/loan-origination/pkg/errors"
)

// Registry is the frozen transition table. It is pure and safe for
// concurrent use.
type Registry struct {
	rules   map[domain.Status]map[domain.Status]Rule
	targets map[domain.Status][]domain.Status
	tasks   map[domain.Status]TaskSpec
}

// Guards

func KYCVerified(app *domain.Application, _ Facts) string {
	if !app.KYCVerified {
		return "KYC is not verified"
	}
	return ""
}

func ActiveOfferExists(_ *domain.Application, f Facts) string {
	if !f.ActiveOffer {
		return "no active offer"
	}
	return ""
}

func OfferAcceptedWithoutPendingConditions(_ *domain.Application, f Facts) string {
	if f.PendingConditions > 0 {
		return "offer has pending conditions"
	}
	if !f.AcceptedOffer {
		return "offer has not been accepted"
	}
	return ""
}

func ApprovalGranted(_ *domain.Application, f Facts) string {
	if !f.ApprovalGranted {
		return "no granted maker-checker approval"
	}
	return ""
}

func AllocationReconciled(_ *domain.Application, f Facts) string {
	if !f.AllocationReconciled {
		if f.AllocationProblem != "" {
			return f.AllocationProblem
		}
		return "disbursement allocation is not reconciled"
	}
	return ""
}

// NewRegistry builds the loan origination transition table
func NewRegistry() *Registry {
	b := NewBuilder()

	b.Configure(domain.StatusDraft).
		Permit(domain.StatusSubmitted, CreatorOnly).
		Permit(domain.StatusCancelled, CreatorOnly)

	b.Configure(domain.StatusSubmitted).
		Permit(domain.StatusPendingKYC, AnyActor).
		Permit(domain.StatusPendingCreditCheck, AnyActor)

	b.Configure(domain.StatusPendingKYC).
		PermitIf(domain.StatusPendingCreditCheck, AnyActor, KYCVerified).
		Permit(domain.StatusDeclined, AnyActor)

	b.Configure(domain.StatusPendingCreditCheck).
		PermitIf(domain.StatusApproved, AnyActor, KYCVerified).
		Permit(domain.StatusDeclined, AnyActor).
		Permit(domain.StatusReferredToUnderwriter, AnyActor)

	b.Configure(domain.StatusReferredToUnderwriter).
		OnEntryCreateTask(domain.QueueUnderwriting, 1).
		PermitIf(domain.StatusApproved, AssignedReviewerOnly, KYCVerified).
		Permit(domain.StatusDeclined, AssignedReviewerOnly).
		Permit(domain.StatusReferredToSenior, AssignedReviewerOnly)

	b.Configure(domain.StatusReferredToSenior).
		OnEntryCreateTask(domain.QueueSeniorReview, 2).
		PermitIf(domain.StatusApproved, AssignedReviewerOnly, KYCVerified, ApprovalGranted).
		Permit(domain.StatusDeclined, AssignedReviewerOnly)

	b.Configure(domain.StatusApproved).
		PermitIf(domain.StatusOfferGenerated, AnyActor, ActiveOfferExists)

	b.Configure(domain.StatusOfferGenerated).
		PermitIf(domain.StatusPendingESign, AnyActor, OfferAcceptedWithoutPendingConditions)

	b.Configure(domain.StatusPendingESign).
		Permit(domain.StatusESignCompleted, AnyActor)

	b.Configure(domain.StatusESignCompleted).
		PermitIf(domain.StatusPendingBooking, AnyActor, AllocationReconciled)

	b.Configure(domain.StatusPendingBooking).
		Permit(domain.StatusBooked, AnyActor)

	// Booking in flight is never abandoned from here
	for _, s := range domain.AllStatuses {
		if s.IsTerminal() || s == domain.StatusPendingBooking {
			continue
		}
		cfg := b.Configure(s).Permit(domain.StatusCancelled, CreatorOnly)
		if s != domain.StatusDraft {
			cfg.Permit(domain.StatusWithdrawn, CreatorOnly)
		}
	}

	return b.Build()
}

// ValidTransitions returns the legal targets from a status in lifecycle order
func (r *Registry) ValidTransitions(from domain.Status) []domain.Status {
	return append([]domain.Status(nil), r.targets[from]...)
}

// Rule returns the edge from -> to, if legal
func (r *Registry) Rule(from, to domain.Status) (Rule, bool) {
	rule, ok := r.rules[from][to]
	return rule, ok
}

// TaskOnEntry returns the task to create when a status is entered
func (r *Registry) TaskOnEntry(status domain.Status) (TaskSpec, bool) {
	spec, ok := r.tasks[status]
	return spec, ok
}

// Validate checks a requested transition without touching the application
func (r *Registry) Validate(app *domain.Application, target domain.Status, actorID string, facts Facts) error {
	if app.Status.IsTerminal() {
		return customError.WrapAlreadyTerminal(app.Status.String())
	}

	rule, ok := r.Rule(app.Status, target)
	if !ok {
		return customError.WrapInvalidTransition(app.Status.String(), target.String(), statusStrings(r.targets[app.Status]))
	}

	switch rule.Actor {
	case CreatorOnly:
		if actorID != app.CreatedByID {
			return customError.WrapUnauthorized(actorID, app.Status.String(), target.String())
		}
	case AssignedReviewerOnly:
		if !app.IsAssignedReviewer(actorID) {
			return customError.WrapUnauthorized(actorID, app.Status.String(), target.String())
		}
	}

	for _, guard := range rule.Guards {
		if reason := guard(app, facts); reason != "" {
			return customError.WrapPreconditionUnmet(app.Status.String(), target.String(), reason)
		}
	}

	return nil
}

// Apply returns a copy of app moved to target. It does not validate.
func (r *Registry) Apply(app *domain.Application, target domain.Status, now time.Time) *domain.Application {
	next := app.Clone()
	next.Status = target
	next.StatusChangedAt = now
	next.UpdatedAt = now

	switch target {
	case domain.StatusSubmitted:
		next.SubmittedAt = &now
	case domain.StatusApproved, domain.StatusDeclined:
		next.DecidedAt = &now
	case domain.StatusReferredToSenior:
		// the senior reviewer is assigned when the senior task is claimed
		next.AssignedReviewerID = nil
	}

	return next
}

// Transition validates and applies a status change, returning the updated
// application and its audit event. On error app is untouched.
func (r *Registry) Transition(app *domain.Application, target domain.Status, actorID, reason string, facts Facts, now time.Time) (*domain.Application, *domain.AuditEvent, error) {
	if err := r.Validate(app, target, actorID, facts); err != nil {
		return nil, nil, err
	}

	next := r.Apply(app, target, now)
	details := map[string]interface{}{}
	if reason != "" {
		details["reason"] = reason
	}
	event := domain.NewAuditEvent(app.ID, domain.EventStatusChanged, app.Status, target, actorID, now, details)

	return next, event, nil
}

var progress = map[domain.Status]int{
	domain.StatusDraft:                 0,
	domain.StatusSubmitted:             10,
	domain.StatusPendingKYC:            20,
	domain.StatusPendingCreditCheck:    30,
	domain.StatusReferredToUnderwriter: 40,
	domain.StatusReferredToSenior:      45,
	domain.StatusApproved:              50,
	domain.StatusOfferGenerated:        60,
	domain.StatusPendingESign:          70,
	domain.StatusESignCompleted:        80,
	domain.StatusPendingBooking:        90,
}

// Progress returns how far through the lifecycle a status is, 0-100
func Progress(status domain.Status) int {
	if status.IsTerminal() {
		return 100
	}
	return progress[status]
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
