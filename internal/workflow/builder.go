package workflow

import (
	"fmt"

	"github.com/segyhp/loan-origination/internal/domain"
)

// ActorRule names the relationship the acting party must hold to the application
type ActorRule int

const (
	AnyActor ActorRule = iota
	CreatorOnly
	AssignedReviewerOnly
)

func (r ActorRule) String() string {
	switch r {
	case CreatorOnly:
		return "creator"
	case AssignedReviewerOnly:
		return "assigned_reviewer"
	default:
		return "any"
	}
}

// Facts carries the gate inputs that live outside the application row. The
// orchestrator gathers them before validation.
type Facts struct {
	ActiveOffer          bool
	AcceptedOffer        bool
	PendingConditions    int
	ApprovalGranted      bool
	AllocationReconciled bool
	AllocationProblem    string
}

// GuardFunc returns a non-empty reason when the precondition is unmet
type GuardFunc func(app *domain.Application, facts Facts) string

// Rule is a single legal edge in the transition table
type Rule struct {
	From   domain.Status
	To     domain.Status
	Actor  ActorRule
	Guards []GuardFunc
}

// Builder configures the transition table before it is frozen into a Registry
type Builder struct {
	rules map[domain.Status]map[domain.Status]Rule
	tasks map[domain.Status]TaskSpec
}

// StateConfiguration configures outgoing edges for one status
type StateConfiguration struct {
	builder *Builder
	from    domain.Status
}

// TaskSpec describes the work item created when a status is entered
type TaskSpec struct {
	Queue    string
	Priority int
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		rules: make(map[domain.Status]map[domain.Status]Rule),
		tasks: make(map[domain.Status]TaskSpec),
	}
}

// Configure returns the configuration for the given status
func (b *Builder) Configure(status domain.Status) *StateConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}
	if status.IsTerminal() {
		panic(fmt.Sprintf("terminal status %s cannot have outgoing transitions", status))
	}
	if _, ok := b.rules[status]; !ok {
		b.rules[status] = make(map[domain.Status]Rule)
	}
	return &StateConfiguration{builder: b, from: status}
}

// Permit allows a transition to the target for the given actor rule
func (c *StateConfiguration) Permit(to domain.Status, actor ActorRule) *StateConfiguration {
	return c.PermitIf(to, actor)
}

// PermitIf allows a transition to the target when every guard passes
func (c *StateConfiguration) PermitIf(to domain.Status, actor ActorRule, guards ...GuardFunc) *StateConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", to))
	}
	c.builder.rules[c.from][to] = Rule{
		From:   c.from,
		To:     to,
		Actor:  actor,
		Guards: guards,
	}
	return c
}

// OnEntryCreateTask registers the task created whenever the status is entered
func (c *StateConfiguration) OnEntryCreateTask(queue string, priority int) *StateConfiguration {
	c.builder.tasks[c.from] = TaskSpec{Queue: queue, Priority: priority}
	return c
}

// Build freezes the table. Valid targets are precomputed in lifecycle order.
func (b *Builder) Build() *Registry {
	r := &Registry{
		rules:   make(map[domain.Status]map[domain.Status]Rule, len(b.rules)),
		targets: make(map[domain.Status][]domain.Status, len(b.rules)),
		tasks:   make(map[domain.Status]TaskSpec, len(b.tasks)),
	}
	for from, edges := range b.rules {
		copied := make(map[domain.Status]Rule, len(edges))
		for to, rule := range edges {
			rule.Guards = append([]GuardFunc(nil), rule.Guards...)
			copied[to] = rule
		}
		r.rules[from] = copied

		targets := make([]domain.Status, 0, len(edges))
		for _, s := range domain.AllStatuses {
			if _, ok := edges[s]; ok {
				targets = append(targets, s)
			}
		}
		r.targets[from] = targets
	}
	for status, spec := range b.tasks {
		r.tasks[status] = spec
	}
	return r
}
