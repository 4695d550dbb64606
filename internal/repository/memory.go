package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"
)

type memoryTxKey struct{}

// MemoryStore keeps every aggregate in process memory. Transactions are
// rolled back by restoring a snapshot, so they are serialized across all
// applications: two applications never commit in parallel here. It is meant
// for development and tests; the postgres backend only serializes per row.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	applications map[uuid.UUID]domain.Application
	tasks        map[uuid.UUID]domain.WorkflowTask
	approvals    map[uuid.UUID]domain.Approval
	offers       map[uuid.UUID]domain.Offer
	conditions   map[uuid.UUID]domain.OfferCondition
	events       []domain.AuditEvent
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memoryData{
		applications: make(map[uuid.UUID]domain.Application),
		tasks:        make(map[uuid.UUID]domain.WorkflowTask),
		approvals:    make(map[uuid.UUID]domain.Approval),
		offers:       make(map[uuid.UUID]domain.Offer),
		conditions:   make(map[uuid.UUID]domain.OfferCondition),
	}}
}

// NewMemoryRepositories wires a MemoryStore and a MemoryAllocationStore
func NewMemoryRepositories() Repositories {
	s := NewMemoryStore()
	return Repositories{
		Tx:           s,
		Applications: s.Applications(),
		Tasks:        s.Tasks(),
		Approvals:    s.Approvals(),
		Offers:       s.Offers(),
		Audit:        s.Audit(),
		Allocations:  NewMemoryAllocationStore(),
	}
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		applications: make(map[uuid.UUID]domain.Application, len(d.applications)),
		tasks:        make(map[uuid.UUID]domain.WorkflowTask, len(d.tasks)),
		approvals:    make(map[uuid.UUID]domain.Approval, len(d.approvals)),
		offers:       make(map[uuid.UUID]domain.Offer, len(d.offers)),
		conditions:   make(map[uuid.UUID]domain.OfferCondition, len(d.conditions)),
		events:       append([]domain.AuditEvent(nil), d.events...),
	}
	for k, v := range d.applications {
		c.applications[k] = v
	}
	for k, v := range d.tasks {
		c.tasks[k] = v
	}
	for k, v := range d.approvals {
		c.approvals[k] = v
	}
	for k, v := range d.offers {
		c.offers[k] = v
	}
	for k, v := range d.conditions {
		c.conditions[k] = v
	}
	return c
}

func (s *MemoryStore) Applications() ApplicationRepository { return (*memoryApplications)(s) }
func (s *MemoryStore) Tasks() TaskRepository { return (*memoryTasks)(s) }
func (s *MemoryStore) Approvals() ApprovalRepository { return (*memoryApprovals)(s) }
func (s *MemoryStore) Offers() OfferRepository { return (*memoryOffers)(s) }
func (s *MemoryStore) Audit() AuditRepository { return (*memoryAudit)(s) }

// Pointer fields are copied on the way in and out so callers never share
// state with the store.

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// applications

type memoryApplications MemoryStore

func (r *memoryApplications) Create(ctx context.Context, app *domain.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data.applications[app.ID]; exists {
		return ErrConflict
	}
	r.data.applications[app.ID] = *app.Clone()
	return nil
}

func (r *memoryApplications) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.data.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return app.Clone(), nil
}

func (r *memoryApplications) Update(ctx context.Context, app *domain.Application, expectedStatus domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data.applications[app.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expectedStatus {
		return ErrConflict
	}
	r.data.applications[app.ID] = *app.Clone()
	return nil
}

func (r *memoryApplications) ListActive(ctx context.Context) ([]*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Application, 0)
	for _, app := range r.data.applications {
		if !app.Status.IsTerminal() {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// tasks

type memoryTasks MemoryStore

func cloneTask(t domain.WorkflowTask) *domain.WorkflowTask {
	t.AssigneeID = copyString(t.AssigneeID)
	t.CompletedAt = copyTime(t.CompletedAt)
	return &t
}

func (r *memoryTasks) Create(ctx context.Context, task *domain.WorkflowTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data.tasks[task.ID]; exists {
		return ErrConflict
	}
	r.data.tasks[task.ID] = *cloneTask(*task)
	return nil
}

func (r *memoryTasks) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (r *memoryTasks) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.WorkflowTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.WorkflowTask, 0)
	for _, t := range r.data.tasks {
		if t.ApplicationID == applicationID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryTasks) FindUnfinished(ctx context.Context, applicationID uuid.UUID, queue string) (*domain.WorkflowTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.data.tasks {
		if t.ApplicationID == applicationID && t.Queue == queue && t.Status != domain.TaskStatusDone {
			return cloneTask(t), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryTasks) Claim(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != domain.TaskStatusOpen {
		return false, nil
	}
	t.Status = domain.TaskStatusInProgress
	t.AssigneeID = &actorID
	t.UpdatedAt = at
	r.data.tasks[id] = t
	return true, nil
}

func (r *memoryTasks) Release(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != domain.TaskStatusInProgress || !t.IsAssignee(actorID) {
		return false, nil
	}
	t.Status = domain.TaskStatusOpen
	t.AssigneeID = nil
	t.UpdatedAt = at
	r.data.tasks[id] = t
	return true, nil
}

func (r *memoryTasks) Complete(ctx context.Context, id uuid.UUID, actorID string, decision domain.TaskDecision, notes string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != domain.TaskStatusInProgress || !t.IsAssignee(actorID) {
		return false, nil
	}
	t.Status = domain.TaskStatusDone
	t.Decision = decision
	t.Notes = notes
	t.UpdatedAt = at
	t.CompletedAt = &at
	r.data.tasks[id] = t
	return true, nil
}

func (r *memoryTasks) Close(ctx context.Context, id uuid.UUID, notes string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status == domain.TaskStatusDone {
		return false, nil
	}
	t.Status = domain.TaskStatusDone
	t.Decision = domain.TaskDecisionNone
	t.Notes = notes
	t.UpdatedAt = at
	t.CompletedAt = &at
	r.data.tasks[id] = t
	return true, nil
}

// approvals

type memoryApprovals MemoryStore

func cloneApproval(a domain.Approval) *domain.Approval {
	a.DecidedByID = copyString(a.DecidedByID)
	a.DecidedAt = copyTime(a.DecidedAt)
	return &a
}

func (r *memoryApprovals) Create(ctx context.Context, approval *domain.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data.approvals[approval.ID]; exists {
		return ErrConflict
	}
	r.data.approvals[approval.ID] = *cloneApproval(*approval)
	return nil
}

func (r *memoryApprovals) GetByID(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApproval(a), nil
}

func (r *memoryApprovals) FindPending(ctx context.Context, applicationID uuid.UUID) (*domain.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.data.approvals {
		if a.ApplicationID == applicationID && a.Decision == domain.ApprovalPending {
			return cloneApproval(a), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryApprovals) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Approval, 0)
	for _, a := range r.data.approvals {
		if a.ApplicationID == applicationID {
			out = append(out, cloneApproval(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryApprovals) Decide(ctx context.Context, approval *domain.Approval) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data.approvals[approval.ID]
	if !ok {
		return false, ErrNotFound
	}
	if stored.Decision != domain.ApprovalPending {
		return false, nil
	}
	r.data.approvals[approval.ID] = *cloneApproval(*approval)
	return true, nil
}

// offers

type memoryOffers MemoryStore

func cloneOffer(o domain.Offer) *domain.Offer {
	o.AcceptedAt = copyTime(o.AcceptedAt)
	o.AcceptedByID = copyString(o.AcceptedByID)
	return &o
}

func cloneCondition(c domain.OfferCondition) *domain.OfferCondition {
	c.ResolvedByID = copyString(c.ResolvedByID)
	c.ResolvedAt = copyTime(c.ResolvedAt)
	return &c
}

func (r *memoryOffers) Create(ctx context.Context, offer *domain.Offer, conditions []*domain.OfferCondition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data.offers[offer.ID]; exists {
		return ErrConflict
	}
	r.data.offers[offer.ID] = *cloneOffer(*offer)
	for _, c := range conditions {
		r.data.conditions[c.ID] = *cloneCondition(*c)
	}
	return nil
}

func (r *memoryOffers) GetByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.data.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOffer(o), nil
}

func (r *memoryOffers) GetLatest(ctx context.Context, applicationID uuid.UUID) (*domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Offer
	for _, o := range r.data.offers {
		if o.ApplicationID == applicationID && (latest == nil || o.Version > latest.Version) {
			latest = cloneOffer(o)
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (r *memoryOffers) Update(ctx context.Context, offer *domain.Offer, expected domain.OfferStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data.offers[offer.ID]
	if !ok {
		return false, ErrNotFound
	}
	if stored.Status != expected {
		return false, nil
	}
	r.data.offers[offer.ID] = *cloneOffer(*offer)
	return true, nil
}

func (r *memoryOffers) ListExpirable(ctx context.Context, now time.Time) ([]*domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Offer, 0)
	for _, o := range r.data.offers {
		if o.Status == domain.OfferStatusActive && o.ExpiryAt.Before(now) {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryAt.Before(out[j].ExpiryAt) })
	return out, nil
}

func (r *memoryOffers) ListConditions(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferCondition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.OfferCondition, 0)
	for _, c := range r.data.conditions {
		if c.OfferID == offerID {
			out = append(out, cloneCondition(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConditionType < out[j].ConditionType })
	return out, nil
}

func (r *memoryOffers) GetCondition(ctx context.Context, id uuid.UUID) (*domain.OfferCondition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.data.conditions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCondition(c), nil
}

func (r *memoryOffers) ResolveCondition(ctx context.Context, condition *domain.OfferCondition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data.conditions[condition.ID]
	if !ok {
		return false, ErrNotFound
	}
	if stored.Status != domain.ConditionPending {
		return false, nil
	}
	r.data.conditions[condition.ID] = *cloneCondition(*condition)
	return true, nil
}

// audit

type memoryAudit MemoryStore

func cloneEvent(e domain.AuditEvent) *domain.AuditEvent {
	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	e.Details = details
	return &e
}

func (r *memoryAudit) Append(ctx context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.events = append(r.data.events, *cloneEvent(*event))
	return nil
}

func (r *memoryAudit) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.AuditEvent, 0)
	for _, e := range r.data.events {
		if e.ApplicationID == applicationID {
			out = append(out, cloneEvent(e))
		}
	}
	return out, nil
}

// MemoryAllocationStore keeps disbursement working sets in process memory
type MemoryAllocationStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]domain.DisbursementAllocation
}

func NewMemoryAllocationStore() *MemoryAllocationStore {
	return &MemoryAllocationStore{items: make(map[uuid.UUID]domain.DisbursementAllocation)}
}

func cloneAllocation(a domain.DisbursementAllocation) *domain.DisbursementAllocation {
	lines := make([]*domain.DisbursementLine, len(a.Lines))
	for i, l := range a.Lines {
		line := *l
		lines[i] = &line
	}
	a.Lines = lines
	return &a
}

func (s *MemoryAllocationStore) Get(ctx context.Context, applicationID uuid.UUID) (*domain.DisbursementAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[applicationID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAllocation(a), nil
}

func (s *MemoryAllocationStore) Save(ctx context.Context, alloc *domain.DisbursementAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[alloc.ApplicationID] = *cloneAllocation(*alloc)
	return nil
}

func (s *MemoryAllocationStore) Delete(ctx context.Context, applicationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, applicationID)
	return nil
}
