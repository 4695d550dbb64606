package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-origination/internal/domain"
)

func seedApplication(t *testing.T, repos Repositories, status domain.Status) *domain.Application {
	t.Helper()
	now := time.Now()
	app := &domain.Application{
		ID:              uuid.New(),
		ApplicantID:     "party-1",
		Status:          status,
		ApprovedAmount:  decimal.NewFromInt(5000),
		Currency:        "USD",
		CreatedByID:     "officer-1",
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
	require.NoError(t, repos.Applications.Create(context.Background(), app))
	return app
}

func TestMemoryApplications_UpdateChecksExpectedStatus(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	app := seedApplication(t, repos, domain.StatusDraft)

	next := app.Clone()
	next.Status = domain.StatusSubmitted
	require.NoError(t, repos.Applications.Update(ctx, next, domain.StatusDraft))

	stale := app.Clone()
	stale.Status = domain.StatusCancelled
	assert.ErrorIs(t, repos.Applications.Update(ctx, stale, domain.StatusDraft), ErrConflict)

	got, err := repos.Applications.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, got.Status)
}

func TestMemoryApplications_ReturnsCopies(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	app := seedApplication(t, repos, domain.StatusDraft)

	got, err := repos.Applications.GetByID(ctx, app.ID)
	require.NoError(t, err)
	reviewer := "someone"
	got.AssignedReviewerID = &reviewer
	got.Status = domain.StatusBooked

	again, err := repos.Applications.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, again.Status)
	assert.Nil(t, again.AssignedReviewerID)
}

func TestMemoryApplications_ListActiveSkipsTerminal(t *testing.T) {
	repos := NewMemoryRepositories()
	seedApplication(t, repos, domain.StatusPendingKYC)
	seedApplication(t, repos, domain.StatusBooked)
	seedApplication(t, repos, domain.StatusDeclined)

	active, err := repos.Applications.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.StatusPendingKYC, active[0].Status)
}

func TestMemoryStore_WithTransactionRollsBack(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	app := seedApplication(t, repos, domain.StatusSubmitted)

	boom := errors.New("boom")
	err := repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		next := app.Clone()
		next.Status = domain.StatusPendingKYC
		if err := repos.Applications.Update(ctx, next, domain.StatusSubmitted); err != nil {
			return err
		}
		event := domain.NewAuditEvent(app.ID, domain.EventStatusChanged, domain.StatusSubmitted, domain.StatusPendingKYC, "a", time.Now(), nil)
		if err := repos.Audit.Append(ctx, event); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repos.Applications.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, got.Status)

	events, err := repos.Audit.ListByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStore_WithTransactionLeavesAllocationsAlone(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	appID := uuid.New()

	_ = repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repos.Allocations.Save(ctx, &domain.DisbursementAllocation{ApplicationID: appID}))
		return errors.New("fail")
	})

	_, err := repos.Allocations.Get(ctx, appID)
	assert.NoError(t, err)
}

func TestMemoryTasks_ClaimIsCompareAndSet(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()

	task := &domain.WorkflowTask{
		ID:            uuid.New(),
		ApplicationID: uuid.New(),
		Queue:         domain.QueueUnderwriting,
		Status:        domain.TaskStatusOpen,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repos.Tasks.Claim(ctx, task.ID, uuid.NewString(), time.Now())
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	got, err := repos.Tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	assert.NotNil(t, got.AssigneeID)
}

func TestMemoryTasks_ReleaseAndCompleteRequireAssignee(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()

	task := &domain.WorkflowTask{ID: uuid.New(), ApplicationID: uuid.New(), Queue: domain.QueueSeniorReview, Status: domain.TaskStatusOpen}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	ok, err := repos.Tasks.Claim(ctx, task.ID, "alice", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repos.Tasks.Release(ctx, task.ID, "bob", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repos.Tasks.Complete(ctx, task.ID, "bob", domain.TaskDecisionApprove, "", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repos.Tasks.Complete(ctx, task.ID, "alice", domain.TaskDecisionApprove, "fine", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repos.Tasks.FindUnfinished(ctx, task.ApplicationID, domain.QueueSeniorReview)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTasks_CloseIgnoresAssignee(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()

	task := &domain.WorkflowTask{ID: uuid.New(), ApplicationID: uuid.New(), Queue: domain.QueueUnderwriting, Status: domain.TaskStatusOpen}
	require.NoError(t, repos.Tasks.Create(ctx, task))
	ok, err := repos.Tasks.Claim(ctx, task.ID, "alice", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repos.Tasks.Close(ctx, task.ID, "stage left", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repos.Tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, got.Status)
	assert.Equal(t, domain.TaskDecisionNone, got.Decision)
	assert.NotNil(t, got.CompletedAt)

	ok, err = repos.Tasks.Close(ctx, task.ID, "again", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repos.Tasks.Close(ctx, uuid.New(), "", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOffers_LatestAndExpirable(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	appID := uuid.New()
	now := time.Now()

	v1 := &domain.Offer{ID: uuid.New(), ApplicationID: appID, Version: 1, Status: domain.OfferStatusVoided, ExpiryAt: now.Add(-time.Hour)}
	v2 := &domain.Offer{ID: uuid.New(), ApplicationID: appID, Version: 2, Status: domain.OfferStatusActive, ExpiryAt: now.Add(-time.Minute)}
	require.NoError(t, repos.Offers.Create(ctx, v1, nil))
	cond := &domain.OfferCondition{ID: uuid.New(), OfferID: v2.ID, ConditionType: "PROOF_OF_INCOME", Status: domain.ConditionPending}
	require.NoError(t, repos.Offers.Create(ctx, v2, []*domain.OfferCondition{cond}))

	latest, err := repos.Offers.GetLatest(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	expirable, err := repos.Offers.ListExpirable(ctx, now)
	require.NoError(t, err)
	require.Len(t, expirable, 1)
	assert.Equal(t, v2.ID, expirable[0].ID)

	expired := *latest
	expired.Status = domain.OfferStatusExpired
	ok, err := repos.Offers.Update(ctx, &expired, domain.OfferStatusActive)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Offers.Update(ctx, &expired, domain.OfferStatusActive)
	require.NoError(t, err)
	assert.False(t, ok)

	resolver := "officer-1"
	at := time.Now()
	satisfied := *cond
	satisfied.Status = domain.ConditionSatisfied
	satisfied.ResolvedByID = &resolver
	satisfied.ResolvedAt = &at
	ok, err = repos.Offers.ResolveCondition(ctx, &satisfied)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Offers.ResolveCondition(ctx, &satisfied)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryApprovals_DecideOnlyOnce(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	appID := uuid.New()

	approval := &domain.Approval{ID: uuid.New(), ApplicationID: appID, RequestedByID: "maker", Decision: domain.ApprovalPending, CreatedAt: time.Now()}
	require.NoError(t, repos.Approvals.Create(ctx, approval))

	pending, err := repos.Approvals.FindPending(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, approval.ID, pending.ID)

	checker := "checker"
	decided := *pending
	decided.Decision = domain.ApprovalApproved
	decided.DecidedByID = &checker

	ok, err := repos.Approvals.Decide(ctx, &decided)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Approvals.Decide(ctx, &decided)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repos.Approvals.FindPending(ctx, appID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAudit_PreservesOrder(t *testing.T) {
	repos := NewMemoryRepositories()
	ctx := context.Background()
	appID := uuid.New()

	types := []string{domain.EventApplicationCreated, domain.EventStatusChanged, domain.EventKYCRecorded}
	for _, et := range types {
		require.NoError(t, repos.Audit.Append(ctx, domain.NewAuditEvent(appID, et, "", "", "a", time.Now(), nil)))
	}
	require.NoError(t, repos.Audit.Append(ctx, domain.NewAuditEvent(uuid.New(), domain.EventStatusChanged, "", "", "a", time.Now(), nil)))

	events, err := repos.Audit.ListByApplication(ctx, appID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, et := range types {
		assert.Equal(t, et, events[i].EventType)
	}
}
