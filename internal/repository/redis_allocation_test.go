package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-origination/internal/domain"
)

// Requires a running redis on localhost; skipped otherwise.
func TestRedisAllocationStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping redis integration test: redis not available")
	}
	defer client.Close()

	store := NewRedisAllocationStore(client, time.Minute)
	appID := uuid.New()

	_, err := store.Get(ctx, appID)
	assert.ErrorIs(t, err, ErrNotFound)

	alloc := &domain.DisbursementAllocation{
		ApplicationID:  appID,
		ApprovedAmount: decimal.NewFromInt(4000),
		Currency:       "USD",
		Lines: []*domain.DisbursementLine{
			{ID: uuid.New(), AccountRef: "ACC-1", Amount: decimal.NewFromInt(4000), Percentage: decimal.NewFromInt(100)},
		},
	}
	require.NoError(t, store.Save(ctx, alloc))

	got, err := store.Get(ctx, appID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].Amount.Equal(decimal.NewFromInt(4000)))

	ttl, err := client.TTL(ctx, allocationKey(appID)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0)

	require.NoError(t, store.Delete(ctx, appID))
	_, err = store.Get(ctx, appID)
	assert.ErrorIs(t, err, ErrNotFound)
}
