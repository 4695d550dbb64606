package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-origination/internal/domain"
)

const allocationKeyPrefix = "allocation:"

// RedisAllocationStore keeps disbursement working sets in redis as JSON.
// Entries expire after ttl so abandoned allocations clean themselves up.
type RedisAllocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAllocationStore(client *redis.Client, ttl time.Duration) *RedisAllocationStore {
	return &RedisAllocationStore{client: client, ttl: ttl}
}

func allocationKey(applicationID uuid.UUID) string {
	return allocationKeyPrefix + applicationID.String()
}

func (s *RedisAllocationStore) Get(ctx context.Context, applicationID uuid.UUID) (*domain.DisbursementAllocation, error) {
	raw, err := s.client.Get(ctx, allocationKey(applicationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var alloc domain.DisbursementAllocation
	if err := json.Unmarshal(raw, &alloc); err != nil {
		return nil, fmt.Errorf("failed to decode allocation %s: %w", applicationID, err)
	}
	return &alloc, nil
}

func (s *RedisAllocationStore) Save(ctx context.Context, alloc *domain.DisbursementAllocation) error {
	raw, err := json.Marshal(alloc)
	if err != nil {
		return fmt.Errorf("failed to encode allocation %s: %w", alloc.ApplicationID, err)
	}
	return s.client.Set(ctx, allocationKey(alloc.ApplicationID), raw, s.ttl).Err()
}

func (s *RedisAllocationStore) Delete(ctx context.Context, applicationID uuid.UUID) error {
	return s.client.Del(ctx, allocationKey(applicationID)).Err()
}
