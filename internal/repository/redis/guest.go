package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
)

// GuestStore implements repository.GuestStore using Redis. Every write
// refreshes the key's TTL so abandoned guest carts expire.
type GuestStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGuestStore creates a new Redis-backed guest cart store.
func NewGuestStore(client *redis.Client, ttl time.Duration) *GuestStore {
	return &GuestStore{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the guest cart stored under key.
func (s *GuestStore) Get(ctx context.Context, key string) (items []domain.LineItem, ok bool, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "GET", "GET "+key)
	defer func() { end(err) }()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get guest cart: %w", err)
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal guest cart: %w", err)
	}
	return domain.CloneItems(items), true, nil
}

// Set persists items under key with the configured TTL.
func (s *GuestStore) Set(ctx context.Context, key string, items []domain.LineItem) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "SET", "SET "+key)
	defer func() { end(err) }()

	data, err := json.Marshal(domain.CloneItems(items))
	if err != nil {
		return fmt.Errorf("marshal guest cart: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set guest cart: %w", err)
	}
	return nil
}

// Remove deletes the guest cart stored under key.
func (s *GuestStore) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "DEL", "DEL "+key)
	defer func() { end(err) }()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del guest cart: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable. Used by the readiness check.
func (s *GuestStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
