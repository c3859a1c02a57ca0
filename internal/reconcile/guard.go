package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobbystable/voicepay-backend/pkg/redis"
)

// DedupeGuard drops webhook deliveries that were already processed.
type DedupeGuard struct {
	store    redis.DedupeStore
	ttl      time.Duration
	provider string
}

// NewDedupeGuard builds a redis-backed delivery guard.
func NewDedupeGuard(store redis.DedupeStore, ttl time.Duration, provider string) (*DedupeGuard, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &DedupeGuard{
		store:    store,
		ttl:      ttl,
		provider: provider,
	}, nil
}

// CheckAndMark returns true when the delivery was already seen.
func (g *DedupeGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.WebhookEventKey(g.provider, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set dedupe key: %w", err)
	}
	return !set, nil
}

// Delete unmarks the delivery so a failed handling can be retried.
func (g *DedupeGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.WebhookEventKey(g.provider, eventID)
	return g.store.Del(ctx, key)
}
