package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/billing-backend/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// IdempotencyGuard records Stripe event ids in Redis so redeliveries are
// acknowledged without reprocessing.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim marks eventID as in progress. It reports true when the event was
// already claimed or completed.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(eventID), markerProcessing, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return !set, nil
}

// Complete marks eventID as handled for the remainder of the TTL.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Set(ctx, g.key(eventID), markerDone, g.ttl)
}

// Release drops an in-progress claim so a resend of eventID is processed
// again. Completed events stay recorded.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	_, err := g.store.DelIfValue(ctx, g.key(eventID), markerProcessing)
	return err
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
