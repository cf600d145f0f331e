package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/duka-backend/pkg/redis"
)

// State is the outcome of a claim attempt.
type State int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed State = iota
	// InFlight means another delivery holds the lease.
	InFlight
	// Done means the event was already handled.
	Done
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	markerProcessing = "processing"
	markerDone       = "done"

	DefaultLease = 5 * time.Minute
)

// Store is the subset of the Redis client the manager needs.
type Store interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Manager guards consumers against duplicate deliveries. A claim writes a
// short-lived processing marker; Complete swaps it for a done marker kept for
// the retention TTL. Keys follow `duka:idempotency:evt:processed:<consumer>:<event_id>`.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

// Option tunes a Manager.
type Option func(*Manager)

// WithLease sets how long a claim blocks redeliveries before it expires.
func WithLease(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lease = d
		}
	}
}

// NewManager builds a guard that remembers completed events for ttl.
func NewManager(store Store, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	m := &Manager{store: store, ttl: ttl, lease: DefaultLease}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl > 0 && m.lease > m.ttl {
		m.lease = m.ttl
	}
	return m, nil
}

// Claim tries to take ownership of eventID for consumer.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (State, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil {
		return InFlight, err
	}
	if ok {
		return Claimed, nil
	}
	current, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// lease expired between SETNX and GET; let the next delivery retry
		return InFlight, nil
	case err != nil:
		return InFlight, err
	case current == markerDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete marks a claimed event as handled.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release drops a claim so a redelivery can retry the event.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, eventID.String()), nil
}
