// Package idempotency remembers which ledger events a Pub/Sub consumer has
// already handled, so redelivered messages are skipped.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/redis"
)

// DefaultTTL outlives the subscription's message retention.
const DefaultTTL = 8 * 24 * time.Hour

// Marks stores one key per (consumer, event id) pair:
// loyalty:idempotency:evt:processed:<consumer>:<event_id>.
type Marks struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewMarks builds the marker set. A zero ttl uses DefaultTTL.
func NewMarks(store redis.IdempotencyStore, ttl time.Duration) (*Marks, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultTTL
	}
	return &Marks{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether eventID was already marked for
// consumer, marking it if not. The check and the mark are one SET NX.
func (m *Marks) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Delete clears a mark so a failed event can be handled on redelivery.
func (m *Marks) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Marks) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
