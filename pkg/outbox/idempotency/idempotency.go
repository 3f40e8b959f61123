// Package idempotency keeps the relay from handing the same outbox event to
// the broker twice when a crash lands between publish and commit.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const claimScopePrefix = "evt:published:"

// claimStore is the slice of the redis client the guard needs.
type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, want string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Guard claims event ids under sl:idempotency:evt:published:<topic>:<id>.
// The claim value is the holder so a relay only ever releases its own claim.
type Guard struct {
	store  claimStore
	holder string
	ttl    time.Duration
}

// NewGuard builds a guard for holder whose claims expire after ttl. A zero
// ttl keeps claims until they are released.
func NewGuard(store claimStore, holder string, ttl time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case holder == "":
		return nil, errors.New("holder is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, holder: holder, ttl: ttl}, nil
}

// Claim reports true when the caller now owns delivery of eventID on topic,
// false when an earlier attempt already holds or completed it.
func (g *Guard) Claim(ctx context.Context, topic string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(topic, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, g.holder, g.ttl)
}

// Release gives up a claim after a failed delivery so a later attempt can
// retry. Claims held by another relay are left in place.
func (g *Guard) Release(ctx context.Context, topic string, eventID uuid.UUID) error {
	key, err := g.key(topic, eventID)
	if err != nil {
		return err
	}
	_, err = g.store.DelIfEquals(ctx, key, g.holder)
	return err
}

func (g *Guard) key(topic string, eventID uuid.UUID) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(claimScopePrefix+topic, eventID.String()), nil
}
