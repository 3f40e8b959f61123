package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryClaims mimics SETNX and compare-and-delete over a map.
type memoryClaims struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryClaims() *memoryClaims {
	return &memoryClaims{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryClaims) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryClaims) DelIfEquals(_ context.Context, key, want string) (bool, error) {
	if m.values[key] != want {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryClaims) IdempotencyKey(scope, id string) string {
	return "sl:idempotency:" + scope + ":" + id
}

func TestClaimIsExclusive(t *testing.T) {
	store := newMemoryClaims()
	first, err := NewGuard(store, "relay-a", 24*time.Hour)
	require.NoError(t, err)
	second, err := NewGuard(store, "relay-b", 24*time.Hour)
	require.NoError(t, err)

	eventID := uuid.New()
	key := "sl:idempotency:evt:published:orders-topic:" + eventID.String()

	claimed, err := first.Claim(context.Background(), "orders-topic", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "relay-a", store.values[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	claimed, err = second.Claim(context.Background(), "orders-topic", eventID)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = second.Claim(context.Background(), "inventory-topic", eventID)
	require.NoError(t, err)
	assert.True(t, claimed, "claims are per topic")
}

func TestReleaseOnlyDropsOwnClaim(t *testing.T) {
	store := newMemoryClaims()
	owner, _ := NewGuard(store, "relay-a", time.Hour)
	other, _ := NewGuard(store, "relay-b", time.Hour)
	eventID := uuid.New()

	_, err := owner.Claim(context.Background(), "orders-topic", eventID)
	require.NoError(t, err)

	require.NoError(t, other.Release(context.Background(), "orders-topic", eventID))
	claimed, _ := other.Claim(context.Background(), "orders-topic", eventID)
	assert.False(t, claimed, "foreign release must not free the claim")

	require.NoError(t, owner.Release(context.Background(), "orders-topic", eventID))
	claimed, _ = other.Claim(context.Background(), "orders-topic", eventID)
	assert.True(t, claimed)
}

func TestClaimPropagatesStoreError(t *testing.T) {
	store := newMemoryClaims()
	store.err = errors.New("boom")
	guard, err := NewGuard(store, "relay-a", time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "orders-topic", uuid.New())
	assert.EqualError(t, err, "boom")
}

func TestKeyInputsAreRequired(t *testing.T) {
	guard, err := NewGuard(newMemoryClaims(), "relay-a", time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "", uuid.New())
	assert.Error(t, err)
	assert.Error(t, guard.Release(context.Background(), "orders-topic", uuid.Nil))
}

func TestNewGuardValidates(t *testing.T) {
	_, err := NewGuard(nil, "relay-a", time.Hour)
	assert.Error(t, err)
	_, err = NewGuard(newMemoryClaims(), "", time.Hour)
	assert.Error(t, err)
	_, err = NewGuard(newMemoryClaims(), "relay-a", -time.Second)
	assert.Error(t, err)
}
