package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/shopledger-backend/internal/cart"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

// ErrSessionNotFound is returned when no live session exists for an owner.
var ErrSessionNotFound = errors.New("checkout session not found")

// Session is the pending checkout persisted between initiate and confirm.
type Session struct {
	OwnerID         string        `json:"owner_id"`
	CartID          uuid.UUID     `json:"cart_id"`
	Email           string        `json:"email"`
	ShippingAddress types.Address `json:"shipping_address"`
	BillingAddress  types.Address `json:"billing_address"`
	CouponCode      *string       `json:"coupon_code,omitempty"`
	cart.Totals
	Currency        enums.Currency `json:"currency"`
	PaymentIntentID string         `json:"payment_intent_id"`
	ClientSecret    string         `json:"client_secret"`
	CustomerNotes   *string        `json:"customer_notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// IndexEntry identifies one session in the expiry index. The payment intent
// is kept in the entry so the sweep can cancel it after the session key has
// expired.
type IndexEntry struct {
	OwnerID         string
	PaymentIntentID string
}

func (e IndexEntry) member() string {
	return e.OwnerID + "|" + e.PaymentIntentID
}

func parseIndexMember(member string) (IndexEntry, bool) {
	idx := strings.LastIndex(member, "|")
	if idx <= 0 || idx == len(member)-1 {
		return IndexEntry{}, false
	}
	return IndexEntry{OwnerID: member[:idx], PaymentIntentID: member[idx+1:]}, true
}

// SessionStore persists checkout sessions with a TTL.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, ownerID string) (*Session, error)
	Delete(ctx context.Context, ownerID string) error
	Expired(ctx context.Context, before time.Time, limit int) ([]IndexEntry, error)
	Unindex(ctx context.Context, entries ...IndexEntry) error
	// Discard drops the entry and, if the owner's key still holds the same
	// intent, the session itself.
	Discard(ctx context.Context, entry IndexEntry) error
}

// redisBackend is the slice of *redis.Client the session store uses.
type redisBackend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
	CheckoutSessionKey(ownerID string) string
	CheckoutSessionIndexKey() string
}

// RedisSessionStore keeps sessions as JSON strings plus a sorted set of
// owners scored by expiry.
type RedisSessionStore struct {
	redis redisBackend
	now   func() time.Time
}

// NewRedisSessionStore wraps the shared redis client.
func NewRedisSessionStore(client redisBackend) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisSessionStore{redis: client, now: time.Now}, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.OwnerID == "" {
		return fmt.Errorf("session owner required")
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal checkout session: %w", err)
	}
	if err := s.redis.Set(ctx, s.redis.CheckoutSessionKey(session.OwnerID), string(raw), ttl); err != nil {
		return fmt.Errorf("store checkout session: %w", err)
	}
	entry := IndexEntry{OwnerID: session.OwnerID, PaymentIntentID: session.PaymentIntentID}
	score := float64(session.ExpiresAt.Unix())
	if err := s.redis.ZAdd(ctx, s.redis.CheckoutSessionIndexKey(), score, entry.member()); err != nil {
		return fmt.Errorf("index checkout session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) load(ctx context.Context, ownerID string) (*Session, error) {
	raw, err := s.redis.Get(ctx, s.redis.CheckoutSessionKey(ownerID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, ownerID string) (*Session, error) {
	session, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !session.ExpiresAt.After(s.now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the owner's session and its index entry.
func (s *RedisSessionStore) Delete(ctx context.Context, ownerID string) error {
	session, err := s.load(ctx, ownerID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if err := s.redis.Del(ctx, s.redis.CheckoutSessionKey(ownerID)); err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}
	if session != nil {
		return s.Unindex(ctx, IndexEntry{OwnerID: ownerID, PaymentIntentID: session.PaymentIntentID})
	}
	return nil
}

// Expired lists index entries whose expiry is at or before the cutoff.
func (s *RedisSessionStore) Expired(ctx context.Context, before time.Time, limit int) ([]IndexEntry, error) {
	members, err := s.redis.ZRangeByScore(ctx, s.redis.CheckoutSessionIndexKey(), 0, float64(before.Unix()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("scan checkout session index: %w", err)
	}
	entries := make([]IndexEntry, 0, len(members))
	for _, member := range members {
		entry, ok := parseIndexMember(member)
		if !ok {
			// drop garbage so the sweep does not see it forever
			_ = s.redis.ZRem(ctx, s.redis.CheckoutSessionIndexKey(), member)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisSessionStore) Unindex(ctx context.Context, entries ...IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	members := make([]string, 0, len(entries))
	for _, entry := range entries {
		members = append(members, entry.member())
	}
	if err := s.redis.ZRem(ctx, s.redis.CheckoutSessionIndexKey(), members...); err != nil {
		return fmt.Errorf("unindex checkout session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Discard(ctx context.Context, entry IndexEntry) error {
	session, err := s.load(ctx, entry.OwnerID)
	switch {
	case err == nil && session.PaymentIntentID == entry.PaymentIntentID:
		if err := s.redis.Del(ctx, s.redis.CheckoutSessionKey(entry.OwnerID)); err != nil {
			return fmt.Errorf("delete checkout session: %w", err)
		}
	case err != nil && !errors.Is(err, ErrSessionNotFound):
		return err
	}
	return s.Unindex(ctx, entry)
}
