package redis

import "strings"

const keyNamespace = "sl"

// Keys builds the namespaced key layout. Blank segments are dropped.
type Keys struct{}

func (Keys) IdempotencyKey(scope, id string) string {
	return join("idempotency", scope, id)
}

// CheckoutSessionKey holds one owner's pending checkout session.
func (Keys) CheckoutSessionKey(ownerID string) string {
	return join("checkout_session", ownerID)
}

// CheckoutSessionIndexKey is the sorted set of session owners scored by
// expiry time.
func (Keys) CheckoutSessionIndexKey() string {
	return join("checkout_session_index")
}

func (Keys) CronLockKey(name string) string {
	return join("cron_lock", name)
}

func join(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(keyNamespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
