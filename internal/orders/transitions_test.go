package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

var allStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
	enums.OrderStatusCancelled,
	enums.OrderStatusRefunded,
}

func TestTransitionTable(t *testing.T) {
	allowed := map[enums.OrderStatus]map[enums.OrderStatus]bool{
		enums.OrderStatusPending:    {enums.OrderStatusConfirmed: true, enums.OrderStatusCancelled: true},
		enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing: true, enums.OrderStatusCancelled: true},
		enums.OrderStatusProcessing: {enums.OrderStatusShipped: true, enums.OrderStatusCancelled: true},
		enums.OrderStatusShipped:    {enums.OrderStatusDelivered: true},
		enums.OrderStatusDelivered:  {enums.OrderStatusRefunded: true},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[from][to]
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	assert.Empty(t, AllowedTransitions(enums.OrderStatusCancelled))
	assert.Empty(t, AllowedTransitions(enums.OrderStatusRefunded))
}

func TestErrInvalidTransitionCarriesDetails(t *testing.T) {
	err := ErrInvalidTransition(enums.OrderStatusShipped, enums.OrderStatusCancelled)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusShipped, details["from"])
	assert.Equal(t, enums.OrderStatusCancelled, details["to"])
}

func TestActorString(t *testing.T) {
	assert.Equal(t, "system:compensation", SystemCompensation.String())
	assert.True(t, SystemCompensation.IsAdmin())
	assert.False(t, Actor{Kind: ActorUser, ID: "u1"}.IsAdmin())
}

func TestNewOrderNumberFormat(t *testing.T) {
	number := NewOrderNumber(time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC))
	assert.Regexp(t, `^ORD-20260304-[0-9A-F]{6}$`, number)
}
