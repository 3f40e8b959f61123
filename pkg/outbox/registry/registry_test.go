package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopledger-backend/pkg/config"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	orderID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.OrderConfirmedEvent{
		OrderID:     orderID,
		OrderNumber: "ORD-20260101-ABC123",
		TotalCents:  21600,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	assert.Equal(t, enums.EventOrderConfirmed, resolved.Descriptor.EventType)

	payload, ok := resolved.Payload.(*payloads.OrderConfirmedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, 21600, payload.TotalCents)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestEventRegistryRoutesLowStockToInventoryTopic(t *testing.T) {
	reg := newTestEventRegistry(t)

	stockItemID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventLowStockAlert,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   stockItemID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.LowStockAlertEvent{
			StockItemID: stockItemID,
			AlertType:   enums.StockAlertLowStock,
			Available:   3,
		})),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "inventory-topic", resolved.Descriptor.Topic)
	assert.Equal(t, []string{"inventory-topic", "orders-topic"}, reg.Topics())
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("order_teleported"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry), "expected non-retryable error, got %T", err)
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"order_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderShipped,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	require.Error(t, err)
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryRejectsNewerEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version: outbox.EnvelopeVersion + 1,
		EventID: uuid.NewString(),
		Data:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderShipped,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       raw,
	})
	var nonRetry NonRetryableError
	require.ErrorAs(t, err, &nonRetry)
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderConfirmed,
		enums.EventOrderCancelled,
		enums.EventOrderStatusChanged,
		enums.EventOrderShipped,
		enums.EventLowStockAlert,
	} {
		desc, ok := reg.entries[eventType]
		require.True(t, ok, "missing route for %s", eventType)
		assert.Equal(t, eventType.Aggregate(), desc.AggregateType)
		assert.NotNil(t, desc.PayloadFactory())
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	assert.Error(t, err)
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		OrdersTopic:    "orders-topic",
		InventoryTopic: "inventory-topic",
	}
	reg, err := NewEventRegistry(cfg)
	require.NoError(t, err)
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return data
}
