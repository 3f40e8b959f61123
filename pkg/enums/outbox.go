package enums

import "fmt"

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregateStockItem OutboxAggregateType = "stock_item"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateStockItem
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderConfirmed     OutboxEventType = "order_confirmed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderShipped       OutboxEventType = "order_shipped"
	EventLowStockAlert      OutboxEventType = "low_stock_alert"
)

// eventAggregates fixes which aggregate owns each event type.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderConfirmed:     AggregateOrder,
	EventOrderCancelled:     AggregateOrder,
	EventOrderStatusChanged: AggregateOrder,
	EventOrderShipped:       AggregateOrder,
	EventLowStockAlert:      AggregateStockItem,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type the event belongs to, or "" for an
// unknown event type.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
