package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/pkg/enums"
)

// OrderLine is the per-item summary carried by order events.
type OrderLine struct {
	ProductID      *uuid.UUID `json:"product_id,omitempty"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	ProductName    string     `json:"product_name"`
	ProductSKU     string     `json:"product_sku"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int        `json:"unit_price_cents"`
}

// OrderConfirmedEvent is emitted once checkout commits an order.
type OrderConfirmedEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	UserID          *uuid.UUID          `json:"user_id,omitempty"`
	Email           string              `json:"email"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	SubtotalCents   int                 `json:"subtotal_cents"`
	TaxCents        int                 `json:"tax_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	DiscountCents   int                 `json:"discount_cents"`
	TotalCents      int                 `json:"total_cents"`
	Currency        enums.Currency      `json:"currency"`
	CouponCode      *string             `json:"coupon_code,omitempty"`
	PaymentIntentID *string             `json:"payment_intent_id,omitempty"`
	Lines           []OrderLine         `json:"lines"`
}

// OrderCancelledEvent is emitted when an order is cancelled by a user,
// an admin or the compensation worker.
type OrderCancelledEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	PreviousState   enums.OrderStatus   `json:"previous_status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentIntentID *string             `json:"payment_intent_id,omitempty"`
	Reason          string              `json:"reason,omitempty"`
	CancelledAt     time.Time           `json:"cancelled_at"`
}

// OrderStatusChangedEvent reports an administrative status transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	FromStatus  enums.OrderStatus `json:"from_status"`
	ToStatus    enums.OrderStatus `json:"to_status"`
	Notes       string            `json:"notes,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// OrderShippedEvent carries tracking details for the shipping notification.
type OrderShippedEvent struct {
	OrderID        uuid.UUID  `json:"order_id"`
	OrderNumber    string     `json:"order_number"`
	Email          string     `json:"email"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	TrackingNumber *string    `json:"tracking_number,omitempty"`
	Carrier        *string    `json:"carrier,omitempty"`
	ShippedAt      time.Time  `json:"shipped_at"`
}

// LowStockAlertEvent is emitted when a stock item drops to or below its
// reorder threshold.
type LowStockAlertEvent struct {
	AlertID          uuid.UUID            `json:"alert_id"`
	StockItemID      uuid.UUID            `json:"stock_item_id"`
	ProductID        uuid.UUID            `json:"product_id"`
	VariantID        *uuid.UUID           `json:"variant_id,omitempty"`
	AlertType        enums.StockAlertType `json:"alert_type"`
	Available        int                  `json:"available"`
	ReorderThreshold int                  `json:"reorder_threshold"`
}
