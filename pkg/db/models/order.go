package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

// Order is the immutable record of a completed checkout plus its fulfillment state.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	UserID          *uuid.UUID          `gorm:"column:user_id;type:uuid;index" json:"user_id,omitempty"`
	Email           string              `gorm:"column:email;not null" json:"email"`
	Status          enums.OrderStatus   `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:varchar(16);not null" json:"payment_status"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	TaxCents        int                 `gorm:"column:tax_cents;not null" json:"tax_cents"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null" json:"shipping_cents"`
	DiscountCents   int                 `gorm:"column:discount_cents;not null" json:"discount_cents"`
	TotalCents      int                 `gorm:"column:total_cents;not null" json:"total_cents"`
	Currency        enums.Currency      `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	CouponCode      *string             `gorm:"column:coupon_code" json:"coupon_code,omitempty"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;not null" json:"shipping_address"`
	BillingAddress  types.Address       `gorm:"column:billing_address;type:jsonb;not null" json:"billing_address"`
	PaymentIntentID *string             `gorm:"column:payment_intent_id;index" json:"payment_intent_id,omitempty"`
	TrackingNumber  *string             `gorm:"column:tracking_number" json:"tracking_number,omitempty"`
	Carrier         *string             `gorm:"column:carrier" json:"carrier,omitempty"`
	CustomerNotes   *string             `gorm:"column:customer_notes" json:"customer_notes,omitempty"`
	CancelReason    *string             `gorm:"column:cancel_reason" json:"cancel_reason,omitempty"`
	PaidAt          *time.Time          `gorm:"column:paid_at" json:"paid_at,omitempty"`
	ShippedAt       *time.Time          `gorm:"column:shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time          `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots the catalog entry at purchase time.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID      *uuid.UUID `gorm:"column:product_id;type:uuid" json:"product_id,omitempty"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid" json:"variant_id,omitempty"`
	ProductName    string     `gorm:"column:product_name;not null" json:"product_name"`
	ProductSKU     string     `gorm:"column:product_sku;not null" json:"product_sku"`
	VariantName    *string    `gorm:"column:variant_name" json:"variant_name,omitempty"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null" json:"unit_price_cents"`
	Quantity       int        `gorm:"column:quantity;not null" json:"quantity"`
	LineTotalCents int        `gorm:"column:line_total_cents;not null" json:"line_total_cents"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// OrderStatusHistory is written once per status transition.
type OrderStatusHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:varchar(16)" json:"from_status,omitempty"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:varchar(16);not null" json:"to_status"`
	Actor      string             `gorm:"column:actor;not null" json:"actor"`
	Notes      *string            `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
