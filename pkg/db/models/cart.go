package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart belongs to either a signed-in user or a guest session, never both.
type Cart struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex" json:"user_id,omitempty"`
	SessionKey *string    `gorm:"column:session_key;uniqueIndex" json:"session_key,omitempty"`
	Lines      []CartLine `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartLine keeps the unit price captured when the line was first added.
type CartLine struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CartID         uuid.UUID  `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:uq_cart_lines_item" json:"cart_id"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:uq_cart_lines_item" json:"product_id"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid;uniqueIndex:uq_cart_lines_item" json:"variant_id,omitempty"`
	Quantity       int        `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null" json:"unit_price_cents"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (l *CartLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// LineTotalCents is unit price times quantity.
func (l CartLine) LineTotalCents() int {
	return l.UnitPriceCents * l.Quantity
}
