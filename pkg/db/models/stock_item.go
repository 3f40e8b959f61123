package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockItem holds on-hand and reserved counts for one product or variant.
type StockItem struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:uq_stock_items_product_variant" json:"product_id"`
	VariantID        *uuid.UUID `gorm:"column:variant_id;type:uuid;uniqueIndex:uq_stock_items_product_variant" json:"variant_id,omitempty"`
	OnHand           int        `gorm:"column:on_hand;not null;default:0" json:"on_hand"`
	Reserved         int        `gorm:"column:reserved;not null;default:0" json:"reserved"`
	ReorderThreshold int        `gorm:"column:reorder_threshold;not null" json:"reorder_threshold"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *StockItem) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Available is the quantity that can still be reserved.
func (s StockItem) Available() int {
	return s.OnHand - s.Reserved
}
