package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the read-only catalog snapshot checkout prices against.
type Product struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SKU        string           `gorm:"column:sku;not null;uniqueIndex" json:"sku"`
	Name       string           `gorm:"column:name;not null" json:"name"`
	PriceCents int              `gorm:"column:price_cents;not null" json:"price_cents"`
	IsActive   bool             `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Variants   []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"variants"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariant overrides the product price when PriceCents is set.
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index" json:"product_id"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex" json:"sku"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	PriceCents *int      `gorm:"column:price_cents" json:"price_cents,omitempty"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
