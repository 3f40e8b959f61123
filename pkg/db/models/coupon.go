package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/enums"
)

// Coupon is a discount code. Code is stored upper-case.
type Coupon struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code              string             `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Description       *string            `gorm:"column:description" json:"description,omitempty"`
	DiscountType      enums.DiscountType `gorm:"column:discount_type;type:varchar(16);not null" json:"discount_type"`
	DiscountValue     decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null" json:"discount_value"`
	MinOrderCents     *int               `gorm:"column:min_order_cents" json:"min_order_cents,omitempty"`
	MaxDiscountCents  *int               `gorm:"column:max_discount_cents" json:"max_discount_cents,omitempty"`
	ValidFrom         time.Time          `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidUntil        time.Time          `gorm:"column:valid_until;not null" json:"valid_until"`
	UsageLimit        *int               `gorm:"column:usage_limit" json:"usage_limit,omitempty"`
	UsageLimitPerUser int                `gorm:"column:usage_limit_per_user;not null;default:1" json:"usage_limit_per_user"`
	UsageCount        int                `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	IsActive          bool               `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CouponUsage records one redemption against an order.
type CouponUsage struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CouponID      uuid.UUID `gorm:"column:coupon_id;type:uuid;not null;index" json:"coupon_id"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	DiscountCents int       `gorm:"column:discount_cents;not null" json:"discount_cents"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (u *CouponUsage) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
