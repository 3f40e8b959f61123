package coupons

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
)

func intPtr(v int) *int { return &v }

func TestComputeDiscountClampsPercentageToMax(t *testing.T) {
	coupon := &models.Coupon{
		DiscountType:     enums.DiscountTypePercentage,
		DiscountValue:    decimal.NewFromInt(20),
		MaxDiscountCents: intPtr(2500),
	}
	assert.Equal(t, 2500, ComputeDiscount(coupon, 20000))

	coupon.MaxDiscountCents = nil
	assert.Equal(t, 4000, ComputeDiscount(coupon, 20000))
}

func TestComputeDiscountFixedNeverExceedsSubtotal(t *testing.T) {
	coupon := &models.Coupon{
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: decimal.RequireFromString("15.00"),
	}
	assert.Equal(t, 1500, ComputeDiscount(coupon, 20000))
	assert.Equal(t, 999, ComputeDiscount(coupon, 999))
}

func TestComputeDiscountRoundsHalfToEven(t *testing.T) {
	coupon := &models.Coupon{
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
	}
	// 10% of 1.25 is 12.5 cents
	assert.Equal(t, 12, ComputeDiscount(coupon, 125))
	// 10% of 1.35 is 13.5 cents
	assert.Equal(t, 14, ComputeDiscount(coupon, 135))
}

func TestComputeDiscountFreeShippingDiscountsNothing(t *testing.T) {
	coupon := &models.Coupon{DiscountType: enums.DiscountTypeFreeShipping}
	assert.Zero(t, ComputeDiscount(coupon, 20000))
	assert.True(t, WaivesShipping(coupon))
	assert.False(t, WaivesShipping(nil))
}

func TestComputeDiscountBounds(t *testing.T) {
	subtotals := []int{0, 1, 99, 4999, 20000, 123457}
	coupons := []*models.Coupon{
		{DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(150)},
		{DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.RequireFromString("33.33"), MaxDiscountCents: intPtr(1000)},
		{DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.RequireFromString("50.00")},
		{DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.RequireFromString("50.00"), MaxDiscountCents: intPtr(700)},
	}
	for _, coupon := range coupons {
		for _, subtotal := range subtotals {
			got := ComputeDiscount(coupon, subtotal)
			limit := subtotal
			if coupon.MaxDiscountCents != nil && *coupon.MaxDiscountCents < limit {
				limit = *coupon.MaxDiscountCents
			}
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, limit, "type=%s subtotal=%d", coupon.DiscountType, subtotal)
		}
	}
}
