package coupons

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	"github.com/angelmondragon/shopledger-backend/pkg/money"
)

// ComputeDiscount returns the discount in cents the coupon grants on
// subtotalCents. The result never exceeds the subtotal nor the coupon's
// max discount. Free shipping coupons discount nothing here; the caller
// waives shipping instead.
func ComputeDiscount(coupon *models.Coupon, subtotalCents int) int {
	if coupon == nil || subtotalCents <= 0 {
		return 0
	}

	var discount int
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		pct := coupon.DiscountValue
		if pct.GreaterThan(decimal.NewFromInt(100)) {
			pct = decimal.NewFromInt(100)
		}
		discount = money.Percent(subtotalCents, pct)
	case enums.DiscountTypeFixed:
		discount = money.ToCents(coupon.DiscountValue)
	default:
		return 0
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if coupon.MaxDiscountCents != nil && discount > *coupon.MaxDiscountCents {
		discount = *coupon.MaxDiscountCents
	}
	return discount
}

// WaivesShipping reports whether the coupon removes the shipping charge.
func WaivesShipping(coupon *models.Coupon) bool {
	return coupon != nil && coupon.DiscountType == enums.DiscountTypeFreeShipping
}
