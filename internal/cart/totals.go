package cart

import (
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

// Totals is the money breakdown of a cart, all in cents.
type Totals struct {
	ItemCount     int `json:"item_count"`
	SubtotalCents int `json:"subtotal_cents"`
	TaxCents      int `json:"tax_cents"`
	ShippingCents int `json:"shipping_cents"`
	DiscountCents int `json:"discount_cents"`
	TotalCents    int `json:"total_cents"`
}

// WithDiscount applies a coupon discount and optional shipping waiver.
// Tax stays computed on the undiscounted subtotal.
func (t Totals) WithDiscount(discountCents int, waiveShipping bool) Totals {
	if discountCents < 0 {
		discountCents = 0
	}
	if discountCents > t.SubtotalCents {
		discountCents = t.SubtotalCents
	}
	t.DiscountCents = discountCents
	if waiveShipping {
		t.ShippingCents = 0
	}
	t.TotalCents = t.SubtotalCents + t.TaxCents + t.ShippingCents - t.DiscountCents
	return t
}

// Calculator prices carts with pluggable tax and shipping rules.
type Calculator struct {
	Tax      TaxCalculator
	Shipping ShippingCalculator
}

// Totals is a pure function of the cart lines and the shipping region.
func (c Calculator) Totals(cart *models.Cart, shipTo *types.Address) Totals {
	var t Totals
	if cart == nil {
		return t
	}
	for _, line := range cart.Lines {
		t.ItemCount += line.Quantity
		t.SubtotalCents += line.LineTotalCents()
	}
	region := ""
	if shipTo != nil {
		region = shipTo.State
	}
	if c.Tax != nil {
		t.TaxCents = c.Tax.TaxCents(t.SubtotalCents, region)
	}
	if c.Shipping != nil {
		t.ShippingCents = c.Shipping.ShippingCents(t.SubtotalCents, t.ItemCount, region)
	}
	t.TotalCents = t.SubtotalCents + t.TaxCents + t.ShippingCents
	return t
}
