package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/types"
)

func cartWith(lines ...models.CartLine) *models.Cart {
	return &models.Cart{Lines: lines}
}

func TestTotalsTwoUnitsOverFreeShippingThreshold(t *testing.T) {
	calc := Calculator{
		Tax:      StaticTaxTable{Default: decimal.RequireFromString("0.08")},
		Shipping: FlatRateShipping{FreeThresholdCents: 5000},
	}
	totals := calc.Totals(cartWith(models.CartLine{UnitPriceCents: 10000, Quantity: 2}), nil)

	assert.Equal(t, Totals{
		ItemCount:     2,
		SubtotalCents: 20000,
		TaxCents:      1600,
		ShippingCents: 0,
		TotalCents:    21600,
	}, totals)
}

func TestTotalsWithDiscountKeepsTaxOnSubtotal(t *testing.T) {
	calc := Calculator{
		Tax:      StaticTaxTable{Default: decimal.RequireFromString("0.08")},
		Shipping: FlatRateShipping{},
	}
	totals := calc.Totals(cartWith(models.CartLine{UnitPriceCents: 1000, Quantity: 2}), nil).WithDiscount(2500, false)

	assert.Equal(t, 2000, totals.DiscountCents)
	assert.Equal(t, 160, totals.TaxCents)
	assert.Equal(t, 599, totals.ShippingCents)
	assert.Equal(t, 2000+160+599-2000, totals.TotalCents)

	waived := calc.Totals(cartWith(models.CartLine{UnitPriceCents: 1000, Quantity: 2}), nil).WithDiscount(0, true)
	assert.Zero(t, waived.ShippingCents)
	assert.Equal(t, 2160, waived.TotalCents)
}

func TestStaticTaxTableRates(t *testing.T) {
	table := NewStaticTaxTable(decimal.RequireFromString("0.0825"))

	assert.Equal(t, 725, table.TaxCents(10000, "ca"))
	assert.Equal(t, 0, table.TaxCents(10000, "OR"))
	assert.Equal(t, 662, table.TaxCents(10000, "NJ")) // 662.5 rounds to even
	assert.Equal(t, 825, table.TaxCents(10000, ""))
	assert.Equal(t, 825, table.TaxCents(10000, "ZZ"))
	assert.Equal(t, 0, table.TaxCents(0, "CA"))
}

func TestFlatRateShippingTiers(t *testing.T) {
	shipping := FlatRateShipping{FreeThresholdCents: 5000}
	cases := []struct {
		subtotal, items int
		region          string
		want            int
	}{
		{subtotal: 0, items: 0, want: 0},
		{subtotal: 1000, items: 1, want: 599},
		{subtotal: 1000, items: 2, want: 599},
		{subtotal: 1000, items: 3, want: 799},
		{subtotal: 1000, items: 5, want: 799},
		{subtotal: 1000, items: 6, want: 999},
		{subtotal: 1000, items: 1, region: "HI", want: 1099},
		{subtotal: 1000, items: 6, region: "ak", want: 1499},
		{subtotal: 4999, items: 1, want: 599},
		{subtotal: 5000, items: 1, want: 0},
		{subtotal: 5000, items: 1, region: "AK", want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, shipping.ShippingCents(tc.subtotal, tc.items, tc.region), "%+v", tc)
	}
}

func TestTotalsUsesShippingRegion(t *testing.T) {
	calc := Calculator{Tax: NewStaticTaxTable(decimal.Zero), Shipping: FlatRateShipping{}}
	cart := cartWith(models.CartLine{UnitPriceCents: 1000, Quantity: 1})

	totals := calc.Totals(cart, &types.Address{State: "TX"})
	assert.Equal(t, 62, totals.TaxCents) // 62.5 rounds to even
	assert.Equal(t, 599, totals.ShippingCents)

	assert.Equal(t, Totals{}, calc.Totals(nil, nil))
}

func TestOwnerValidate(t *testing.T) {
	assert.Error(t, Owner{}.Validate())
	assert.NoError(t, GuestOwner("sess-1").Validate())
	assert.Equal(t, "session:sess-1", GuestOwner(" sess-1 ").ID())
}
