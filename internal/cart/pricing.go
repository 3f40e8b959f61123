package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shopledger-backend/pkg/money"
)

// TaxCalculator returns the tax in cents owed on subtotalCents for a region.
// region is a US state code and may be empty.
type TaxCalculator interface {
	TaxCents(subtotalCents int, region string) int
}

// ShippingCalculator returns the shipping charge in cents.
type ShippingCalculator interface {
	ShippingCents(subtotalCents, itemCount int, region string) int
}

var defaultStateRates = map[string]string{
	"CA": "0.0725",
	"NY": "0.08",
	"TX": "0.0625",
	"FL": "0.06",
	"WA": "0.065",
	"IL": "0.0625",
	"PA": "0.06",
	"OH": "0.0575",
	"NJ": "0.06625",
	"GA": "0.04",
	"OR": "0",
	"MT": "0",
	"NH": "0",
	"DE": "0",
	"AK": "0",
}

// StaticTaxTable applies a per-state rate, falling back to Default.
type StaticTaxTable struct {
	Default decimal.Decimal
	Rates   map[string]decimal.Decimal
}

// NewStaticTaxTable returns the built-in state table with the given fallback rate.
func NewStaticTaxTable(defaultRate decimal.Decimal) StaticTaxTable {
	rates := make(map[string]decimal.Decimal, len(defaultStateRates))
	for state, rate := range defaultStateRates {
		rates[state] = decimal.RequireFromString(rate)
	}
	return StaticTaxTable{Default: defaultRate, Rates: rates}
}

// Rate returns the rate applied to region.
func (t StaticTaxTable) Rate(region string) decimal.Decimal {
	if rate, ok := t.Rates[strings.ToUpper(strings.TrimSpace(region))]; ok {
		return rate
	}
	return t.Default
}

func (t StaticTaxTable) TaxCents(subtotalCents int, region string) int {
	if subtotalCents <= 0 {
		return 0
	}
	return money.ApplyRate(subtotalCents, t.Rate(region))
}

const (
	DefaultFreeShippingThresholdCents = 5000
	remoteSurchargeCents              = 500
)

var remoteRegions = map[string]struct{}{"AK": {}, "HI": {}}

// FlatRateShipping charges by item count with free shipping above a
// subtotal threshold and a surcharge for remote states.
type FlatRateShipping struct {
	FreeThresholdCents int
}

func (s FlatRateShipping) ShippingCents(subtotalCents, itemCount int, region string) int {
	if itemCount <= 0 {
		return 0
	}
	threshold := s.FreeThresholdCents
	if threshold <= 0 {
		threshold = DefaultFreeShippingThresholdCents
	}
	if subtotalCents >= threshold {
		return 0
	}
	var cents int
	switch {
	case itemCount <= 2:
		cents = 599
	case itemCount <= 5:
		cents = 799
	default:
		cents = 999
	}
	if _, ok := remoteRegions[strings.ToUpper(strings.TrimSpace(region))]; ok {
		cents += remoteSurchargeCents
	}
	return cents
}
