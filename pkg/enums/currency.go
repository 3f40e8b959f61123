package enums

import (
	"fmt"
	"strings"
)

// Currency is a lower-case ISO 4217 code, the form Stripe expects.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyCAD Currency = "cad"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"
)

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyCAD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// ParseCurrency trims and lower-cases value before matching.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
