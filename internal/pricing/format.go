package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Format renders an amount for display, rounded half away from zero to two
// decimals. It must not be used on values that are going to be persisted.
func Format(amount float64, unit currency.Unit) string {
	return unit.String() + " " + decimal.NewFromFloat(amount).StringFixed(2)
}

// Round2 is the numeric counterpart of Format for JSON display fields.
func Round2(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

func ParseCurrency(code string) (currency.Unit, error) {
	return currency.ParseISO(code)
}
