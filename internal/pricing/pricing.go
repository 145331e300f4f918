// Package pricing holds the pure money and quantity helpers shared by the cart
// store and the checkout bridge.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// EffectivePrice is the discounted price when one is set, the list price otherwise.
func EffectivePrice(price, discounted float64) float64 {
	if discounted != 0 && !math.IsNaN(discounted) {
		return discounted
	}
	return price
}

// NormalizeQuantity coerces q to an integer of at least 1. Anything that does
// not parse as a number becomes 1.
func NormalizeQuantity(q any) int {
	f, ok := toFloat(q)
	if !ok {
		return 1
	}
	// float64(math.MaxInt) is 2^63, one past the int range.
	switch {
	case f >= float64(math.MaxInt):
		return math.MaxInt
	case f < 1:
		return 1
	}
	return int(math.Trunc(f))
}

// NormalizeAmount coerces x to a float64, with 0 for missing or non-numeric input.
func NormalizeAmount(x any) float64 {
	f, ok := toFloat(x)
	if !ok {
		return 0
	}
	return f
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CartTotal is Σ quantity × effective price over the cart lines.
func CartTotal(items []domain.CartItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * EffectivePrice(item.Price, item.DiscountedPrice)
	}
	return total
}

func TotalItems(items []domain.CartItem) int {
	var n int
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

func LinesSubtotal(lines []domain.OrderLine) float64 {
	var total float64
	for _, line := range lines {
		total += float64(line.Quantity) * EffectivePrice(line.Price, line.DiscountedPrice)
	}
	return total
}
