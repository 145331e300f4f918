package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func TestEffectivePrice(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		discounted float64
		want       float64
	}{
		{name: "no discount", price: 100, discounted: 0, want: 100},
		{name: "discount set", price: 50, discounted: 40, want: 40},
		{name: "NaN discount ignored", price: 20, discounted: math.NaN(), want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectivePrice(tt.price, tt.discounted))
		})
	}
}

func TestNormalizeQuantity(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{name: "int", in: 3, want: 3},
		{name: "zero becomes one", in: 0, want: 1},
		{name: "negative clamps to one", in: -4, want: 1},
		{name: "float truncates", in: 2.9, want: 2},
		{name: "numeric string", in: "5", want: 5},
		{name: "garbage string", in: "abc", want: 1},
		{name: "nil", in: nil, want: 1},
		{name: "json number", in: json.Number("7"), want: 7},
		{name: "NaN", in: math.NaN(), want: 1},
		{name: "unsupported type", in: struct{}{}, want: 1},
		{name: "huge float clamps to max int", in: 1e19, want: math.MaxInt},
		{name: "huge numeric string", in: "1e30", want: math.MaxInt},
		{name: "huge negative", in: -1e19, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuantity(tt.in))
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{name: "float", in: 12.5, want: 12.5},
		{name: "string", in: " 99.99 ", want: 99.99},
		{name: "empty string", in: "", want: 0},
		{name: "nil", in: nil, want: 0},
		{name: "NaN", in: math.NaN(), want: 0},
		{name: "infinity", in: math.Inf(1), want: 0},
		{name: "int", in: 40, want: 40},
		{name: "bool", in: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAmount(tt.in))
		})
	}
}

func TestCartTotal(t *testing.T) {
	t.Run("mixed discounted and list prices", func(t *testing.T) {
		items := []domain.CartItem{
			{ID: "a", Quantity: 2, Price: 100},
			{ID: "b", Quantity: 1, Price: 50, DiscountedPrice: 40},
		}

		assert.Equal(t, 240.0, CartTotal(items))
		assert.Equal(t, 3, TotalItems(items))
	})

	t.Run("matches per line sum", func(t *testing.T) {
		items := make([]domain.CartItem, 10)
		var want float64
		for i := range items {
			items[i] = domain.CartItem{
				ID:       gofakeit.UUID(),
				Quantity: gofakeit.IntRange(1, 5),
				Price:    gofakeit.Price(1, 200),
			}
			if i%2 == 0 {
				items[i].DiscountedPrice = items[i].Price / 2
			}
			want += float64(items[i].Quantity) * EffectivePrice(items[i].Price, items[i].DiscountedPrice)
		}

		assert.InDelta(t, want, CartTotal(items), 1e-9)
	})

	t.Run("empty cart", func(t *testing.T) {
		assert.Zero(t, CartTotal(nil))
		assert.Zero(t, TotalItems(nil))
	})
}

func TestBreakdown(t *testing.T) {
	lines := []domain.OrderLine{
		{ProductID: "a", Quantity: 2, Price: 100},
		{ProductID: "b", Quantity: 1, Price: 50, DiscountedPrice: 40},
	}

	t.Run("flat shipping and tax", func(t *testing.T) {
		got := Breakdown(lines, Policy{ShippingFlat: 10, TaxRate: 0.1})

		assert.Equal(t, 240.0, got.Subtotal)
		assert.Equal(t, 10.0, got.Shipping)
		assert.InDelta(t, 24.0, got.Tax, 1e-9)
		assert.InDelta(t, 274.0, got.Total, 1e-9)
	})

	t.Run("free shipping over threshold", func(t *testing.T) {
		got := Breakdown(lines, Policy{ShippingFlat: 10, FreeShippingOver: 200})

		assert.Zero(t, got.Shipping)
		assert.Equal(t, 240.0, got.Total)
	})

	t.Run("no shipping on empty order", func(t *testing.T) {
		got := Breakdown(nil, Policy{ShippingFlat: 10})

		assert.Equal(t, domain.Amounts{}, got)
	})
}

func TestFormat(t *testing.T) {
	usd, err := ParseCurrency("USD")
	require.NoError(t, err)

	assert.Equal(t, "USD 240.00", Format(240, usd))
	assert.Equal(t, "USD 0.30", Format(0.1+0.2, usd))
	assert.Equal(t, "EUR 10.13", Format(10.125, currency.EUR))
	assert.Equal(t, 0.3, Round2(0.1+0.2))

	_, err = ParseCurrency("NOPE")
	assert.Error(t, err)
}
