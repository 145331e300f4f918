package checkout

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func samplePendingOrder() domain.PendingOrder {
	return domain.PendingOrder{
		TransactionID: "6f1c7e0a-2b43-4a5e-9d59-3c1f0f6de001",
		Customer: domain.CustomerInfo{
			UserID:  "user-1",
			Name:    "Ada Lovelace",
			Email:   "ada@example.com",
			Phone:   "555-0100",
			Address: "1 Analytical Way",
			City:    "London",
			Zip:     "N1",
		},
		PaymentMethod: "card",
		Lines: []domain.OrderLine{
			{ProductID: "A", ProductName: "Shirt", ProductSKU: "SH-1", ProductBrand: "Acme", Quantity: 2, Price: 100},
			{ProductID: "B", ProductName: "Hat", ProductSKU: "HT-1", ProductBrand: "Acme", Quantity: 1, Price: 50, DiscountedPrice: 40, Size: "M", Color: "red"},
			{ProductID: "C", ProductName: "Sock", ProductSKU: "SK-1", ProductBrand: "Knit", Quantity: 3, Price: 9.99},
		},
		Amounts:   domain.Amounts{Subtotal: 269.97, Shipping: 0, Tax: 26.997, Total: 296.967},
		Currency:  "USD",
		CreatedAt: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	order := samplePendingOrder()

	data, err := Encode(order)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	if diff := cmp.Diff(order, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_DecodeNormalizes(t *testing.T) {
	payload := `{
		"transaction_id": "tx-1",
		"customer": {"name": "Ada"},
		"lines": [
			{"product_id": "A", "quantity": "3", "price": "12.50"},
			{"product_id": "B", "quantity": 0, "price": null, "discounted_price": "abc"},
			{"product_id": "C", "quantity": 2.7}
		],
		"amounts": {"subtotal": "37.5", "total": "not a number"}
	}`

	got, err := Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, 3, got.Lines[0].Quantity)
	assert.Equal(t, 12.5, got.Lines[0].Price)
	assert.Equal(t, 1, got.Lines[1].Quantity)
	assert.Zero(t, got.Lines[1].Price)
	assert.Zero(t, got.Lines[1].DiscountedPrice)
	assert.Equal(t, 2, got.Lines[2].Quantity)
	assert.Equal(t, 37.5, got.Amounts.Subtotal)
	assert.Zero(t, got.Amounts.Total)
	assert.Zero(t, got.Amounts.Shipping)
}

func TestCodec_DecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{"transaction_id": "tx`},
		{name: "missing transaction id", payload: `{"lines": [{"product_id": "A"}]}`},
		{name: "no lines", payload: `{"transaction_id": "tx-1", "lines": []}`},
		{name: "empty", payload: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))

			var derr *domain.DataIntegrityError
			assert.ErrorAs(t, err, &derr)
		})
	}
}
