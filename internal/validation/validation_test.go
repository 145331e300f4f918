package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type line struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"min=1"`
	Price     float64 `json:"price" validate:"gt=0"`
}

type wrapper struct {
	Lines []line `json:"lines" validate:"required,min=1,dive"`
}

func TestStruct(t *testing.T) {
	v := New()

	t.Run("valid struct", func(t *testing.T) {
		assert.NoError(t, Struct(v, line{ProductID: "p", Quantity: 1, Price: 1}))
	})

	t.Run("fields keyed by json name", func(t *testing.T) {
		err := Struct(v, line{Quantity: 0, Price: 0})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, map[string]string{
			"product_id": "is required",
			"quantity":   "must be at least 1",
			"price":      "must be greater than 0",
		}, verr.Fields)
	})

	t.Run("nested fields keep their path", func(t *testing.T) {
		err := Struct(v, wrapper{Lines: []line{{ProductID: "p", Quantity: 1, Price: 1}, {ProductID: "", Quantity: 1, Price: 1}}})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "is required", verr.Fields["lines[1].product_id"])
	})

	t.Run("customer info", func(t *testing.T) {
		err := Struct(v, domain.CustomerInfo{UserID: "u", Name: "n", Email: "not-an-email", Phone: "1", Address: "a", City: "c"})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, map[string]string{"email": "must be a valid email"}, verr.Fields)
	})
}
