package checkout

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostedGateway_RedirectURL(t *testing.T) {
	gw, err := NewHostedGateway("https://pay.example.com/checkout?lang=en", "https://shop.example.com/checkout/success", "merchant-42")
	require.NoError(t, err)

	raw, err := gw.RedirectURL(samplePendingOrder())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "pay.example.com", u.Host)
	assert.Equal(t, "en", q.Get("lang"))
	assert.Equal(t, "merchant-42", q.Get("merchant_id"))
	assert.Equal(t, "6f1c7e0a-2b43-4a5e-9d59-3c1f0f6de001", q.Get("transaction_id"))
	assert.Equal(t, "296.97", q.Get("amount"))
	assert.Equal(t, "USD", q.Get("currency"))
	assert.Equal(t, "https://shop.example.com/checkout/success?transaction_id=6f1c7e0a-2b43-4a5e-9d59-3c1f0f6de001", q.Get("return_url"))
}

func TestNewHostedGateway_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewHostedGateway("/pay", "/back", "m")
	assert.Error(t, err)
}
