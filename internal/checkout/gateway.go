package checkout

import (
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// Gateway produces the URL the browser is sent to for payment.
type Gateway interface {
	RedirectURL(order domain.PendingOrder) (string, error)
}

// HostedGateway targets a hosted payment page that takes the order summary as
// query parameters and sends the shopper back to returnURL afterwards.
type HostedGateway struct {
	checkoutURL *url.URL
	returnURL   *url.URL
	merchantID  string
}

func NewHostedGateway(checkoutURL, returnURL, merchantID string) (*HostedGateway, error) {
	cu, err := url.Parse(checkoutURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway checkout url: %w", err)
	}
	if cu.Scheme == "" || cu.Host == "" {
		return nil, fmt.Errorf("gateway checkout url %q must be absolute", checkoutURL)
	}
	ru, err := url.Parse(returnURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway return url: %w", err)
	}
	return &HostedGateway{checkoutURL: cu, returnURL: ru, merchantID: merchantID}, nil
}

func (g *HostedGateway) RedirectURL(order domain.PendingOrder) (string, error) {
	if order.TransactionID == "" {
		return "", &domain.DataIntegrityError{Reason: "redirect without transaction id"}
	}

	ret := *g.returnURL
	rq := ret.Query()
	rq.Set("transaction_id", order.TransactionID)
	ret.RawQuery = rq.Encode()

	u := *g.checkoutURL
	q := u.Query()
	q.Set("merchant_id", g.merchantID)
	q.Set("transaction_id", order.TransactionID)
	q.Set("amount", decimal.NewFromFloat(order.Amounts.Total).StringFixed(2))
	q.Set("currency", order.Currency)
	q.Set("email", order.Customer.Email)
	q.Set("return_url", ret.String())
	u.RawQuery = q.Encode()

	return u.String(), nil
}
