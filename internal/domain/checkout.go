package domain

import "time"

type CustomerInfo struct {
	UserID  string `json:"user_id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	Zip     string `json:"zip"`
}

// PendingOrder is held in the transient slot while the browser is away at the
// payment gateway.
type PendingOrder struct {
	TransactionID string       `json:"transaction_id"`
	Customer      CustomerInfo `json:"customer"`
	PaymentMethod string       `json:"payment_method"`
	Lines         []OrderLine  `json:"lines"`
	Amounts       Amounts      `json:"amounts"`
	Currency      string       `json:"currency"`
	CreatedAt     time.Time    `json:"created_at"`
}

type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusFinalized IntentStatus = "finalized"
	IntentStatusFailed    IntentStatus = "failed"
)

// OrderIntent is the server-side record of a checkout that was sent to the
// payment gateway. Its ID is the client generated transaction id.
type OrderIntent struct {
	ID        string       `json:"id"`
	Order     PendingOrder `json:"order"`
	Status    IntentStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type CheckoutState string

const (
	CheckoutIdle            CheckoutState = "idle"
	CheckoutPending         CheckoutState = "pending"
	CheckoutAwaitingReturn  CheckoutState = "awaiting"
	CheckoutReconciling     CheckoutState = "reconciling"
	CheckoutPersisting      CheckoutState = "persisting"
	CheckoutCompleted       CheckoutState = "completed"
	CheckoutPartiallyFailed CheckoutState = "partiallyFailed"
	CheckoutFailed          CheckoutState = "failed"
)

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutCompleted || s == CheckoutPartiallyFailed || s == CheckoutFailed
}

func (s CheckoutState) String() string {
	return string(s)
}
