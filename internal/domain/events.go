package domain

import "time"

type OrderCreatedEvent struct {
	OrderID   string            `json:"order_id"`
	UserID    string            `json:"user_id"`
	UserName  string            `json:"user_name"`
	Email     string            `json:"email"`
	Lines     []OrderLineRecord `json:"lines"`
	Total     float64           `json:"total"`
	Timestamp time.Time         `json:"timestamp"`
}

func (OrderCreatedEvent) EventType() string { return "order.created.v1" }
