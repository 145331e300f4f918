package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateLine inserts one order line keyed by idempotencyKey. When the key was
// already used the stored line is returned with created set to false.
func (r *OrderRepository) CreateLine(ctx context.Context, line domain.OrderLineRecord, idempotencyKey string) (domain.OrderLineRecord, bool, error) {
	line.ID = uuid.New().String()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO orders.order_lines (id, order_id, idempotency_key, user_name, product_id, product_name,
			payment_method, product_sku, product_brand, quantity, price, discounted_price, size, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at
	`, line.ID, line.OrderID, idempotencyKey, line.UserName, line.ProductID, line.ProductName,
		line.PaymentMethod, line.ProductSKU, line.ProductBrand, line.Quantity, line.Price,
		line.DiscountedPrice, line.Size, line.Color,
	).Scan(&line.CreatedAt)
	if err == nil {
		return line, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.OrderLineRecord{}, false, err
	}

	existing, err := scanLine(r.db.QueryRowContext(ctx, `
		SELECT `+lineColumns+`
		FROM orders.order_lines
		WHERE idempotency_key = $1
	`, idempotencyKey))
	if err != nil {
		return domain.OrderLineRecord{}, false, fmt.Errorf("load line for key %s: %w", idempotencyKey, err)
	}
	return existing, false, nil
}

func (r *OrderRepository) LinesByOrder(ctx context.Context, orderID string) ([]domain.OrderLineRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM orders.order_lines
		WHERE order_id = $1
		ORDER BY idempotency_key
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.OrderLineRecord{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// CreateOrder stores the order and all of its lines in one transaction. The
// order id is the checkout transaction id, so a replay returns the existing
// order with created set to false.
func (r *OrderRepository) CreateOrder(ctx context.Context, pending domain.PendingOrder) (*domain.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := createOrderTx(ctx, tx, pending)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	order, err := r.GetByID(ctx, pending.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return order, created, nil
}

func createOrderTx(ctx context.Context, tx *sql.Tx, pending domain.PendingOrder) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders.orders (id, user_id, user_name, email, payment_method, subtotal, shipping, tax, total, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, pending.TransactionID, pending.Customer.UserID, pending.Customer.Name, pending.Customer.Email,
		pending.PaymentMethod, pending.Amounts.Subtotal, pending.Amounts.Shipping, pending.Amounts.Tax,
		pending.Amounts.Total, pending.Currency, domain.OrderStatusPaid,
	)
	if err != nil {
		return false, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	for i, l := range pending.Lines {
		// Lines already created one by one for this checkout share the key
		// and are kept as they are.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders.order_lines (id, order_id, idempotency_key, user_name, product_id, product_name,
				payment_method, product_sku, product_brand, quantity, price, discounted_price, size, color)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, uuid.New().String(), pending.TransactionID, fmt.Sprintf("%s:%d", pending.TransactionID, i),
			pending.Customer.Name, l.ProductID, l.ProductName, pending.PaymentMethod, l.ProductSKU,
			l.ProductBrand, l.Quantity, l.Price, l.DiscountedPrice, l.Size, l.Color,
		)
		if err != nil {
			return false, fmt.Errorf("insert line %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders.order_intents SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, domain.IntentStatusFinalized, pending.TransactionID)
	if err != nil {
		return false, fmt.Errorf("finalize intent: %w", err)
	}

	return true, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, user_name, email, payment_method, subtotal, shipping, tax, total, status, created_at
		FROM orders.orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.UserName, &order.Email, &order.PaymentMethod,
		&order.Amounts.Subtotal, &order.Amounts.Shipping, &order.Amounts.Tax, &order.Amounts.Total,
		&order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	order.Lines, err = r.LinesByOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders.orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// ListByUser returns a shopper's orders, newest first, with their lines loaded
// in one extra query.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, user_name, email, payment_method, subtotal, shipping, tax, total, status, created_at
		FROM orders.orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.UserName, &order.Email, &order.PaymentMethod,
			&order.Amounts.Subtotal, &order.Amounts.Shipping, &order.Amounts.Tax, &order.Amounts.Total,
			&order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Lines = []domain.OrderLineRecord{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM orders.order_lines
		WHERE order_id = ANY($1)
		ORDER BY idempotency_key
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lineRows.Close() }()

	for lineRows.Next() {
		line, err := scanLine(lineRows)
		if err != nil {
			return nil, err
		}
		order := orderMap[line.OrderID]
		order.Lines = append(order.Lines, line)
	}

	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// CreateIntent records a checkout before the shopper is sent to the payment
// gateway. Registering the same transaction twice returns the first record.
func (r *OrderRepository) CreateIntent(ctx context.Context, pending domain.PendingOrder) (*domain.OrderIntent, bool, error) {
	payload, err := json.Marshal(pending)
	if err != nil {
		return nil, false, fmt.Errorf("marshal intent payload: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO orders.order_intents (id, user_id, payload, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, pending.TransactionID, pending.Customer.UserID, string(payload), domain.IntentStatusPending)
	if err != nil {
		return nil, false, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	intent, err := r.GetIntent(ctx, pending.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return intent, inserted > 0, nil
}

func (r *OrderRepository) GetIntent(ctx context.Context, id string) (*domain.OrderIntent, error) {
	return getIntent(ctx, r.db, id, false)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getIntent(ctx context.Context, q queryRower, id string, lock bool) (*domain.OrderIntent, error) {
	query := `
		SELECT id, payload, status, created_at, updated_at
		FROM orders.order_intents
		WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		intent  domain.OrderIntent
		payload []byte
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&intent.ID, &payload, &intent.Status, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(payload, &intent.Order); err != nil {
		return nil, fmt.Errorf("unmarshal intent payload: %w", err)
	}
	return &intent, nil
}

// FinalizeIntent turns a paid intent into an order. It is safe to call more
// than once and races harmlessly with a browser-side CreateOrder for the same
// transaction.
func (r *OrderRepository) FinalizeIntent(ctx context.Context, id string) (*domain.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	intent, err := getIntent(ctx, tx, id, true)
	if err != nil {
		return nil, false, err
	}
	if intent == nil {
		return nil, false, domain.ErrNotFound
	}

	created := false
	if intent.Status != domain.IntentStatusFinalized {
		created, err = createOrderTx(ctx, tx, intent.Order)
		if err != nil {
			return nil, false, err
		}
		if !created {
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders.order_intents SET status = $1, updated_at = NOW()
				WHERE id = $2
			`, domain.IntentStatusFinalized, id); err != nil {
				return nil, false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return order, created, nil
}

// FailIntent marks a pending intent as failed. Finalized intents are left
// alone; it reports whether anything changed.
func (r *OrderRepository) FailIntent(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders.order_intents SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.IntentStatusFailed, id, domain.IntentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const lineColumns = `id, order_id, user_name, product_id, product_name, payment_method, product_sku,
	product_brand, quantity, price, discounted_price, size, color, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(s rowScanner) (domain.OrderLineRecord, error) {
	var l domain.OrderLineRecord
	err := s.Scan(&l.ID, &l.OrderID, &l.UserName, &l.ProductID, &l.ProductName, &l.PaymentMethod,
		&l.ProductSKU, &l.ProductBrand, &l.Quantity, &l.Price, &l.DiscountedPrice, &l.Size, &l.Color, &l.CreatedAt)
	return l, err
}
