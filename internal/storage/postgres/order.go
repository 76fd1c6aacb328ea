package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/roseila-storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, lines, subtotal, shipping, total, status,
		shipping_name, shipping_email, shipping_address, shipping_city, shipping_postal_code,
		payment_intent_id, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByPaymentIntentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	orderSummarySQL = `SELECT count(*), COALESCE(sum(total), 0) FROM orders WHERE status <> 'cancelled'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Lines are serialized to JSON for storage in
// the JSONB column. A second order for the same payment intent fails with
// order.ErrDuplicatePayment.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, linesJSON, o.Subtotal, o.Shipping, o.Total, string(o.Status),
		o.Address.Name, o.Address.Email, o.Address.Address, o.Address.City, o.Address.PostalCode,
		o.PaymentIntentID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_payment_intent_id_key") {
			return order.ErrDuplicatePayment
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByPaymentIntent returns the order recorded for a payment intent.
func (r *OrderRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByPaymentIntentSQL, paymentIntentID)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// ListByUser returns the orders of one user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns every order, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves an order from one status to another. The update only
// applies while the stored status is still from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// Summary counts non-cancelled orders and sums their totals.
func (r *OrderRepository) Summary(ctx context.Context) (order.Summary, error) {
	var s order.Summary
	if err := r.pool.QueryRow(ctx, orderSummarySQL).Scan(&s.Orders, &s.Sales); err != nil {
		return order.Summary{}, fmt.Errorf("summarizing orders: %w", err)
	}
	return s, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &o.Subtotal, &o.Shipping, &o.Total, &status,
		&o.Address.Name, &o.Address.Email, &o.Address.Address, &o.Address.City, &o.Address.PostalCode,
		&o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling order %q lines: %w", o.ID, err)
	}
	return o, nil
}
