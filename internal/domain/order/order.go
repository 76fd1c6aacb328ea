package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an order may move from s to next. Skipping
// shipped (processing -> delivered) is allowed.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() || s == next {
		return false
	}
	switch next {
	case StatusCancelled:
		return true
	case StatusShipped:
		return s == StatusProcessing
	case StatusDelivered:
		return s == StatusProcessing || s == StatusShipped
	default:
		return false
	}
}

// Line is a cart line frozen at order time.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// ShippingAddress is the delivery and contact information of an order.
type ShippingAddress struct {
	Name       string
	Email      string
	Address    string
	City       string
	PostalCode string
}

// Order represents a paid customer order.
type Order struct {
	ID              string
	UserID          string
	Lines           []Line
	Subtotal        decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	Address         ShippingAddress
	PaymentIntentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Summary aggregates non-cancelled orders.
type Summary struct {
	Orders int64
	Sales  decimal.Decimal
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePayment is returned by Create when an order already exists
	// for the payment intent.
	ErrDuplicatePayment = errors.New("order already recorded for payment")
	// ErrStatusConflict is returned by UpdateStatus when the stored status no
	// longer matches the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	Summary(ctx context.Context) (Summary, error)
}
