package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/pricing"
)

// Sentinel errors for order validation.
var (
	ErrEmptyLines      = errors.New("order lines required")
	ErrMissingUser     = errors.New("user id required")
	ErrMissingPayment  = errors.New("payment intent id required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// InvalidTransitionError indicates a status change the lifecycle forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

// PlaceOrderRequest holds the input for recording a paid order.
type PlaceOrderRequest struct {
	UserID          string
	Lines           []Line
	Address         ShippingAddress
	PaymentIntentID string
}

// placedPayload is the order.placed event body.
type placedPayload struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	Lines           []Line          `json:"lines"`
	PaymentIntentID string          `json:"payment_intent_id"`
}

type statusPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

// Service encapsulates order recording and fulfilment.
type Service struct {
	orders   Repository
	shipping pricing.ShippingRule
	events   events.Publisher
	lg       *zap.Logger
	now      func() time.Time
	newID    func() string

	// seen remembers payment intents already recorded by this process so
	// repeated submissions skip the insert round-trip. False positives fall
	// through to a repository lookup.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewService creates an order Service.
func NewService(orders Repository, shipping pricing.ShippingRule, publisher events.Publisher, lg *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		orders:   orders,
		shipping: shipping,
		events:   publisher,
		lg:       lg,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		seen:     bloom.NewWithEstimates(100_000, 0.001),
	}
}

// Shipping returns the rule used to price orders.
func (s *Service) Shipping() pricing.ShippingRule {
	return s.shipping
}

// Place records a paid order. Placing twice for the same payment intent
// returns the first order.
func (s *Service) Place(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrMissingUser
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		return nil, ErrMissingPayment
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}

	subtotal := decimal.Zero
	lines := make([]Line, len(req.Lines))
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s", l.ProductID)
		}
		lines[i] = l
		subtotal = subtotal.Add(pricing.LineTotal(l.UnitPrice, l.Quantity))
	}
	subtotal = subtotal.Round(2)

	if s.mightHaveSeen(req.PaymentIntentID) {
		existing, err := s.orders.GetByPaymentIntent(ctx, req.PaymentIntentID)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "lookup order by payment")
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Lines:           lines,
		Subtotal:        subtotal,
		Shipping:        s.shipping.Fee(subtotal),
		Total:           s.shipping.Total(subtotal),
		Status:          StatusProcessing,
		Address:         req.Address,
		PaymentIntentID: req.PaymentIntentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			s.remember(req.PaymentIntentID)
			existing, getErr := s.orders.GetByPaymentIntent(ctx, req.PaymentIntentID)
			if getErr != nil {
				return nil, errors.Wrap(getErr, "lookup duplicate order")
			}
			return existing, nil
		}
		return nil, errors.Wrap(err, "create order")
	}
	s.remember(req.PaymentIntentID)

	s.publish(ctx, events.Event{
		Type:       events.OrderPlaced,
		Key:        o.ID,
		OccurredAt: now,
		Payload: placedPayload{
			OrderID:         o.ID,
			UserID:          o.UserID,
			Total:           o.Total,
			Lines:           o.Lines,
			PaymentIntentID: o.PaymentIntentID,
		},
	})
	return o, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListForUser returns a customer's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves an order along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !o.Status.CanTransition(to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	now := s.now().UTC()
	if err := s.orders.UpdateStatus(ctx, id, o.Status, to, now); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	from := o.Status
	o.Status = to
	o.UpdatedAt = now

	s.publish(ctx, events.Event{
		Type:       events.OrderStatusChanged,
		Key:        o.ID,
		OccurredAt: now,
		Payload:    statusPayload{OrderID: o.ID, From: from, To: to},
	})
	return o, nil
}

// Summary returns aggregate sales figures.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	sum, err := s.orders.Summary(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summarize orders")
	}
	return sum, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.lg.Warn("Publish event failed",
			zap.String("type", string(e.Type)),
			zap.String("key", e.Key),
			zap.Error(err),
		)
	}
}

func (s *Service) mightHaveSeen(paymentIntentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.TestString(paymentIntentID)
}

func (s *Service) remember(paymentIntentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen.AddString(paymentIntentID)
}
