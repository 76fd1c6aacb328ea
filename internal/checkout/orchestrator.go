// Package checkout drives a cart through payment and order creation.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/cart"
	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/payment"
)

// DefaultConfirmationDelay is how long the confirmation stays up before the
// orchestrator returns to Idle.
const DefaultConfirmationDelay = 3 * time.Second

// State is a checkout step.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateAwaitingPaymentIntent
	StateAwaitingPaymentConfirmation
	StatePersistingOrder
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateAwaitingPaymentIntent:
		return "awaiting_payment_intent"
	case StateAwaitingPaymentConfirmation:
		return "awaiting_payment_confirmation"
	case StatePersistingOrder:
		return "persisting_order"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Cart is the part of the cart manager checkout reads and settles.
type Cart interface {
	Lines() []cart.Line
	// RemovePurchased drops the charged lines, keeping anything added
	// while payment was in flight.
	RemovePurchased(lines []cart.Line)
}

// Session gates checkout on an authenticated identity.
type Session interface {
	RequireAuthenticated() (*user.Profile, error)
}

// OrderPlacer records paid orders.
type OrderPlacer interface {
	Place(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Status is the observable state of the orchestrator.
type Status struct {
	State State
	// Err is set in StateFailed.
	Err error
	// Order is set in StateCompleted.
	Order *order.Order
}

// Options tune an Orchestrator. Zero values pick defaults.
type Options struct {
	ConfirmationDelay time.Duration
	Events            events.Publisher
	MeterProvider     metric.MeterProvider
	Logger            *zap.Logger
	// OnReturn runs when the confirmation delay elapses.
	OnReturn func()
	// OnTransition observes every state change.
	OnTransition func(from, to State)
}

type metrics struct {
	completed metric.Int64Counter
	failed    metric.Int64Counter
	orphaned  metric.Int64Counter
}

// Orchestrator runs one checkout at a time for a single client.
type Orchestrator struct {
	cart      Cart
	session   Session
	intents   payment.IntentCreator
	confirmer payment.Confirmer
	orders    OrderPlacer
	events    events.Publisher
	lg        *zap.Logger
	metrics   metrics

	delay        time.Duration
	afterFunc    func(d time.Duration, f func()) *time.Timer
	onReturn     func()
	onTransition func(from, to State)

	mu       sync.Mutex
	status   Status
	inFlight bool
	timer    *time.Timer
}

// New creates an Orchestrator in StateIdle.
func New(
	c Cart,
	s Session,
	intents payment.IntentCreator,
	confirmer payment.Confirmer,
	orders OrderPlacer,
	opts Options,
) (*Orchestrator, error) {
	if opts.ConfirmationDelay <= 0 {
		opts.ConfirmationDelay = DefaultConfirmationDelay
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = noop.NewMeterProvider()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	meter := opts.MeterProvider.Meter("github.com/xenking/roseila-storefront/internal/checkout")
	var (
		m   metrics
		err error
	)
	if m.completed, err = meter.Int64Counter("storefront.checkout.completed",
		metric.WithDescription("Checkouts that produced an order")); err != nil {
		return nil, errors.Wrap(err, "completed counter")
	}
	if m.failed, err = meter.Int64Counter("storefront.checkout.failed",
		metric.WithDescription("Checkouts that ended in a failure state")); err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	if m.orphaned, err = meter.Int64Counter("storefront.checkout.orphaned_payments",
		metric.WithDescription("Confirmed payments without a recorded order")); err != nil {
		return nil, errors.Wrap(err, "orphaned counter")
	}

	return &Orchestrator{
		cart:         c,
		session:      s,
		intents:      intents,
		confirmer:    confirmer,
		orders:       orders,
		events:       opts.Events,
		lg:           opts.Logger,
		metrics:      m,
		delay:        opts.ConfirmationDelay,
		afterFunc:    time.AfterFunc,
		onReturn:     opts.OnReturn,
		onTransition: opts.OnTransition,
	}, nil
}

// Status returns the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Reset returns a failed or completed checkout to Idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.inFlight || o.status.State == StateIdle {
		o.mu.Unlock()
		return
	}
	o.stopTimerLocked()
	from := o.status.State
	o.status = Status{State: StateIdle}
	o.mu.Unlock()
	o.notify(from, StateIdle)
}

// Submit runs the whole checkout. The returned error is one of
// *ValidationError, ErrEmptyCart, ErrAuthRequired, *PaymentIntentError,
// *PaymentDeclinedError, *PersistenceError or ErrInProgress.
func (o *Orchestrator) Submit(ctx context.Context, form Form) (*order.Order, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	lines := o.cart.Lines()
	if len(lines) == 0 {
		return nil, o.fail(ctx, ErrEmptyCart)
	}
	if err := form.Validate(); err != nil {
		return nil, o.fail(ctx, err)
	}
	payer, err := o.session.RequireAuthenticated()
	if err != nil {
		return nil, o.fail(ctx, ErrAuthRequired)
	}

	o.set(StateAwaitingPaymentIntent)
	items := make([]payment.CartItem, len(lines))
	for i, l := range lines {
		items[i] = payment.NewCartItem(l.ProductID, l.Name, l.UnitPrice, l.Quantity)
	}
	intent, err := o.intents.CreateIntent(ctx, payment.IntentRequest{
		Cart:  items,
		Email: form.address().Email,
	})
	if err != nil {
		return nil, o.fail(ctx, &PaymentIntentError{Err: err})
	}

	o.set(StateAwaitingPaymentConfirmation)
	conf, err := o.confirmer.Confirm(ctx, payment.ConfirmParams{
		ClientSecret:  intent.ClientSecret,
		PaymentMethod: form.PaymentMethod,
		Billing:       form.billing(),
	})
	if err != nil {
		return nil, o.fail(ctx, declined(err))
	}

	// Money has moved: finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	o.set(StatePersistingOrder)
	snapshot := make([]order.Line, len(lines))
	for i, l := range lines {
		snapshot[i] = order.Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	if _, err := o.session.RequireAuthenticated(); err != nil {
		return nil, o.orphan(ctx, payer, conf.IntentID, snapshot, errors.Wrap(ErrAuthRequired, "session ended during payment"))
	}
	placed, err := o.orders.Place(ctx, order.PlaceOrderRequest{
		UserID:          payer.UID,
		Lines:           snapshot,
		Address:         form.address(),
		PaymentIntentID: conf.IntentID,
	})
	if err != nil {
		return nil, o.orphan(ctx, payer, conf.IntentID, snapshot, err)
	}

	o.cart.RemovePurchased(lines)
	o.complete(ctx, placed)
	return placed, nil
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrInProgress
	}
	o.inFlight = true
	o.stopTimerLocked()
	from := o.status.State
	o.status = Status{State: StateValidating}
	o.mu.Unlock()

	if from != StateIdle {
		o.notify(from, StateIdle)
	}
	o.notify(StateIdle, StateValidating)
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

func (o *Orchestrator) set(next State) {
	o.mu.Lock()
	from := o.status.State
	o.status = Status{State: next}
	o.mu.Unlock()
	o.notify(from, next)
}

func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.mu.Lock()
	from := o.status.State
	o.status = Status{State: StateFailed, Err: err}
	o.mu.Unlock()

	o.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", from.String())))
	o.lg.Info("Checkout failed", zap.Stringer("stage", from), zap.Error(err))
	o.notify(from, StateFailed)
	return err
}

func (o *Orchestrator) complete(ctx context.Context, placed *order.Order) {
	o.mu.Lock()
	from := o.status.State
	o.status = Status{State: StateCompleted, Order: placed}
	o.timer = o.afterFunc(o.delay, func() { o.returnHome(placed) })
	o.mu.Unlock()

	o.metrics.completed.Add(ctx, 1)
	o.lg.Info("Checkout completed",
		zap.String("order_id", placed.ID),
		zap.String("payment_intent_id", placed.PaymentIntentID),
		zap.Stringer("total", placed.Total),
	)
	o.notify(from, StateCompleted)
}

// returnHome leaves the confirmation unless another checkout replaced it.
func (o *Orchestrator) returnHome(placed *order.Order) {
	o.mu.Lock()
	if o.status.State != StateCompleted || o.status.Order != placed {
		o.mu.Unlock()
		return
	}
	o.status = Status{State: StateIdle}
	o.timer = nil
	o.mu.Unlock()

	o.notify(StateCompleted, StateIdle)
	if o.onReturn != nil {
		o.onReturn()
	}
}

type orphanPayload struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	UserID          string          `json:"user_id"`
	Email           string          `json:"email"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Lines           []order.Line    `json:"lines"`
	Reason          string          `json:"reason"`
}

// orphan reports a confirmed payment that has no order.
func (o *Orchestrator) orphan(ctx context.Context, payer *user.Profile, intentID string, lines []order.Line, cause error) error {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	o.metrics.orphaned.Add(ctx, 1)
	o.lg.Error("Orphaned payment: charge confirmed but order not recorded",
		zap.String("payment_intent_id", intentID),
		zap.String("uid", payer.UID),
		zap.String("email", payer.Email),
		zap.Stringer("subtotal", subtotal),
		zap.Int("lines", len(lines)),
		zap.Error(cause),
	)
	if err := o.events.Publish(ctx, events.Event{
		Type: events.PaymentOrphaned,
		Key:  intentID,
		Payload: orphanPayload{
			PaymentIntentID: intentID,
			UserID:          payer.UID,
			Email:           payer.Email,
			Subtotal:        subtotal,
			Lines:           lines,
			Reason:          cause.Error(),
		},
	}); err != nil {
		o.lg.Error("Publish orphaned payment alert failed",
			zap.String("payment_intent_id", intentID),
			zap.Error(err),
		)
	}
	return o.fail(ctx, &PersistenceError{PaymentIntentID: intentID, Err: cause})
}

func (o *Orchestrator) notify(from, to State) {
	if o.onTransition != nil {
		o.onTransition(from, to)
	}
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func declined(err error) error {
	var d *payment.DeclinedError
	if errors.As(err, &d) {
		return &PaymentDeclinedError{Code: d.Code, Message: d.Message, Err: err}
	}
	return &PaymentDeclinedError{Message: err.Error(), Err: err}
}
