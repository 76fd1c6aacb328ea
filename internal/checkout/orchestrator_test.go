package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/roseila-storefront/internal/cart"
	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/payment"
	"github.com/xenking/roseila-storefront/internal/pricing"
)

// --- Mock implementations ---

type mockCart struct {
	mu      sync.Mutex
	lines   []cart.Line
	settled int
}

func (m *mockCart) Lines() []cart.Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cart.Line(nil), m.lines...)
}

func (m *mockCart) RemovePurchased(purchased []cart.Line) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bought := make(map[string]bool, len(purchased))
	for _, l := range purchased {
		bought[l.ProductID] = true
	}
	kept := m.lines[:0]
	for _, l := range m.lines {
		if !bought[l.ProductID] {
			kept = append(kept, l)
		}
	}
	m.lines = kept
	m.settled++
}

type mockSession struct {
	mu      sync.Mutex
	profile *user.Profile
	// expireAfter drops the session after this many successful checks. Zero
	// keeps it alive.
	expireAfter int
	calls       int
}

func (m *mockSession) RequireAuthenticated() (*user.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.profile == nil || (m.expireAfter > 0 && m.calls > m.expireAfter) {
		return nil, errors.New("auth required")
	}
	return m.profile, nil
}

type mockIntents struct {
	mu    sync.Mutex
	calls []payment.IntentRequest
	err   error
	// block, if set, holds CreateIntent until closed.
	block   chan struct{}
	entered chan struct{}
}

func (m *mockIntents) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	block, entered := m.block, m.entered
	m.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	if m.err != nil {
		return nil, m.err
	}
	return &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret_abc", Amount: 8997, Currency: "usd"}, nil
}

func (m *mockIntents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockConfirmer struct {
	calls []payment.ConfirmParams
	err   error
	// during runs while the charge is in flight.
	during func()
}

func (m *mockConfirmer) Confirm(_ context.Context, p payment.ConfirmParams) (*payment.Confirmation, error) {
	m.calls = append(m.calls, p)
	if m.during != nil {
		m.during()
	}
	if m.err != nil {
		return nil, m.err
	}
	id, err := payment.IntentIDFromSecret(p.ClientSecret)
	if err != nil {
		return nil, err
	}
	return &payment.Confirmation{IntentID: id, Status: "succeeded"}, nil
}

type mockPlacer struct {
	placed []order.PlaceOrderRequest
	err    error
}

func (m *mockPlacer) Place(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	m.placed = append(m.placed, req)
	return &order.Order{
		ID:              "order-1",
		UserID:          req.UserID,
		Lines:           req.Lines,
		Total:           decimal.RequireFromString("89.97"),
		Status:          order.StatusProcessing,
		PaymentIntentID: req.PaymentIntentID,
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// --- Helpers ---

type fixture struct {
	cart      *mockCart
	session   *mockSession
	intents   *mockIntents
	confirmer *mockConfirmer
	placer    *mockPlacer
	events    *recordingPublisher
	logs      *observer.ObservedLogs
	orch      *Orchestrator

	mu          sync.Mutex
	transitions []State
	pending     func()
	delay       time.Duration
	returned    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		cart: &mockCart{lines: []cart.Line{
			{ProductID: "1", Name: "Velvet Rose Lipstick", UnitPrice: decimal.RequireFromString("24.99"), Quantity: 2},
			{ProductID: "2", Name: "Blossom Glow Serum", UnitPrice: decimal.RequireFromString("39.99"), Quantity: 1},
		}},
		session:   &mockSession{profile: &user.Profile{UID: "u1", Email: "ada@example.com"}},
		intents:   &mockIntents{},
		confirmer: &mockConfirmer{},
		placer:    &mockPlacer{},
		events:    &recordingPublisher{},
		logs:      logs,
	}
	orch, err := New(f.cart, f.session, f.intents, f.confirmer, f.placer, Options{
		Events: f.events,
		Logger: zap.New(core),
		OnReturn: func() {
			f.mu.Lock()
			f.returned++
			f.mu.Unlock()
		},
		OnTransition: func(_, to State) {
			f.mu.Lock()
			f.transitions = append(f.transitions, to)
			f.mu.Unlock()
		},
	})
	require.NoError(t, err)
	orch.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		f.mu.Lock()
		f.pending = fn
		f.delay = d
		f.mu.Unlock()
		return time.NewTimer(time.Hour)
	}
	f.orch = orch
	return f
}

func (f *fixture) fire() {
	f.mu.Lock()
	fn := f.pending
	f.pending = nil
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func validForm() Form {
	return Form{
		Name:          "Ada Lovelace",
		Email:         "ada@example.com",
		Address:       "1 Analytical Way",
		City:          "London",
		PostalCode:    "12345",
		PaymentMethod: payment.SandboxCardOK,
	}
}

// --- Tests ---

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)

	placed, err := f.orch.Submit(context.Background(), validForm())
	require.NoError(t, err)
	require.NotNil(t, placed)

	assert.Equal(t, order.StatusProcessing, placed.Status)
	assert.Equal(t, "pi_1", placed.PaymentIntentID)
	assert.Equal(t, 1, f.cart.settled)
	assert.Empty(t, f.cart.Lines())

	require.Len(t, f.placer.placed, 1)
	req := f.placer.placed[0]
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "pi_1", req.PaymentIntentID)
	require.Len(t, req.Lines, 2)
	assert.Equal(t, 2, req.Lines[0].Quantity)
	assert.Equal(t, "12345", req.Address.PostalCode)

	require.Len(t, f.intents.calls, 1)
	assert.Equal(t, "ada@example.com", f.intents.calls[0].Email)
	assert.Len(t, f.intents.calls[0].Cart, 2)
	require.Len(t, f.confirmer.calls, 1)
	assert.Equal(t, "pi_1_secret_abc", f.confirmer.calls[0].ClientSecret)
	assert.Equal(t, "Ada Lovelace", f.confirmer.calls[0].Billing.Name)

	st := f.orch.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Same(t, placed, st.Order)

	assert.Equal(t, []State{
		StateValidating,
		StateAwaitingPaymentIntent,
		StateAwaitingPaymentConfirmation,
		StatePersistingOrder,
		StateCompleted,
	}, f.transitions)

	assert.Equal(t, DefaultConfirmationDelay, f.delay)
	f.fire()
	assert.Equal(t, StateIdle, f.orch.Status().State)
	assert.Equal(t, 1, f.returned)
}

func TestSubmit_KeepsLinesAddedDuringPayment(t *testing.T) {
	lipstick := product.Product{ID: "1", Name: "Velvet Rose Lipstick", Price: decimal.RequireFromString("24.99"), Category: "lipstick"}
	mascara := product.Product{ID: "7", Name: "Lash Mascara", Price: decimal.RequireFromString("10.00"), Category: "mascara"}

	c := cart.NewManager(pricing.DefaultShipping(), nil, nil)
	require.NoError(t, c.AddToCart(lipstick, 2))

	confirmer := &mockConfirmer{during: func() {
		// Another tab keeps shopping while the card is being charged.
		_ = c.AddToCart(lipstick, 1)
		_ = c.AddToCart(mascara, 1)
	}}
	placer := &mockPlacer{}
	orch, err := New(c, &mockSession{profile: &user.Profile{UID: "u1"}}, &mockIntents{}, confirmer, placer, Options{})
	require.NoError(t, err)
	orch.afterFunc = func(time.Duration, func()) *time.Timer { return time.NewTimer(time.Hour) }

	_, err = orch.Submit(context.Background(), validForm())
	require.NoError(t, err)

	require.Len(t, placer.placed, 1)
	require.Len(t, placer.placed[0].Lines, 1)
	assert.Equal(t, 2, placer.placed[0].Lines[0].Quantity)

	left := c.Lines()
	require.Len(t, left, 2)
	assert.Equal(t, "1", left[0].ProductID)
	assert.Equal(t, 1, left[0].Quantity)
	assert.Equal(t, "7", left[1].ProductID)
	assert.Equal(t, 1, left[1].Quantity)
}

func TestSubmit_EmptyCart(t *testing.T) {
	f := newFixture(t)
	f.cart.lines = nil

	_, err := f.orch.Submit(context.Background(), validForm())
	require.ErrorIs(t, err, ErrEmptyCart)

	assert.Zero(t, f.intents.count())
	assert.NotContains(t, f.transitions, StateAwaitingPaymentIntent)
	assert.Equal(t, StateFailed, f.orch.Status().State)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Form)
		wantField string
	}{
		{name: "missing name", mutate: func(f *Form) { f.Name = " " }, wantField: "name"},
		{name: "missing email", mutate: func(f *Form) { f.Email = "" }, wantField: "email"},
		{name: "bad email", mutate: func(f *Form) { f.Email = "ada@example" }, wantField: "email"},
		{name: "missing address", mutate: func(f *Form) { f.Address = "" }, wantField: "address"},
		{name: "missing city", mutate: func(f *Form) { f.City = "" }, wantField: "city"},
		{name: "bad zip", mutate: func(f *Form) { f.PostalCode = "1234" }, wantField: "zipCode"},
		{name: "short zip extension", mutate: func(f *Form) { f.PostalCode = "12345-678" }, wantField: "zipCode"},
		{name: "missing payment method", mutate: func(f *Form) { f.PaymentMethod = "" }, wantField: "paymentMethod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			form := validForm()
			tt.mutate(&form)

			_, err := f.orch.Submit(context.Background(), form)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.Zero(t, f.intents.count())
			assert.Len(t, f.cart.Lines(), 2)
		})
	}
}

func TestForm_ZipPlusFour(t *testing.T) {
	form := validForm()
	form.PostalCode = "12345-6789"
	assert.NoError(t, form.Validate())
}

func TestSubmit_Anonymous(t *testing.T) {
	f := newFixture(t)
	f.session.profile = nil

	_, err := f.orch.Submit(context.Background(), validForm())
	require.ErrorIs(t, err, ErrAuthRequired)
	assert.Zero(t, f.intents.count())
	assert.Empty(t, f.confirmer.calls)
}

func TestSubmit_IntentError(t *testing.T) {
	f := newFixture(t)
	f.intents.err = errors.New("connection refused")

	_, err := f.orch.Submit(context.Background(), validForm())
	var intentErr *PaymentIntentError
	require.ErrorAs(t, err, &intentErr)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Empty(t, f.confirmer.calls)
	assert.Len(t, f.cart.Lines(), 2)
	assert.Equal(t, StateFailed, f.orch.Status().State)
}

func TestSubmit_Declined(t *testing.T) {
	f := newFixture(t)
	f.confirmer.err = &payment.DeclinedError{Code: "card_declined", Message: "Your card was declined."}

	_, err := f.orch.Submit(context.Background(), validForm())
	var declinedErr *PaymentDeclinedError
	require.ErrorAs(t, err, &declinedErr)
	assert.Equal(t, "card_declined", declinedErr.Code)
	assert.Equal(t, "Your card was declined.", err.Error())

	assert.Empty(t, f.placer.placed)
	assert.Len(t, f.cart.Lines(), 2)
	assert.Zero(t, f.cart.settled)

	st := f.orch.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Same(t, err, st.Err)

	// The payer can resubmit after a decline.
	f.confirmer.err = nil
	_, err = f.orch.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, f.orch.Status().State)
}

func TestSubmit_ConfirmTransportError(t *testing.T) {
	f := newFixture(t)
	f.confirmer.err = errors.New("timeout")

	_, err := f.orch.Submit(context.Background(), validForm())
	var declinedErr *PaymentDeclinedError
	require.ErrorAs(t, err, &declinedErr)
	assert.Empty(t, declinedErr.Code)
	assert.Equal(t, "timeout", declinedErr.Message)
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.placer.err = errors.New("insert failed")

	_, err := f.orch.Submit(context.Background(), validForm())
	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "pi_1", persistErr.PaymentIntentID)

	assert.Len(t, f.cart.Lines(), 2)
	assert.Equal(t, StateFailed, f.orch.Status().State)

	require.Len(t, f.events.events, 1)
	e := f.events.events[0]
	assert.Equal(t, events.PaymentOrphaned, e.Type)
	assert.Equal(t, "pi_1", e.Key)
	payload, ok := e.Payload.(orphanPayload)
	require.True(t, ok)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "89.97", payload.Subtotal.StringFixed(2))

	orphaned := f.logs.FilterMessageSnippet("Orphaned payment").All()
	require.Len(t, orphaned, 1)
	assert.Equal(t, zap.ErrorLevel, orphaned[0].Level)
	assert.Equal(t, "pi_1", orphaned[0].ContextMap()["payment_intent_id"])
}

func TestSubmit_SessionEndsDuringPayment(t *testing.T) {
	f := newFixture(t)
	f.session.expireAfter = 1

	_, err := f.orch.Submit(context.Background(), validForm())
	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, f.placer.placed)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.PaymentOrphaned, f.events.events[0].Type)
}

func TestSubmit_PersistsAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.orch.confirmer = confirmThen(f.confirmer, cancel)

	placed, err := f.orch.Submit(ctx, validForm())
	require.NoError(t, err)
	assert.Equal(t, "pi_1", placed.PaymentIntentID)
}

type confirmFunc func(ctx context.Context, p payment.ConfirmParams) (*payment.Confirmation, error)

func (f confirmFunc) Confirm(ctx context.Context, p payment.ConfirmParams) (*payment.Confirmation, error) {
	return f(ctx, p)
}

func confirmThen(c payment.Confirmer, after func()) payment.Confirmer {
	return confirmFunc(func(ctx context.Context, p payment.ConfirmParams) (*payment.Confirmation, error) {
		conf, err := c.Confirm(ctx, p)
		after()
		return conf, err
	})
}

func TestSubmit_InProgress(t *testing.T) {
	f := newFixture(t)
	f.intents.block = make(chan struct{})
	f.intents.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Submit(context.Background(), validForm())
		done <- err
	}()
	<-f.intents.entered

	_, err := f.orch.Submit(context.Background(), validForm())
	require.ErrorIs(t, err, ErrInProgress)
	assert.Equal(t, StateAwaitingPaymentIntent, f.orch.Status().State)

	close(f.intents.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.intents.count())
	assert.Len(t, f.placer.placed, 1)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.cart.lines = nil

	_, err := f.orch.Submit(context.Background(), validForm())
	require.Error(t, err)
	require.Equal(t, StateFailed, f.orch.Status().State)

	f.orch.Reset()
	st := f.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.NoError(t, st.Err)
}

func TestReturnTimerIgnoredAfterNewSubmit(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(context.Background(), validForm())
	require.NoError(t, err)
	stale := f.pending

	f.cart.lines = nil
	_, err = f.orch.Submit(context.Background(), validForm())
	require.ErrorIs(t, err, ErrEmptyCart)

	stale()
	assert.Equal(t, StateFailed, f.orch.Status().State)
	assert.Zero(t, f.returned)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_payment_confirmation", StateAwaitingPaymentConfirmation.String())
	assert.Equal(t, "invalid", State(99).String())
}
