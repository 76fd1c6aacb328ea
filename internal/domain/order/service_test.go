package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/pricing"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID      map[string]*Order
	createErr error
	updateErr error
	summary   Summary
	creates   int
	lookups   int
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: map[string]*Order{}}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byID {
		if existing.PaymentIntentID == o.PaymentIntentID {
			return ErrDuplicatePayment
		}
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByPaymentIntent(_ context.Context, pi string) (*Order, error) {
	m.lookups++
	for _, o := range m.byID {
		if o.PaymentIntentID == pi {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) ListByUser(_ context.Context, uid string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == uid {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error) {
	out := make([]Order, 0, len(m.byID))
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func (m *mockOrderRepo) Summary(_ context.Context) (Summary, error) {
	return m.summary, nil
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestService(repo Repository, pub events.Publisher) *Service {
	svc := NewService(repo, pricing.DefaultShipping(), pub, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	n := 0
	svc.newID = func() string {
		n++
		return "order-" + string(rune('0'+n))
	}
	return svc
}

func validRequest(pi string) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID: "u1",
		Lines: []Line{
			{ProductID: "1", Name: "Velvet Rose Lipstick", UnitPrice: d("24.99"), Quantity: 2},
			{ProductID: "2", Name: "Blossom Glow Serum", UnitPrice: d("39.99"), Quantity: 1},
		},
		Address: ShippingAddress{
			Name:       "Ada",
			Email:      "ada@example.com",
			Address:    "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
		},
		PaymentIntentID: pi,
	}
}

// --- Tests ---

func TestPlace_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
		want   error
	}{
		{name: "missing user", mutate: func(r *PlaceOrderRequest) { r.UserID = " " }, want: ErrMissingUser},
		{name: "missing payment", mutate: func(r *PlaceOrderRequest) { r.PaymentIntentID = "" }, want: ErrMissingPayment},
		{name: "no lines", mutate: func(r *PlaceOrderRequest) { r.Lines = nil }, want: ErrEmptyLines},
		{name: "zero quantity", mutate: func(r *PlaceOrderRequest) { r.Lines[0].Quantity = 0 }, want: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newOrderRepo()
			svc := newTestService(repo, nil)
			req := validRequest("pi_1")
			tt.mutate(&req)

			_, err := svc.Place(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, repo.creates)
		})
	}
}

func TestPlace_ComputesTotalsAndPublishes(t *testing.T) {
	repo := newOrderRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	o, err := svc.Place(context.Background(), validRequest("pi_1"))
	require.NoError(t, err)

	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.True(t, d("89.97").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, o.Shipping.IsZero())
	assert.True(t, d("89.97").Equal(o.Total))
	assert.Equal(t, "pi_1", o.PaymentIntentID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.OrderPlaced, pub.events[0].Type)
	assert.Equal(t, "order-1", pub.events[0].Key)
}

func TestPlace_SmallOrderPaysShipping(t *testing.T) {
	svc := newTestService(newOrderRepo(), nil)
	req := validRequest("pi_1")
	req.Lines = []Line{{ProductID: "3", Name: "Mascara", UnitPrice: d("10.00"), Quantity: 1}}

	o, err := svc.Place(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d("5.99").Equal(o.Shipping))
	assert.True(t, d("15.99").Equal(o.Total))
}

func TestPlace_SamePaymentReturnsExistingOrder(t *testing.T) {
	repo := newOrderRepo()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	first, err := svc.Place(context.Background(), validRequest("pi_1"))
	require.NoError(t, err)

	second, err := svc.Place(context.Background(), validRequest("pi_1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.creates)
	assert.Len(t, repo.byID, 1)
	assert.Len(t, pub.events, 1)
}

func TestPlace_DuplicateFromAnotherProcess(t *testing.T) {
	repo := newOrderRepo()
	repo.byID["existing"] = &Order{ID: "existing", UserID: "u1", PaymentIntentID: "pi_9", Status: StatusProcessing}
	svc := newTestService(repo, nil)

	o, err := svc.Place(context.Background(), validRequest("pi_9"))
	require.NoError(t, err)
	assert.Equal(t, "existing", o.ID)
	assert.Len(t, repo.byID, 1)
}

func TestPlace_RepositoryError(t *testing.T) {
	repo := newOrderRepo()
	repo.createErr = errors.New("connection refused")
	svc := newTestService(repo, nil)

	_, err := svc.Place(context.Background(), validRequest("pi_1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestPlace_PublishFailureDoesNotFailOrder(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(newOrderRepo(), pub)

	o, err := svc.Place(context.Background(), validRequest("pi_1"))
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{name: "processing to shipped", from: StatusProcessing, to: StatusShipped},
		{name: "processing to delivered", from: StatusProcessing, to: StatusDelivered},
		{name: "shipped to delivered", from: StatusShipped, to: StatusDelivered},
		{name: "shipped to cancelled", from: StatusShipped, to: StatusCancelled},
		{name: "shipped back to processing", from: StatusShipped, to: StatusProcessing, wantErr: true},
		{name: "delivered is terminal", from: StatusDelivered, to: StatusCancelled, wantErr: true},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusShipped, wantErr: true},
		{name: "same status", from: StatusProcessing, to: StatusProcessing, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newOrderRepo()
			repo.byID["o1"] = &Order{ID: "o1", Status: tt.from}
			pub := &recordingPublisher{}
			svc := newTestService(repo, pub)

			o, err := svc.UpdateStatus(context.Background(), "o1", tt.to)
			if tt.wantErr {
				var trErr *InvalidTransitionError
				require.ErrorAs(t, err, &trErr)
				assert.Equal(t, tt.from, trErr.From)
				assert.Equal(t, tt.to, trErr.To)
				assert.Empty(t, pub.events)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.Status)
			assert.Equal(t, tt.to, repo.byID["o1"].Status)
			require.Len(t, pub.events, 1)
			assert.Equal(t, events.OrderStatusChanged, pub.events[0].Type)
		})
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestService(newOrderRepo(), nil)
	_, err := svc.UpdateStatus(context.Background(), "missing", StatusShipped)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_Conflict(t *testing.T) {
	repo := newOrderRepo()
	repo.byID["o1"] = &Order{ID: "o1", Status: StatusProcessing}
	repo.updateErr = ErrStatusConflict
	svc := newTestService(repo, nil)

	_, err := svc.UpdateStatus(context.Background(), "o1", StatusShipped)
	require.ErrorIs(t, err, ErrStatusConflict)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, st)

	_, err = ParseStatus("lost")
	require.Error(t, err)
}

func TestListForUser_RequiresUser(t *testing.T) {
	svc := newTestService(newOrderRepo(), nil)
	_, err := svc.ListForUser(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingUser)
}
