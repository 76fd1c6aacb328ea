// Package storefront assembles the per-client storefront: catalog, cart,
// session, checkout and current view.
package storefront

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/cart"
	"github.com/xenking/roseila-storefront/internal/catalog"
	"github.com/xenking/roseila-storefront/internal/checkout"
	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/identity"
	"github.com/xenking/roseila-storefront/internal/payment"
	"github.com/xenking/roseila-storefront/internal/pricing"
	"github.com/xenking/roseila-storefront/internal/session"
	"github.com/xenking/roseila-storefront/internal/view"
)

// Orders is the order service as seen by a client.
type Orders interface {
	Place(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
}

// Deps are the shared collaborators every client is built from.
type Deps struct {
	Products  product.Repository
	Identity  identity.Provider
	Profiles  user.Repository
	State     user.StateRepository
	Intents   payment.IntentCreator
	Confirmer payment.Confirmer
	Orders    Orders
	Shipping  pricing.ShippingRule
	Events    events.Publisher
	Meter     metric.MeterProvider
	Logger    *zap.Logger

	ConfirmationDelay time.Duration
}

// Client is one storefront session.
type Client struct {
	id       string
	catalog  *catalog.Store
	cart     *cart.Manager
	session  *session.Manager
	checkout *checkout.Orchestrator
	router   *view.Router
	orders   Orders
	lg       *zap.Logger

	lastSeen    atomic.Int64
	unsubscribe func()
}

// NewClient loads the catalog and wires the client components. A catalog
// that fails to load leaves the client usable with an empty catalog.
func NewClient(ctx context.Context, id string, deps Deps) (*Client, error) {
	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	lg = lg.With(zap.String("client_id", id))

	c := &Client{
		id:      id,
		catalog: catalog.Load(ctx, deps.Products, lg),
		cart:    cart.NewManager(deps.Shipping, deps.State, lg),
		session: session.NewManager(deps.Identity, deps.Profiles, lg),
		orders:  deps.Orders,
		lg:      lg,
	}
	c.router = view.NewRouter(c.session)

	orch, err := checkout.New(c.cart, c.session, deps.Intents, deps.Confirmer, deps.Orders, checkout.Options{
		ConfirmationDelay: deps.ConfirmationDelay,
		Events:            deps.Events,
		MeterProvider:     deps.Meter,
		Logger:            lg,
		OnReturn:          func() { c.router.Navigate(view.Home{}) },
	})
	if err != nil {
		return nil, errors.Wrap(err, "create checkout")
	}
	c.checkout = orch
	c.unsubscribe = c.session.Subscribe(c.onSession)
	c.lastSeen.Store(time.Now().UnixNano())
	return c, nil
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Catalog returns the client catalog.
func (c *Client) Catalog() *catalog.Store { return c.catalog }

// Cart returns the cart and wishlist manager.
func (c *Client) Cart() *cart.Manager { return c.cart }

// Session returns the session manager.
func (c *Client) Session() *session.Manager { return c.session }

// Checkout returns the checkout orchestrator.
func (c *Client) Checkout() *checkout.Orchestrator { return c.checkout }

// Router returns the view router.
func (c *Client) Router() *view.Router { return c.router }

// Navigate moves to target subject to access rules.
func (c *Client) Navigate(target view.View) view.View {
	return c.router.Navigate(target)
}

// AddToCart adds qty of the catalog product id.
func (c *Client) AddToCart(productID string, qty int) error {
	p, err := c.catalog.Get(productID)
	if err != nil {
		return err
	}
	return c.cart.AddToCart(p, qty)
}

// AddToWishlist adds the catalog product id.
func (c *Client) AddToWishlist(productID string) error {
	p, err := c.catalog.Get(productID)
	if err != nil {
		return err
	}
	c.cart.AddToWishlist(p)
	return nil
}

// SubmitCheckout runs checkout and moves the view to where the outcome
// leads: the confirmation page, the cart when it is empty, or sign-in.
func (c *Client) SubmitCheckout(ctx context.Context, form checkout.Form) (*order.Order, error) {
	placed, err := c.checkout.Submit(ctx, form)
	switch {
	case err == nil:
		c.router.Navigate(view.OrderConfirmation{OrderID: placed.ID})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.router.Navigate(view.Cart{})
	case errors.Is(err, checkout.ErrAuthRequired):
		var persistErr *checkout.PersistenceError
		if !errors.As(err, &persistErr) {
			c.router.Navigate(view.SignIn{Then: view.Checkout{}})
		}
	}
	return placed, err
}

// OrderHistory lists the signed-in user's orders, newest first.
func (c *Client) OrderHistory(ctx context.Context) ([]order.Order, error) {
	p, err := c.session.RequireAuthenticated()
	if err != nil {
		return nil, err
	}
	return c.orders.ListForUser(ctx, p.UID)
}

// Close detaches the client from the session and waits for pending mirror
// writes.
func (c *Client) Close() {
	c.unsubscribe()
	c.cart.Wait()
}

// onSession keeps the cart owner and current view in step with the session.
func (c *Client) onSession(ctx context.Context, prev, next session.Snapshot) {
	switch next.State {
	case session.StateAuthenticated:
		uid := next.UID()
		if owner := c.cart.Owner(); owner != "" && owner != uid {
			c.cart.Detach()
		}
		c.cart.Adopt(ctx, uid)
		c.lg.Debug("Cart adopted", zap.String("uid", uid))
	case session.StateAnonymous:
		if prev.State == session.StateAuthenticated {
			c.cart.Detach()
		}
	}
	c.router.Refresh()
}

func (c *Client) idleSince() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}
