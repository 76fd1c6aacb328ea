// Package admin is the back-office: catalog maintenance, order fulfilment,
// customer management and dashboard statistics. Every operation runs on a
// Console bound to an admin profile.
package admin

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/session"
)

const (
	// DefaultProductImage is used when a new product has no image.
	DefaultProductImage = "https://placehold.co/400x400/png?text=Product&bg=ffebee&text_color=e87a90"
	defaultRating       = 4.5
)

// Gate authorizes admin access for the current session.
type Gate interface {
	RequireAdmin() (*user.Profile, error)
}

// Orders is the order service surface the back-office uses.
type Orders interface {
	List(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
	Summary(ctx context.Context) (order.Summary, error)
}

// Users is the profile store surface the back-office uses.
type Users interface {
	GetProfile(ctx context.Context, uid string) (*user.Profile, error)
	ListProfiles(ctx context.Context) ([]user.Profile, error)
	CountProfiles(ctx context.Context) (int64, error)
	SetRole(ctx context.Context, uid string, role user.Role) error
}

// Stats are the dashboard figures.
type Stats struct {
	TotalSales decimal.Decimal
	Orders     int64
	Customers  int64
	// ConversionRate is orders per registered user, in percent.
	ConversionRate float64
}

// Service builds consoles.
type Service struct {
	products product.AdminRepository
	orders   Orders
	users    Users
	lg       *zap.Logger
	newID    func() string
}

// NewService creates a Service.
func NewService(products product.AdminRepository, orders Orders, users Users, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		products: products,
		orders:   orders,
		users:    users,
		lg:       lg,
		newID:    uuid.NewString,
	}
}

// Console is the back-office of one admin.
type Console struct {
	svc   *Service
	actor *user.Profile
	lg    *zap.Logger
}

// Open returns a Console when the gate admits an admin. Otherwise the gate's
// error is returned unchanged.
//
// The gate only knows the role captured at sign-in, so the stored profile is
// read again: a revoked or deleted admin gets session.ErrForbidden.
func (s *Service) Open(ctx context.Context, g Gate) (*Console, error) {
	p, err := g.RequireAdmin()
	if err != nil {
		return nil, err
	}
	stored, err := s.users.GetProfile(ctx, p.UID)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return nil, session.ErrForbidden
	case err != nil:
		return nil, errors.Wrap(err, "get admin profile")
	case !stored.IsAdmin():
		s.lg.Info("Admin role revoked since sign-in", zap.String("uid", p.UID))
		return nil, session.ErrForbidden
	}
	return &Console{svc: s, actor: stored, lg: s.lg.With(zap.String("admin_uid", stored.UID))}, nil
}

// Actor returns the admin profile the console acts for.
func (c *Console) Actor() *user.Profile { return c.actor }

// Dashboard aggregates sales, order and customer figures.
func (c *Console) Dashboard(ctx context.Context) (Stats, error) {
	var (
		summary order.Summary
		users   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = c.svc.orders.Summary(gctx)
		if err != nil {
			return errors.Wrap(err, "order summary")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		users, err = c.svc.users.CountProfiles(gctx)
		if err != nil {
			return errors.Wrap(err, "count users")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalSales: summary.Sales,
		Orders:     summary.Orders,
		Customers:  users,
	}
	if users > 0 && summary.Orders > 0 {
		stats.ConversionRate = float64(summary.Orders) / float64(users) * 100
	}
	return stats, nil
}

// Products lists the catalog.
func (c *Console) Products(ctx context.Context) ([]product.Product, error) {
	return c.svc.products.List(ctx)
}

// CreateProduct adds a product. Missing id, image and rating get defaults.
func (c *Console) CreateProduct(ctx context.Context, p product.Product) (*product.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.ID == "" {
		p.ID = c.svc.newID()
	}
	if p.Image == "" {
		p.Image = DefaultProductImage
	}
	if p.Rating == 0 {
		p.Rating = defaultRating
	}
	p.Price = p.Price.Round(2)
	if err := p.Validate(); err != nil {
		return nil, &InvalidProductError{Err: err}
	}
	if err := c.svc.products.Create(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	c.lg.Info("Product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return &p, nil
}

// UpdateProduct replaces an existing product.
func (c *Console) UpdateProduct(ctx context.Context, p product.Product) (*product.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Price = p.Price.Round(2)
	if err := p.Validate(); err != nil {
		return nil, &InvalidProductError{Err: err}
	}
	if err := c.svc.products.Update(ctx, &p); err != nil {
		return nil, errors.Wrapf(err, "update product %q", p.ID)
	}
	c.lg.Info("Product updated", zap.String("product_id", p.ID))
	return &p, nil
}

// DeleteProduct removes a product.
func (c *Console) DeleteProduct(ctx context.Context, id string) error {
	if err := c.svc.products.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	c.lg.Info("Product deleted", zap.String("product_id", id))
	return nil
}

// Orders lists every order, newest first.
func (c *Console) Orders(ctx context.Context) ([]order.Order, error) {
	return c.svc.orders.List(ctx)
}

// SetOrderStatus moves an order to status.
func (c *Console) SetOrderStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	o, err := c.svc.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	c.lg.Info("Order status set", zap.String("order_id", id), zap.String("status", string(status)))
	return o, nil
}

// Customers lists every profile, newest first.
func (c *Console) Customers(ctx context.Context) ([]user.Profile, error) {
	return c.svc.users.ListProfiles(ctx)
}

// SetRole changes the role of a user. An admin cannot demote themselves.
func (c *Console) SetRole(ctx context.Context, uid string, role user.Role) error {
	if !role.Valid() {
		return errors.Errorf("unknown role %q", role)
	}
	if uid == c.actor.UID && role != user.RoleAdmin {
		return ErrSelfDemotion
	}
	if err := c.svc.users.SetRole(ctx, uid, role); err != nil {
		return err
	}
	c.lg.Info("Role set", zap.String("uid", uid), zap.String("role", string(role)))
	return nil
}

// ErrSelfDemotion stops an admin from removing their own access.
var ErrSelfDemotion = errors.New("cannot remove your own admin role")

// InvalidProductError wraps a product validation failure.
type InvalidProductError struct {
	Err error
}

func (e *InvalidProductError) Error() string { return e.Err.Error() }

func (e *InvalidProductError) Unwrap() error { return e.Err }
