package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/roseila-storefront/internal/admin"
	"github.com/xenking/roseila-storefront/internal/cart"
	"github.com/xenking/roseila-storefront/internal/checkout"
	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/session"
	"github.com/xenking/roseila-storefront/internal/storefront"
	"github.com/xenking/roseila-storefront/internal/view"
	"github.com/xenking/roseila-storefront/pkg/httpmiddleware"
)

type profileDTO struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        user.Role `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProfile(p *user.Profile) *profileDTO {
	if p == nil {
		return nil
	}
	return &profileDTO{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		CreatedAt:   p.CreatedAt,
	}
}

type sessionDTO struct {
	State string      `json:"state"`
	User  *profileDTO `json:"user,omitempty"`
	// Token restores the session in a new client.
	Token string `json:"token,omitempty"`
}

func toSession(s session.Snapshot) sessionDTO {
	return sessionDTO{State: s.State.String(), User: toProfile(s.Profile), Token: s.Token}
}

type cartDTO struct {
	Lines     []cart.Line     `json:"lines"`
	Wishlist  []string        `json:"wishlist"`
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
}

func toCart(m *cart.Manager) cartDTO {
	lines := m.Lines()
	if lines == nil {
		lines = []cart.Line{}
	}
	wishlist := m.Wishlist()
	if wishlist == nil {
		wishlist = []string{}
	}
	return cartDTO{
		Lines:     lines,
		Wishlist:  wishlist,
		ItemCount: m.ItemCount(),
		Subtotal:  m.Subtotal(),
		Shipping:  m.ShippingFee(),
		Total:     m.Total(),
	}
}

type checkoutDTO struct {
	State string                  `json:"state"`
	Error *httpmiddleware.Problem `json:"error,omitempty"`
	Order *orderDTO               `json:"order,omitempty"`
}

func toCheckout(s checkout.Status) checkoutDTO {
	dto := checkoutDTO{State: s.State.String()}
	if s.Err != nil {
		p := problemFor(s.Err)
		dto.Error = &p
	}
	if s.Order != nil {
		o := toOrder(*s.Order)
		dto.Order = &o
	}
	return dto
}

type clientDTO struct {
	ID       string      `json:"id"`
	Session  sessionDTO  `json:"session"`
	View     view.Ref    `json:"view"`
	Cart     cartDTO     `json:"cart"`
	Checkout checkoutDTO `json:"checkout"`
	// CatalogDegraded is set when the catalog failed to load.
	CatalogDegraded bool `json:"catalogDegraded,omitempty"`
}

func toClient(c *storefront.Client) clientDTO {
	return clientDTO{
		ID:              c.ID(),
		Session:         toSession(c.Session().Snapshot()),
		View:            view.ToRef(c.Router().Current()),
		Cart:            toCart(c.Cart()),
		Checkout:        toCheckout(c.Checkout().Status()),
		CatalogDegraded: c.Catalog().Degraded(),
	}
}

type addressDTO struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"zipCode"`
}

type orderDTO struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Lines           []order.Line    `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	Status          order.Status    `json:"status"`
	ShippingAddress addressDTO      `json:"shippingAddress"`
	PaymentIntentID string          `json:"paymentIntentId"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toOrder(o order.Order) orderDTO {
	return orderDTO{
		ID:       o.ID,
		UserID:   o.UserID,
		Lines:    o.Lines,
		Subtotal: o.Subtotal,
		Shipping: o.Shipping,
		Total:    o.Total,
		Status:   o.Status,
		ShippingAddress: addressDTO{
			Name:       o.Address.Name,
			Email:      o.Address.Email,
			Address:    o.Address.Address,
			City:       o.Address.City,
			PostalCode: o.Address.PostalCode,
		},
		PaymentIntentID: o.PaymentIntentID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrders(orders []order.Order) []orderDTO {
	out := make([]orderDTO, len(orders))
	for i, o := range orders {
		out[i] = toOrder(o)
	}
	return out
}

type statsDTO struct {
	TotalSales     decimal.Decimal `json:"totalSales"`
	Orders         int64           `json:"orders"`
	Customers      int64           `json:"customers"`
	ConversionRate float64         `json:"conversionRate"`
}

func toStats(s admin.Stats) statsDTO {
	return statsDTO{
		TotalSales:     s.TotalSales,
		Orders:         s.Orders,
		Customers:      s.Customers,
		ConversionRate: s.ConversionRate,
	}
}
