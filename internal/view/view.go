// Package view models the storefront pages as a closed set of types and
// routes between them.
package view

import (
	"github.com/go-faster/errors"
)

// Access is the minimum session level a view requires.
type Access int

const (
	Public Access = iota
	SignedIn
	AdminOnly
)

// View is one page. The set of implementations is closed.
type View interface {
	// Name is the stable wire name of the view.
	Name() string
	access() Access
}

type (
	Home          struct{}
	Products      struct{ Category, Query string }
	ProductDetail struct{ ProductID string }
	Cart          struct{}
	Checkout      struct{}
	// OrderConfirmation shows a freshly placed order.
	OrderConfirmation struct{ OrderID string }
	OrderHistory      struct{}
	// SignIn continues to Then after a successful sign-in. Then is never a
	// SignIn or SignUp.
	SignIn struct{ Then View }
	SignUp struct{ Then View }
	// Admin is the back-office; Section is one of the Admin* constants.
	Admin   struct{ Section string }
	About   struct{}
	Contact struct{}
)

// Admin sections.
const (
	AdminDashboard = "dashboard"
	AdminProducts  = "products"
	AdminOrders    = "orders"
	AdminCustomers = "customers"
)

func (Home) Name() string              { return "home" }
func (Products) Name() string          { return "products" }
func (ProductDetail) Name() string     { return "productDetail" }
func (Cart) Name() string              { return "cart" }
func (Checkout) Name() string          { return "checkout" }
func (OrderConfirmation) Name() string { return "orderConfirmation" }
func (OrderHistory) Name() string      { return "orders" }
func (SignIn) Name() string            { return "signIn" }
func (SignUp) Name() string            { return "signUp" }
func (Admin) Name() string             { return "admin" }
func (About) Name() string             { return "about" }
func (Contact) Name() string           { return "contact" }

func (Home) access() Access              { return Public }
func (Products) access() Access          { return Public }
func (ProductDetail) access() Access     { return Public }
func (Cart) access() Access              { return Public }
func (Checkout) access() Access          { return SignedIn }
func (OrderConfirmation) access() Access { return SignedIn }
func (OrderHistory) access() Access      { return SignedIn }
func (SignIn) access() Access            { return Public }
func (SignUp) access() Access            { return Public }
func (Admin) access() Access             { return AdminOnly }
func (About) access() Access             { return Public }
func (Contact) access() Access           { return Public }

// RequiredAccess returns the session level v needs.
func RequiredAccess(v View) Access {
	return v.access()
}

// ErrUnknownView is returned by FromRef for unrecognized names.
var ErrUnknownView = errors.New("unknown view")

// Ref is the serialized form of a View.
type Ref struct {
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Query     string `json:"query,omitempty"`
	ProductID string `json:"productId,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	Section   string `json:"section,omitempty"`
	Then      *Ref   `json:"then,omitempty"`
}

// ToRef serializes v.
func ToRef(v View) Ref {
	r := Ref{Name: v.Name()}
	switch v := v.(type) {
	case Products:
		r.Category, r.Query = v.Category, v.Query
	case ProductDetail:
		r.ProductID = v.ProductID
	case OrderConfirmation:
		r.OrderID = v.OrderID
	case Admin:
		r.Section = v.Section
	case SignIn:
		r.Then = thenRef(v.Then)
	case SignUp:
		r.Then = thenRef(v.Then)
	}
	return r
}

func thenRef(v View) *Ref {
	if v == nil {
		return nil
	}
	r := ToRef(v)
	return &r
}

// FromRef parses a serialized view.
func FromRef(r Ref) (View, error) {
	switch r.Name {
	case "", "home":
		return Home{}, nil
	case "products":
		return Products{Category: r.Category, Query: r.Query}, nil
	case "productDetail":
		if r.ProductID == "" {
			return nil, errors.New("productDetail requires productId")
		}
		return ProductDetail{ProductID: r.ProductID}, nil
	case "cart":
		return Cart{}, nil
	case "checkout":
		return Checkout{}, nil
	case "orderConfirmation":
		return OrderConfirmation{OrderID: r.OrderID}, nil
	case "orders":
		return OrderHistory{}, nil
	case "signIn", "signUp":
		var then View
		if r.Then != nil {
			v, err := FromRef(*r.Then)
			if err != nil {
				return nil, errors.Wrap(err, "then")
			}
			then = continuation(v)
		}
		if r.Name == "signIn" {
			return SignIn{Then: then}, nil
		}
		return SignUp{Then: then}, nil
	case "admin":
		switch r.Section {
		case "":
			return Admin{Section: AdminDashboard}, nil
		case AdminDashboard, AdminProducts, AdminOrders, AdminCustomers:
			return Admin{Section: r.Section}, nil
		default:
			return nil, errors.Errorf("unknown admin section %q", r.Section)
		}
	case "about":
		return About{}, nil
	case "contact":
		return Contact{}, nil
	default:
		return nil, errors.Wrap(ErrUnknownView, r.Name)
	}
}

// continuation unwraps nested sign-in views so Then always names a page.
func continuation(v View) View {
	switch v := v.(type) {
	case SignIn:
		return v.Then
	case SignUp:
		return v.Then
	}
	return v
}
