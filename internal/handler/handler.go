// Package handler exposes the storefront over HTTP.
//
// Public routes serve the catalog and the payment-intent endpoint. Every
// browser first creates a client (POST /api/clients) and then drives it
// through /api/clients/{clientID}/...; the client owns the session, cart,
// checkout and current view.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/roseila-storefront/internal/admin"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/storefront"
	"github.com/xenking/roseila-storefront/pkg/health"
)

const maxBody = 1 << 20

// Clients is the client registry.
type Clients interface {
	Create(ctx context.Context, token string) (*storefront.Client, error)
	Get(id string) (*storefront.Client, error)
	Remove(id string)
}

// Deps are the collaborators of the Handler.
type Deps struct {
	Clients  Clients
	Products product.Repository
	Admin    *admin.Service
	// Intents serves POST /api/payment-intents.
	Intents http.Handler
	Health  *health.Health
}

// Handler serves the storefront API.
type Handler struct {
	clients  Clients
	products product.Repository
	admin    *admin.Service
	intents  http.Handler
	health   *health.Health
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{
		clients:  deps.Clients,
		products: deps.Products,
		admin:    deps.Admin,
		intents:  deps.Intents,
		health:   deps.Health,
	}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNoRoute)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	if h.health != nil {
		h.health.Routes(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)
		r.Get("/categories", h.listCategories)
		r.Method(http.MethodPost, "/payment-intents", h.intents)

		r.Post("/clients", h.createClient)
		r.Route("/clients/{clientID}", func(r chi.Router) {
			r.Use(h.withClient)

			r.Get("/", h.getClient)
			r.Delete("/", h.closeClient)

			r.Post("/auth/signin", h.signIn)
			r.Post("/auth/signup", h.signUp)
			r.Post("/auth/social", h.socialSignIn)
			r.Post("/auth/signout", h.signOut)

			r.Get("/view", h.getView)
			r.Post("/view", h.navigate)

			r.Get("/cart", h.getCart)
			r.Post("/cart/lines", h.addToCart)
			r.Patch("/cart/lines/{productID}", h.updateQuantity)
			r.Delete("/cart/lines/{productID}", h.removeLine)
			r.Post("/wishlist", h.addToWishlist)
			r.Delete("/wishlist/{productID}", h.removeFromWishlist)

			r.Get("/checkout", h.checkoutStatus)
			r.Post("/checkout", h.submitCheckout)
			r.Post("/checkout/reset", h.resetCheckout)

			r.Get("/orders", h.orderHistory)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.withConsole)
				r.Get("/dashboard", h.dashboard)
				r.Get("/products", h.adminProducts)
				r.Post("/products", h.createProduct)
				r.Put("/products/{productID}", h.updateProduct)
				r.Delete("/products/{productID}", h.deleteProduct)
				r.Get("/orders", h.adminOrders)
				r.Patch("/orders/{orderID}", h.setOrderStatus)
				r.Get("/customers", h.customers)
				r.Put("/customers/{uid}/role", h.setRole)
			})
		})
	})
	return r
}

type clientKey struct{}

type consoleKey struct{}

func (h *Handler) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := h.clients.Get(chi.URLParam(r, "clientID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, c)))
	})
}

func (h *Handler) withConsole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		console, err := h.admin.Open(r.Context(), clientFrom(r).Session())
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), consoleKey{}, console)))
	})
}

func clientFrom(r *http.Request) *storefront.Client {
	return r.Context().Value(clientKey{}).(*storefront.Client)
}

func consoleFrom(r *http.Request) *admin.Console {
	return r.Context().Value(consoleKey{}).(*admin.Console)
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return &badRequestError{errors.Wrap(err, "read body")}
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &badRequestError{errors.Wrap(err, "decode body")}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
