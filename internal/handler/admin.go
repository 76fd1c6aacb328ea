package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
)

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := consoleFrom(r).Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStats(stats))
}

func (h *Handler) adminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := consoleFrom(r).Products(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if products == nil {
		products = []product.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := consoleFrom(r).CreateProduct(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = chi.URLParam(r, "productID")
	updated, err := consoleFrom(r).UpdateProduct(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := consoleFrom(r).DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := consoleFrom(r).Orders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, &badRequestError{err})
		return
	}
	o, err := consoleFrom(r).SetOrderStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(*o))
}

func (h *Handler) customers(w http.ResponseWriter, r *http.Request) {
	profiles, err := consoleFrom(r).Customers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]*profileDTO, len(profiles))
	for i := range profiles {
		out[i] = toProfile(&profiles[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type roleRequest struct {
	Role user.Role `json:"role"`
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Role.Valid() {
		writeError(w, r, &badRequestError{errUnknownRole})
		return
	}
	if err := consoleFrom(r).SetRole(r.Context(), chi.URLParam(r, "uid"), req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
