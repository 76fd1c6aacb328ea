package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/roseila-storefront/internal/catalog"
)

// listProducts serves GET /api/products?category=&q=.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, catalog.NewStore(products).Filter(q.Get("category"), q.Get("q")))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listCategories serves the category filter, "all" first.
func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.NewStore(products).Categories())
}
