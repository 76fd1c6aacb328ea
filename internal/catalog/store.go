// Package catalog holds the product list loaded for a client session and
// derives filtered views from it.
package catalog

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/domain/product"
)

// AllCategories matches every product in Filter.
const AllCategories = "all"

// CatalogLoadError wraps a failure to fetch the product list. It is logged
// and never returned to callers of Load.
type CatalogLoadError struct {
	Err error
}

func (e *CatalogLoadError) Error() string {
	return "load catalog: " + e.Err.Error()
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

// Store is an immutable snapshot of the catalog. Safe for concurrent use.
type Store struct {
	products []product.Product
	byID     map[string]int
	loadErr  error
}

// NewStore builds a Store from products, keeping the first occurrence of
// each id.
func NewStore(products []product.Product) *Store {
	s := &Store{
		products: make([]product.Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for _, p := range products {
		if _, dup := s.byID[p.ID]; dup {
			continue
		}
		s.byID[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
	return s
}

// Load fetches the catalog once. On failure the error is logged and an empty,
// degraded store is returned so views can render an empty state.
func Load(ctx context.Context, src product.Repository, lg *zap.Logger) *Store {
	products, err := src.List(ctx)
	if err != nil {
		loadErr := &CatalogLoadError{Err: err}
		lg.Error("Catalog unavailable, serving empty catalog", zap.Error(loadErr))
		s := NewStore(nil)
		s.loadErr = loadErr
		return s
	}
	return NewStore(products)
}

// Degraded reports whether the store is empty because loading failed.
func (s *Store) Degraded() bool {
	return s.loadErr != nil
}

// Err returns the load failure, if any.
func (s *Store) Err() error {
	return s.loadErr
}

// List returns every product in load order.
func (s *Store) List() []product.Product {
	return slices.Clone(s.products)
}

// Len returns the number of products.
func (s *Store) Len() int {
	return len(s.products)
}

// Get returns the product with the given id.
func (s *Store) Get(id string) (product.Product, error) {
	i, ok := s.byID[id]
	if !ok {
		return product.Product{}, errors.Wrapf(product.ErrNotFound, "id %q", id)
	}
	return s.products[i], nil
}

// Filter returns products in category (exact match, or every category when
// empty or "all") whose name or description contains text, ignoring case.
func (s *Store) Filter(category, text string) []product.Product {
	category = strings.TrimSpace(category)
	needle := strings.ToLower(strings.TrimSpace(text))

	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && category != AllCategories && p.Category != category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Categories returns "all" followed by the distinct categories in first-seen
// order.
func (s *Store) Categories() []string {
	out := []string{AllCategories}
	seen := make(map[string]struct{}, len(s.products))
	for _, p := range s.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
