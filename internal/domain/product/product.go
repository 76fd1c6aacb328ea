package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrExists is returned by Create when the id is taken.
	ErrExists = errors.New("product already exists")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Ingredients []string        `json:"ingredients,omitempty"`
	Shades      []string        `json:"shades,omitempty"`
	Rating      float64         `json:"rating"`
}

// Validate checks the invariants every stored product must hold.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return errors.New("product name required")
	case p.Category == "":
		return errors.New("product category required")
	case p.Price.IsNegative():
		return errors.New("product price must not be negative")
	case p.Rating < 0 || p.Rating > 5:
		return errors.New("product rating must be between 0 and 5")
	}
	return nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// AdminRepository extends Repository with the back-office mutations.
type AdminRepository interface {
	Repository
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
