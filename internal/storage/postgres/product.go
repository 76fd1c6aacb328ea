package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/roseila-storefront/internal/domain/product"
)

const (
	productColumns = `id, name, price, category, description, image, ingredients, shades, rating`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateProductSQL = `UPDATE products SET name = $2, price = $3, category = $4, description = $5,
		image = $6, ingredients = $7, shades = $8, rating = $9, updated_at = now()
		WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			category = EXCLUDED.category, description = EXCLUDED.description, image = EXCLUDED.image,
			ingredients = EXCLUDED.ingredients, shades = EXCLUDED.shades, rating = EXCLUDED.rating,
			updated_at = now()`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.AdminRepository = (*ProductRepository)(nil)

// ProductRepository implements product.AdminRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog in insertion order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL, productArgs(p)...)
	if err != nil {
		if isUniqueViolation(err, "products_pkey") {
			return product.ErrExists
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update replaces every field of an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL, productArgs(p)...)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product. Orders keep their line snapshots.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts or overwrites products in one batch and returns how many
// rows were written.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) (int, error) {
	batch := &pgx.Batch{}
	for i := range products {
		batch.Queue(upsertProductSQL, productArgs(&products[i])...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range products {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("upserting product %q: %w", products[i].ID, err)
		}
	}
	return len(products), nil
}

func productArgs(p *product.Product) []any {
	ingredients := p.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	shades := p.Shades
	if shades == nil {
		shades = []string{}
	}
	return []any{
		p.ID, p.Name, p.Price, p.Category, p.Description, p.Image,
		ingredients, shades, p.Rating,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Category, &p.Description, &p.Image,
		&p.Ingredients, &p.Shades, &p.Rating,
	)
	return p, err
}
