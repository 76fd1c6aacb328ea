package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/db"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/storage/postgres"
)

func seedCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the product catalog",
		Long: "Upsert products from a JSON array file (optionally gzip-compressed, *.gz). " +
			"Without --file the bundled launch catalog is used.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), opts, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "products JSON file; .gz is decompressed")
	return cmd
}

func runSeed(ctx context.Context, opts *options, file string) error {
	if opts.databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}

	src, err := openCatalog(file)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	products, err := decodeProducts(src)
	if err != nil {
		return errors.Wrap(err, "decode products")
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	n, err := postgres.NewProductRepository(pool).Upsert(ctx, products)
	if err != nil {
		return errors.Wrap(err, "upsert products")
	}
	opts.lg.Info("Seeded catalog", zap.Int("products", n), zap.String("source", sourceName(file)))
	return nil
}

// openCatalog opens file, transparently decompressing *.gz. An empty name
// selects the embedded launch catalog.
func openCatalog(file string) (io.ReadCloser, error) {
	if file == "" {
		return io.NopCloser(bytes.NewReader(db.SeedProducts)), nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	if !strings.HasSuffix(file, ".gz") {
		return f, nil
	}
	zr, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "open gzip stream")
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return zerr
}

// decodeProducts parses a JSON array of products and validates each one.
func decodeProducts(r io.Reader) ([]product.Product, error) {
	var products []product.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, errors.Wrap(err, "parse JSON")
	}
	seen := make(map[string]struct{}, len(products))
	for i, p := range products {
		if p.ID == "" {
			return nil, errors.Errorf("product %d: id required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Errorf("product %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %q", p.ID)
		}
	}
	return products, nil
}

func sourceName(file string) string {
	if file == "" {
		return "embedded"
	}
	return file
}
