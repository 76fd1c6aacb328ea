package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/roseila-storefront/internal/identity"
	"github.com/xenking/roseila-storefront/internal/identity/local"
)

const (
	createCredentialSQL = `INSERT INTO credentials (uid, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	getCredentialByEmailSQL = `SELECT uid, email, display_name, password_hash, created_at
		FROM credentials WHERE email = $1`
)

var _ local.CredentialStore = (*CredentialRepository)(nil)

// CredentialRepository stores email/password identities.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository returns a CredentialRepository that uses the given
// pool.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Create inserts a credential. A taken email yields identity.ErrEmailInUse.
func (r *CredentialRepository) Create(ctx context.Context, c *local.Credential) error {
	_, err := r.pool.Exec(ctx, createCredentialSQL, c.UID, c.Email, c.DisplayName, c.PasswordHash, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "credentials_email_key") {
			return identity.ErrEmailInUse
		}
		return fmt.Errorf("creating credential: %w", err)
	}
	return nil
}

// GetByEmail looks up a credential by normalized email.
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*local.Credential, error) {
	rows, err := r.pool.Query(ctx, getCredentialByEmailSQL, email)
	if err != nil {
		return nil, fmt.Errorf("getting credential: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[local.Credential])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, local.ErrNotFound
		}
		return nil, fmt.Errorf("getting credential: %w", err)
	}
	return &c, nil
}
