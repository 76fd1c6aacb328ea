// Package user holds the application-owned profile record mirrored for every
// identity that has signed in at least once.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no profile exists for the given identity.
var ErrNotFound = errors.New("user profile not found")

// Role gates access to the back-office.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Profile is the per-identity record in the users collection.
type Profile struct {
	UID         string
	DisplayName string
	Email       string
	Role        Role
	CreatedAt   time.Time
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// SavedLine is a cart line as persisted in the remote mirror.
type SavedLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// SavedState is the mirrored cart and wishlist of a user.
type SavedState struct {
	Cart     []SavedLine
	Wishlist []string
}

// Repository persists profiles. EnsureProfile creates the record when absent
// and never overwrites fields of an existing one; created reports which path
// was taken.
type Repository interface {
	EnsureProfile(ctx context.Context, p Profile) (stored *Profile, created bool, err error)
	GetProfile(ctx context.Context, uid string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	SetRole(ctx context.Context, uid string, role Role) error
}

// StateRepository reads and writes the mirrored cart and wishlist.
type StateRepository interface {
	LoadState(ctx context.Context, uid string) (*SavedState, error)
	SaveCart(ctx context.Context, uid string, lines []SavedLine) error
	SaveWishlist(ctx context.Context, uid string, productIDs []string) error
}
