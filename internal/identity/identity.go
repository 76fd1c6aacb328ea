// Package identity defines the contract with the identity provider that owns
// authentication.
package identity

import (
	"context"

	"github.com/go-faster/errors"
)

// Provider-reported failures.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrSignInCancelled    = errors.New("sign-in was cancelled")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnavailable        = errors.New("identity provider unavailable")
)

// User is an identity as reported by the provider.
type User struct {
	UID         string
	Email       string
	DisplayName string
}

// Provider authenticates users and issues session tokens that can later be
// exchanged back for the same identity.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password, displayName string) (*User, error)
	// SocialSignIn exchanges an ID token issued by a federated provider.
	// An empty token means the user dismissed the provider prompt.
	SocialSignIn(ctx context.Context, idToken string) (*User, error)
	IssueToken(u *User) (string, error)
	VerifyToken(ctx context.Context, token string) (*User, error)
}
