// Package local implements identity.Provider on top of a credential store,
// bcrypt password hashes and HS256 session tokens.
package local

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/roseila-storefront/internal/identity"
)

const minPasswordLen = 6

// ErrNotFound is returned by CredentialStore when no credential matches.
var ErrNotFound = errors.New("credential not found")

// Credential is a stored email/password identity.
type Credential struct {
	UID          string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// CredentialStore persists credentials. Create returns identity.ErrEmailInUse
// when the email is taken.
type CredentialStore interface {
	Create(ctx context.Context, c *Credential) error
	GetByEmail(ctx context.Context, email string) (*Credential, error)
}

// Config holds token settings.
type Config struct {
	// TokenSecret signs session tokens.
	TokenSecret []byte
	// TokenTTL is the session token lifetime.
	TokenTTL time.Duration
	// SocialSecret verifies ID tokens from the federation bridge.
	SocialSecret []byte
	// SocialIssuer is the expected iss claim of federated ID tokens.
	SocialIssuer string
	// Issuer is set on issued session tokens.
	Issuer string
}

// Claims is the session token payload.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SocialClaims is the federated ID token payload.
type SocialClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

var _ identity.Provider = (*Provider)(nil)

// Provider is a self-hosted identity provider.
type Provider struct {
	store CredentialStore
	cfg   Config
	now   func() time.Time
	cost  int
}

// New creates a Provider.
func New(store CredentialStore, cfg Config) *Provider {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "roseila-storefront"
	}
	return &Provider{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		cost:  bcrypt.DefaultCost,
	}
}

// SignIn checks an email/password pair.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	email = normalizeEmail(email)
	c, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, unavailable(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.User{UID: c.UID, Email: c.Email, DisplayName: c.DisplayName}, nil
}

// SignUp registers a new email/password identity.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*identity.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, identity.ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return nil, identity.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	c := &Credential{
		UID:          uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.store.Create(ctx, c); err != nil {
		if errors.Is(err, identity.ErrEmailInUse) {
			return nil, identity.ErrEmailInUse
		}
		return nil, unavailable(err)
	}
	return &identity.User{UID: c.UID, Email: c.Email, DisplayName: c.DisplayName}, nil
}

// SocialSignIn verifies a federated ID token. The uid is the token subject
// with a "social:" prefix so it never collides with local accounts.
func (p *Provider) SocialSignIn(_ context.Context, idToken string) (*identity.User, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, identity.ErrSignInCancelled
	}
	if len(p.cfg.SocialSecret) == 0 {
		return nil, unavailable(errors.New("social sign-in not configured"))
	}

	var claims SocialClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.cfg.SocialIssuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.SocialIssuer))
	}
	if _, err := jwt.ParseWithClaims(idToken, &claims, func(*jwt.Token) (any, error) {
		return p.cfg.SocialSecret, nil
	}, opts...); err != nil {
		return nil, invalidToken(err)
	}
	if claims.Subject == "" {
		return nil, invalidToken(errors.New("missing subject"))
	}

	name := claims.Name
	if name == "" {
		name, _, _ = strings.Cut(claims.Email, "@")
	}
	return &identity.User{
		UID:         "social:" + claims.Subject,
		Email:       normalizeEmail(claims.Email),
		DisplayName: name,
	}, nil
}

// IssueToken signs a session token for u.
func (p *Provider) IssueToken(u *identity.User) (string, error) {
	now := p.now()
	claims := Claims{
		Email: u.Email,
		Name:  u.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UID,
			Issuer:    p.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.cfg.TokenSecret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// VerifyToken parses a session token issued by IssueToken.
func (p *Provider) VerifyToken(_ context.Context, token string) (*identity.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.cfg.TokenSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, invalidToken(err)
	}
	if claims.Subject == "" {
		return nil, identity.ErrInvalidToken
	}
	return &identity.User{UID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func unavailable(err error) error {
	return errors.Errorf("%w: %w", identity.ErrUnavailable, err)
}

func invalidToken(err error) error {
	return errors.Errorf("%w: %w", identity.ErrInvalidToken, err)
}
