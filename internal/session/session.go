// Package session tracks which identity, if any, a client is acting as.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/identity"
)

// State is the session lifecycle state.
type State int

const (
	// StateUnknown is the initial state before the provider has reported.
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

// Gate errors.
var (
	ErrAuthRequired = errors.New("sign in required")
	ErrForbidden    = errors.New("admin role required")
)

// AuthError is a sign-in, sign-up or sign-out failure. Its message is the
// provider's and is meant to be shown to the user.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State   State
	Profile *user.Profile
	// Token can be presented to Resolve to restore the identity later.
	Token string
}

// UID returns the authenticated uid or "".
func (s Snapshot) UID() string {
	if s.State != StateAuthenticated || s.Profile == nil {
		return ""
	}
	return s.Profile.UID
}

// Listener observes transitions. It runs synchronously on the goroutine that
// caused the transition, outside the manager lock.
type Listener func(ctx context.Context, prev, next Snapshot)

// Manager is the session state machine of one client.
type Manager struct {
	provider identity.Provider
	profiles user.Repository
	lg       *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	cur       Snapshot
	listeners map[int]Listener
	nextID    int
}

// NewManager creates a Manager in StateUnknown.
func NewManager(provider identity.Provider, profiles user.Repository, lg *zap.Logger) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Manager{
		provider:  provider,
		profiles:  profiles,
		lg:        lg,
		now:       time.Now,
		listeners: map[int]Listener{},
	}
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Snapshot returns the current session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.Snapshot().State
}

// Resolve performs the initial transition out of StateUnknown using a
// previously issued token, or none. It is a no-op once resolved. An invalid
// token resolves to StateAnonymous.
func (m *Manager) Resolve(ctx context.Context, token string) error {
	if m.State() != StateUnknown {
		return nil
	}
	if token == "" {
		m.transition(ctx, Snapshot{State: StateAnonymous}, true)
		return nil
	}

	u, err := m.provider.VerifyToken(ctx, token)
	if err != nil {
		m.lg.Debug("Session token rejected", zap.Error(err))
		m.transition(ctx, Snapshot{State: StateAnonymous}, true)
		return nil
	}
	if _, err := m.enter(ctx, "resolve", u, true); err != nil {
		m.transition(ctx, Snapshot{State: StateAnonymous}, true)
		return err
	}
	return nil
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*user.Profile, error) {
	u, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, &AuthError{Op: "sign in", Err: err}
	}
	return m.enter(ctx, "sign in", u, false)
}

// SignUp registers and authenticates a new identity.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) (*user.Profile, error) {
	u, err := m.provider.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, &AuthError{Op: "sign up", Err: err}
	}
	return m.enter(ctx, "sign up", u, false)
}

// SocialSignIn authenticates with a federated ID token.
func (m *Manager) SocialSignIn(ctx context.Context, idToken string) (*user.Profile, error) {
	u, err := m.provider.SocialSignIn(ctx, idToken)
	if err != nil {
		return nil, &AuthError{Op: "social sign in", Err: err}
	}
	return m.enter(ctx, "social sign in", u, false)
}

// SignOut moves the session to StateAnonymous.
func (m *Manager) SignOut(ctx context.Context) {
	m.transition(ctx, Snapshot{State: StateAnonymous}, false)
}

// RequireAuthenticated returns the profile or ErrAuthRequired.
func (m *Manager) RequireAuthenticated() (*user.Profile, error) {
	s := m.Snapshot()
	if s.State != StateAuthenticated || s.Profile == nil {
		return nil, ErrAuthRequired
	}
	return s.Profile, nil
}

// RequireAdmin returns the profile of an admin, ErrAuthRequired when
// anonymous, or ErrForbidden for other roles.
func (m *Manager) RequireAdmin() (*user.Profile, error) {
	p, err := m.RequireAuthenticated()
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return p, nil
}

// enter materializes the profile for u and moves to StateAuthenticated. The
// profile is created with the customer role on first sign-in; an existing
// record is returned unchanged.
func (m *Manager) enter(ctx context.Context, op string, u *identity.User, initial bool) (*user.Profile, error) {
	stored, created, err := m.profiles.EnsureProfile(ctx, user.Profile{
		UID:         u.UID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        user.RoleCustomer,
		CreatedAt:   m.now().UTC(),
	})
	if err != nil {
		return nil, &AuthError{Op: op, Err: errors.Wrap(err, "load profile")}
	}
	token, err := m.provider.IssueToken(u)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	if created {
		m.lg.Info("Profile created", zap.String("uid", stored.UID), zap.String("role", string(stored.Role)))
	}

	m.transition(ctx, Snapshot{State: StateAuthenticated, Profile: stored, Token: token}, initial)
	return stored, nil
}

// transition swaps the snapshot and notifies listeners. With onlyFromUnknown
// the swap happens only if the session is still unresolved.
func (m *Manager) transition(ctx context.Context, next Snapshot, onlyFromUnknown bool) {
	m.mu.Lock()
	prev := m.cur
	if onlyFromUnknown && prev.State != StateUnknown {
		m.mu.Unlock()
		return
	}
	m.cur = next
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	if prev.State == next.State && prev.UID() == next.UID() {
		return
	}
	for _, l := range listeners {
		l(ctx, prev, next)
	}
}
