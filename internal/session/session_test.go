package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/identity"
)

// --- Mock implementations ---

type mockProvider struct {
	users     map[string]*identity.User // by email
	passwords map[string]string
	signInErr error
}

func newMockProvider() *mockProvider {
	return &mockProvider{users: map[string]*identity.User{}, passwords: map[string]string{}}
}

func (m *mockProvider) add(uid, email, password string) {
	m.users[email] = &identity.User{UID: uid, Email: email, DisplayName: uid}
	m.passwords[email] = password
}

func (m *mockProvider) SignIn(_ context.Context, email, password string) (*identity.User, error) {
	if m.signInErr != nil {
		return nil, m.signInErr
	}
	u, ok := m.users[email]
	if !ok || m.passwords[email] != password {
		return nil, identity.ErrInvalidCredentials
	}
	return u, nil
}

func (m *mockProvider) SignUp(_ context.Context, email, password, name string) (*identity.User, error) {
	if _, ok := m.users[email]; ok {
		return nil, identity.ErrEmailInUse
	}
	u := &identity.User{UID: "new-" + email, Email: email, DisplayName: name}
	m.users[email] = u
	m.passwords[email] = password
	return u, nil
}

func (m *mockProvider) SocialSignIn(_ context.Context, idToken string) (*identity.User, error) {
	if idToken == "" {
		return nil, identity.ErrSignInCancelled
	}
	return &identity.User{UID: "social:" + idToken, Email: idToken + "@example.com"}, nil
}

func (m *mockProvider) IssueToken(u *identity.User) (string, error) {
	return "token:" + u.Email, nil
}

func (m *mockProvider) VerifyToken(_ context.Context, token string) (*identity.User, error) {
	email, ok := strings.CutPrefix(token, "token:")
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	u, found := m.users[email]
	if !found {
		return nil, identity.ErrInvalidToken
	}
	return u, nil
}

type mockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]user.Profile
	creates  int
	err      error
}

func newProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: map[string]user.Profile{}}
}

func (m *mockProfileRepo) EnsureProfile(_ context.Context, p user.Profile) (*user.Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if existing, ok := m.profiles[p.UID]; ok {
		return &existing, false, nil
	}
	m.creates++
	m.profiles[p.UID] = p
	return &p, true, nil
}

func (m *mockProfileRepo) GetProfile(_ context.Context, uid string) (*user.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &p, nil
}

func (m *mockProfileRepo) ListProfiles(_ context.Context) ([]user.Profile, error) {
	return nil, nil
}

func (m *mockProfileRepo) SetRole(_ context.Context, uid string, role user.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[uid]
	p.Role = role
	m.profiles[uid] = p
	return nil
}

type transitionLog struct {
	mu   sync.Mutex
	seen [][2]State
}

func (l *transitionLog) listener(_ context.Context, prev, next Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, [2]State{prev.State, next.State})
}

// --- Tests ---

func TestResolve_OnlyOnce(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	m := NewManager(prov, newProfileRepo(), nil)
	log := &transitionLog{}
	m.Subscribe(log.listener)
	ctx := context.Background()

	assert.Equal(t, StateUnknown, m.State())
	require.NoError(t, m.Resolve(ctx, ""))
	assert.Equal(t, StateAnonymous, m.State())

	require.NoError(t, m.Resolve(ctx, "token:a@example.com"))
	assert.Equal(t, StateAnonymous, m.State())
	assert.Equal(t, [][2]State{{StateUnknown, StateAnonymous}}, log.seen)
}

func TestResolve_WithToken(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	m := NewManager(prov, newProfileRepo(), nil)

	require.NoError(t, m.Resolve(context.Background(), "token:a@example.com"))
	s := m.Snapshot()
	assert.Equal(t, StateAuthenticated, s.State)
	assert.Equal(t, "u1", s.UID())
}

func TestResolve_InvalidTokenIsAnonymous(t *testing.T) {
	m := NewManager(newMockProvider(), newProfileRepo(), nil)
	require.NoError(t, m.Resolve(context.Background(), "garbage"))
	assert.Equal(t, StateAnonymous, m.State())
}

func TestSignIn_CreatesProfileOnce(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	profiles := newProfileRepo()
	m := NewManager(prov, profiles, nil)
	ctx := context.Background()
	require.NoError(t, m.Resolve(ctx, ""))

	p, err := m.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, user.RoleCustomer, p.Role)
	assert.Equal(t, 1, profiles.creates)

	m.SignOut(ctx)
	require.NoError(t, profiles.SetRole(ctx, "u1", user.RoleAdmin))

	p, err = m.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, p.Role, "existing role must be preserved")
	assert.Equal(t, 1, profiles.creates)
}

func TestSignIn_ProviderErrorsAreAuthErrors(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	m := NewManager(prov, newProfileRepo(), nil)
	ctx := context.Background()

	_, err := m.SignIn(ctx, "a@example.com", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "sign in", authErr.Op)
	assert.Equal(t, identity.ErrInvalidCredentials.Error(), authErr.Error())
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.NotEqual(t, StateAuthenticated, m.State())

	_, err = m.SignUp(ctx, "a@example.com", "pw", "Ada")
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, identity.ErrEmailInUse)

	_, err = m.SocialSignIn(ctx, "")
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, identity.ErrSignInCancelled)
}

func TestSignIn_ProfileStoreFailure(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	profiles := newProfileRepo()
	profiles.err = errors.New("store offline")
	m := NewManager(prov, profiles, nil)

	_, err := m.SignIn(context.Background(), "a@example.com", "pw")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.NotEqual(t, StateAuthenticated, m.State())
}

func TestSignUp_NewIdentityIsCustomer(t *testing.T) {
	profiles := newProfileRepo()
	m := NewManager(newMockProvider(), profiles, nil)
	ctx := context.Background()

	p, err := m.SignUp(ctx, "new@example.com", "secret1", "New")
	require.NoError(t, err)
	assert.Equal(t, user.RoleCustomer, p.Role)
	assert.Equal(t, "token:new@example.com", m.Snapshot().Token)
	assert.Equal(t, 1, profiles.creates)
}

func TestSocialSignIn(t *testing.T) {
	m := NewManager(newMockProvider(), newProfileRepo(), nil)
	p, err := m.SocialSignIn(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "social:g1", p.UID)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestGates(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	profiles := newProfileRepo()
	m := NewManager(prov, profiles, nil)
	ctx := context.Background()

	_, err := m.RequireAuthenticated()
	require.ErrorIs(t, err, ErrAuthRequired)
	_, err = m.RequireAdmin()
	require.ErrorIs(t, err, ErrAuthRequired)

	_, err = m.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)

	p, err := m.RequireAuthenticated()
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UID)
	_, err = m.RequireAdmin()
	require.ErrorIs(t, err, ErrForbidden)

	m.SignOut(ctx)
	require.NoError(t, profiles.SetRole(ctx, "u1", user.RoleAdmin))
	_, err = m.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	_, err = m.RequireAdmin()
	require.NoError(t, err)
}

func TestSubscribe_Transitions(t *testing.T) {
	prov := newMockProvider()
	prov.add("u1", "a@example.com", "pw")
	m := NewManager(prov, newProfileRepo(), nil)
	log := &transitionLog{}
	unsubscribe := m.Subscribe(log.listener)
	ctx := context.Background()

	require.NoError(t, m.Resolve(ctx, ""))
	_, err := m.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	m.SignOut(ctx)
	m.SignOut(ctx)

	assert.Equal(t, [][2]State{
		{StateUnknown, StateAnonymous},
		{StateAnonymous, StateAuthenticated},
		{StateAuthenticated, StateAnonymous},
	}, log.seen)

	unsubscribe()
	_, err = m.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	assert.Len(t, log.seen, 3)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "anonymous", StateAnonymous.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
}
