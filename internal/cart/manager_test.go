package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/pricing"
)

// --- Mock implementations ---

type mockStateRepo struct {
	mu        sync.Mutex
	state     map[string]*user.SavedState
	loadErr   error
	saveErr   error
	cartSaves int
	wishSaves int
}

func newStateRepo() *mockStateRepo {
	return &mockStateRepo{state: map[string]*user.SavedState{}}
}

func (m *mockStateRepo) LoadState(_ context.Context, uid string) (*user.SavedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	s, ok := m.state[uid]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockStateRepo) SaveCart(_ context.Context, uid string, lines []user.SavedLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cartSaves++
	if m.saveErr != nil {
		return m.saveErr
	}
	s := m.stateLocked(uid)
	s.Cart = lines
	return nil
}

func (m *mockStateRepo) SaveWishlist(_ context.Context, uid string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wishSaves++
	if m.saveErr != nil {
		return m.saveErr
	}
	s := m.stateLocked(uid)
	s.Wishlist = ids
	return nil
}

func (m *mockStateRepo) stateLocked(uid string) *user.SavedState {
	s, ok := m.state[uid]
	if !ok {
		s = &user.SavedState{}
		m.state[uid] = s
	}
	return s
}

func (m *mockStateRepo) get(uid string) user.SavedState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.state[uid]; ok {
		return *s
	}
	return user.SavedState{}
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestProduct(id, name, price string) product.Product {
	return product.Product{ID: id, Name: name, Price: d(price), Category: "test"}
}

var (
	lipstick = newTestProduct("1", "Velvet Rose Lipstick", "24.99")
	serum    = newTestProduct("2", "Blossom Glow Serum", "39.99")
	mascara  = newTestProduct("7", "Mascara", "10.00")
)

// --- Tests ---

func TestAddToCart_MergesLines(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)

	for _, qty := range []int{1, 3, 2} {
		require.NoError(t, m.AddToCart(lipstick, qty))
	}

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "1", lines[0].ProductID)
	assert.Equal(t, 6, lines[0].Quantity)
	assert.Equal(t, 6, m.ItemCount())
}

func TestAddToCart_InvalidQuantity(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)

	require.ErrorIs(t, m.AddToCart(lipstick, 0), ErrInvalidQuantity)
	require.ErrorIs(t, m.AddToCart(lipstick, -2), ErrInvalidQuantity)
	assert.True(t, m.Empty())
}

func TestAddToCart_KeepsFirstPrice(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)
	require.NoError(t, m.AddToCart(lipstick, 1))

	repriced := lipstick
	repriced.Price = d("99.99")
	require.NoError(t, m.AddToCart(repriced, 1))

	assert.True(t, d("49.98").Equal(m.Subtotal()))
}

func TestUpdateQuantity(t *testing.T) {
	tests := []struct {
		name   string
		deltas []int
		want   int
	}{
		{name: "increment", deltas: []int{2}, want: 4},
		{name: "decrement", deltas: []int{-1}, want: 1},
		{name: "decrement past floor clamps at 1", deltas: []int{-5}, want: 1},
		{name: "repeated decrements stay at 1", deltas: []int{-1, -1, -1, -1}, want: 1},
		{name: "back up after clamp", deltas: []int{-10, 3}, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(pricing.DefaultShipping(), nil, nil)
			require.NoError(t, m.AddToCart(lipstick, 2))

			for _, delta := range tt.deltas {
				require.NoError(t, m.UpdateQuantity("1", delta))
			}
			lines := m.Lines()
			require.Len(t, lines, 1)
			assert.Equal(t, tt.want, lines[0].Quantity)
		})
	}
}

func TestUpdateQuantity_MissingLine(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)
	require.ErrorIs(t, m.UpdateQuantity("404", 1), ErrLineNotFound)
}

func TestRemoveLine(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)
	require.NoError(t, m.AddToCart(lipstick, 1))
	require.NoError(t, m.AddToCart(serum, 1))

	m.RemoveLine("1")
	m.RemoveLine("missing")

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "2", lines[0].ProductID)
}

func TestTotals(t *testing.T) {
	tests := []struct {
		name         string
		add          func(m *Manager)
		wantSubtotal string
		wantShipping string
		wantTotal    string
	}{
		{
			name:         "empty cart ships nothing",
			add:          func(*Manager) {},
			wantSubtotal: "0", wantShipping: "0", wantTotal: "0",
		},
		{
			name: "emptied cart ships nothing",
			add: func(m *Manager) {
				_ = m.AddToCart(mascara, 1)
				m.RemoveLine("7")
			},
			wantSubtotal: "0", wantShipping: "0", wantTotal: "0",
		},
		{
			name: "above threshold ships free",
			add: func(m *Manager) {
				_ = m.AddToCart(lipstick, 2)
				_ = m.AddToCart(serum, 1)
			},
			wantSubtotal: "89.97", wantShipping: "0", wantTotal: "89.97",
		},
		{
			name:         "small order pays flat fee",
			add:          func(m *Manager) { _ = m.AddToCart(mascara, 1) },
			wantSubtotal: "10.00", wantShipping: "5.99", wantTotal: "15.99",
		},
		{
			name:         "exactly at threshold pays flat fee",
			add:          func(m *Manager) { _ = m.AddToCart(mascara, 5) },
			wantSubtotal: "50.00", wantShipping: "5.99", wantTotal: "55.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(pricing.DefaultShipping(), nil, nil)
			tt.add(m)
			assert.True(t, d(tt.wantSubtotal).Equal(m.Subtotal()), "subtotal %s", m.Subtotal())
			assert.True(t, d(tt.wantShipping).Equal(m.ShippingFee()), "shipping %s", m.ShippingFee())
			assert.True(t, d(tt.wantTotal).Equal(m.Total()), "total %s", m.Total())
		})
	}
}

func TestSubtotal_RecomputedAfterMutation(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)
	require.NoError(t, m.AddToCart(serum, 1))
	assert.True(t, d("39.99").Equal(m.Subtotal()))

	require.NoError(t, m.UpdateQuantity("2", 1))
	assert.True(t, d("79.98").Equal(m.Subtotal()))

	m.Clear()
	assert.True(t, m.Subtotal().IsZero())
}

func TestWishlist_SetSemantics(t *testing.T) {
	m := NewManager(pricing.DefaultShipping(), nil, nil)

	m.AddToWishlist(lipstick)
	m.AddToWishlist(serum)
	m.AddToWishlist(lipstick)
	assert.Equal(t, []string{"1", "2"}, m.Wishlist())
	assert.True(t, m.InWishlist("1"))

	m.RemoveFromWishlist("1")
	m.RemoveFromWishlist("1")
	assert.Equal(t, []string{"2"}, m.Wishlist())
	assert.False(t, m.InWishlist("1"))
}

func TestMirror_NoOwnerNoWrites(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)

	require.NoError(t, m.AddToCart(lipstick, 1))
	m.AddToWishlist(serum)
	m.Wait()

	assert.Zero(t, repo.cartSaves)
	assert.Zero(t, repo.wishSaves)
}

func TestMirror_WritesLatestState(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	m.Adopt(context.Background(), "u1")

	require.NoError(t, m.AddToCart(lipstick, 1))
	require.NoError(t, m.AddToCart(lipstick, 2))
	require.NoError(t, m.AddToCart(serum, 1))
	m.AddToWishlist(serum)
	m.Wait()

	saved := repo.get("u1")
	require.Len(t, saved.Cart, 2)
	assert.Equal(t, 3, saved.Cart[0].Quantity)
	assert.Equal(t, "2", saved.Cart[1].ProductID)
	assert.Equal(t, []string{"2"}, saved.Wishlist)
	assert.GreaterOrEqual(t, repo.cartSaves, 1)
	assert.LessOrEqual(t, repo.cartSaves, 3)
}

func TestMirror_FailureKeepsLocalState(t *testing.T) {
	repo := newStateRepo()
	repo.saveErr = errors.New("unavailable")
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	m.Adopt(context.Background(), "u1")

	require.NoError(t, m.AddToCart(lipstick, 2))
	m.Wait()

	assert.Equal(t, 1, m.MirrorFailures())
	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAdopt_RemoteReplacesLocal(t *testing.T) {
	repo := newStateRepo()
	repo.state["u1"] = &user.SavedState{
		Cart:     []user.SavedLine{{ProductID: "2", Name: "Blossom Glow Serum", UnitPrice: d("39.99"), Quantity: 2}},
		Wishlist: []string{"5"},
	}
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	require.NoError(t, m.AddToCart(lipstick, 1))
	m.AddToWishlist(lipstick)

	m.Adopt(context.Background(), "u1")
	m.Wait()

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "2", lines[0].ProductID)
	assert.Equal(t, []string{"5"}, m.Wishlist())
	assert.Zero(t, repo.cartSaves)
	assert.Equal(t, "u1", m.Owner())
}

func TestAdopt_EmptyRemoteReceivesLocal(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	require.NoError(t, m.AddToCart(lipstick, 1))
	m.AddToWishlist(serum)

	m.Adopt(context.Background(), "u2")
	m.Wait()

	saved := repo.get("u2")
	require.Len(t, saved.Cart, 1)
	assert.Equal(t, "1", saved.Cart[0].ProductID)
	assert.Equal(t, []string{"2"}, saved.Wishlist)
}

func TestAdopt_LoadFailureKeepsLocal(t *testing.T) {
	repo := newStateRepo()
	repo.loadErr = errors.New("timeout")
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	require.NoError(t, m.AddToCart(lipstick, 1))

	m.Adopt(context.Background(), "u1")
	m.Wait()

	assert.Len(t, m.Lines(), 1)
	assert.Zero(t, repo.cartSaves)
	assert.Equal(t, "u1", m.Owner())
}

func TestClear_MirrorsEmptyCart(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	m.Adopt(context.Background(), "u1")
	require.NoError(t, m.AddToCart(lipstick, 1))
	m.Wait()

	m.Clear()
	m.Wait()

	assert.True(t, m.Empty())
	assert.Empty(t, repo.get("u1").Cart)
}

func TestRemovePurchased(t *testing.T) {
	tests := []struct {
		name      string
		add       func(m *Manager)
		purchased []Line
		want      []Line
	}{
		{
			name: "whole cart purchased",
			add: func(m *Manager) {
				_ = m.AddToCart(lipstick, 2)
				_ = m.AddToCart(serum, 1)
			},
			purchased: []Line{{ProductID: "1", Quantity: 2}, {ProductID: "2", Quantity: 1}},
		},
		{
			name: "units added after the snapshot stay",
			add: func(m *Manager) {
				_ = m.AddToCart(lipstick, 3)
				_ = m.AddToCart(mascara, 1)
			},
			purchased: []Line{{ProductID: "1", Quantity: 2}},
			want: []Line{
				{ProductID: "1", Name: lipstick.Name, UnitPrice: lipstick.Price, Quantity: 1},
				{ProductID: "7", Name: mascara.Name, UnitPrice: mascara.Price, Quantity: 1},
			},
		},
		{
			name:      "line removed meanwhile is ignored",
			add:       func(m *Manager) { _ = m.AddToCart(serum, 1) },
			purchased: []Line{{ProductID: "1", Quantity: 2}, {ProductID: "2", Quantity: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(pricing.DefaultShipping(), nil, nil)
			tt.add(m)
			m.RemovePurchased(tt.purchased)
			if tt.want == nil {
				assert.True(t, m.Empty())
				return
			}
			assert.Equal(t, tt.want, m.Lines())
		})
	}
}

func TestRemovePurchased_Mirrors(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	m.Adopt(context.Background(), "u1")
	require.NoError(t, m.AddToCart(lipstick, 1))
	require.NoError(t, m.AddToCart(mascara, 1))
	m.Wait()

	m.RemovePurchased([]Line{{ProductID: "1", Quantity: 1}})
	m.Wait()

	saved := repo.get("u1").Cart
	require.Len(t, saved, 1)
	assert.Equal(t, "7", saved[0].ProductID)
}

func TestDetach_LeavesRemoteUntouched(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	m.Adopt(context.Background(), "u1")
	require.NoError(t, m.AddToCart(lipstick, 1))
	m.Wait()

	m.Detach()
	m.Wait()

	assert.True(t, m.Empty())
	assert.Empty(t, m.Owner())
	assert.Len(t, repo.get("u1").Cart, 1)
}

func TestConcurrentMutations(t *testing.T) {
	repo := newStateRepo()
	m := NewManager(pricing.DefaultShipping(), repo, nil)
	m.Adopt(context.Background(), "u1")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.AddToCart(lipstick, 1)
		}()
	}
	wg.Wait()
	m.Wait()

	lines := m.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 20, lines[0].Quantity)
	assert.Equal(t, 20, repo.get("u1").Cart[0].Quantity)
}
