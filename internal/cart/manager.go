// Package cart manages a client's cart and wishlist and mirrors them to the
// owner's remote record.
package cart

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/domain/user"
	"github.com/xenking/roseila-storefront/internal/pricing"
)

// Sentinel errors for cart operations.
var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("product not in cart")
)

const defaultMirrorTimeout = 10 * time.Second

// Line is one product in the cart. UnitPrice is captured when the product is
// first added.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return pricing.LineTotal(l.UnitPrice, l.Quantity)
}

// MirrorSyncError reports a failed remote write of the cart or wishlist.
type MirrorSyncError struct {
	UID    string
	Target string
	Err    error
}

func (e *MirrorSyncError) Error() string {
	return fmt.Sprintf("mirror %s for %s: %v", e.Target, e.UID, e.Err)
}

func (e *MirrorSyncError) Unwrap() error { return e.Err }

// Manager owns a cart and wishlist. Local state is authoritative; when an
// owner is attached every mutation schedules a best-effort write of the full
// collection to the remote record. Pending writes are coalesced so only the
// latest state is sent.
type Manager struct {
	shipping pricing.ShippingRule
	remote   user.StateRepository
	lg       *zap.Logger
	timeout  time.Duration

	mu       sync.Mutex
	idle     *sync.Cond
	lines    []Line
	wishlist []string
	owner    string

	cartDirty     bool
	wishDirty     bool
	draining      bool
	mirrorFailure int
}

// NewManager creates an empty Manager. remote may be nil to disable
// mirroring.
func NewManager(shipping pricing.ShippingRule, remote user.StateRepository, lg *zap.Logger) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	m := &Manager{
		shipping: shipping,
		remote:   remote,
		lg:       lg,
		timeout:  defaultMirrorTimeout,
	}
	m.idle = sync.NewCond(&m.mu)
	return m
}

// AddToCart adds qty units of p, incrementing an existing line.
func (m *Manager) AddToCart(p product.Product, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexLocked(p.ID); i >= 0 {
		m.lines[i].Quantity += qty
	} else {
		m.lines = append(m.lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  qty,
		})
	}
	m.markCartLocked()
	return nil
}

// UpdateQuantity adds delta to a line's quantity. The result never drops
// below 1; use RemoveLine to drop a product.
func (m *Manager) UpdateQuantity(productID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(productID)
	if i < 0 {
		return errors.Wrapf(ErrLineNotFound, "product %s", productID)
	}
	next := max(1, m.lines[i].Quantity+delta)
	if next == m.lines[i].Quantity {
		return nil
	}
	m.lines[i].Quantity = next
	m.markCartLocked()
	return nil
}

// RemoveLine drops the line for productID. Removing an absent product is a
// no-op.
func (m *Manager) RemoveLine(productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(productID)
	if i < 0 {
		return
	}
	m.lines = slices.Delete(m.lines, i, i+1)
	m.markCartLocked()
}

// AddToWishlist adds p to the wishlist if absent.
func (m *Manager) AddToWishlist(p product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Contains(m.wishlist, p.ID) {
		return
	}
	m.wishlist = append(m.wishlist, p.ID)
	m.markWishlistLocked()
}

// RemoveFromWishlist drops productID from the wishlist if present.
func (m *Manager) RemoveFromWishlist(productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.Index(m.wishlist, productID)
	if i < 0 {
		return
	}
	m.wishlist = slices.Delete(m.wishlist, i, i+1)
	m.markWishlistLocked()
}

// InWishlist reports whether productID is wishlisted.
func (m *Manager) InWishlist(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.wishlist, productID)
}

// Lines returns a copy of the cart lines in insertion order.
func (m *Manager) Lines() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lines)
}

// Wishlist returns a copy of the wishlisted product ids.
func (m *Manager) Wishlist() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.wishlist)
}

// ItemCount returns the total number of units in the cart.
func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lines {
		n += l.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (m *Manager) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines) == 0
}

// Subtotal returns the sum of line totals, computed on every call.
func (m *Manager) Subtotal() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return subtotal(m.lines)
}

// ShippingFee returns the shipping charge for the current subtotal. An
// empty cart ships nothing and pays nothing.
func (m *Manager) ShippingFee() decimal.Decimal {
	lines, sub := m.totals()
	if lines == 0 {
		return decimal.Zero
	}
	return m.shipping.Fee(sub)
}

// Total returns subtotal plus shipping, zero for an empty cart.
func (m *Manager) Total() decimal.Decimal {
	lines, sub := m.totals()
	if lines == 0 {
		return decimal.Zero
	}
	return m.shipping.Total(sub)
}

func (m *Manager) totals() (int, decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines), subtotal(m.lines)
}

// Shipping returns the rule used for ShippingFee.
func (m *Manager) Shipping() pricing.ShippingRule {
	return m.shipping
}

// Clear empties the cart locally and, when an owner is attached, remotely.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
	m.markCartLocked()
}

// RemovePurchased takes purchased lines out of the cart: each line's
// quantity is subtracted from the matching cart line, and lines that reach
// zero are dropped. Units added after the purchase snapshot stay.
func (m *Manager) RemovePurchased(purchased []Line) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, p := range purchased {
		i := m.indexLocked(p.ProductID)
		if i < 0 {
			continue
		}
		changed = true
		if left := m.lines[i].Quantity - p.Quantity; left > 0 {
			m.lines[i].Quantity = left
			continue
		}
		m.lines = slices.Delete(m.lines, i, i+1)
	}
	if changed {
		m.markCartLocked()
	}
}

// Owner returns the uid whose record is mirrored, or "".
func (m *Manager) Owner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Adopt attaches uid as owner and refreshes local state from its record. A
// non-empty remote collection replaces the local one; an empty remote
// collection is overwritten with the local one. When the record cannot be
// read local state is kept and nothing is pushed.
func (m *Manager) Adopt(ctx context.Context, uid string) {
	var state *user.SavedState
	if m.remote != nil {
		var err error
		state, err = m.remote.LoadState(ctx, uid)
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			m.lg.Warn("Load mirrored cart failed",
				zap.Error(&MirrorSyncError{UID: uid, Target: "state", Err: err}),
			)
			m.mu.Lock()
			m.owner = uid
			m.mu.Unlock()
			return
		}
	}
	if state == nil {
		state = &user.SavedState{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = uid
	if len(state.Cart) > 0 {
		m.lines = fromSaved(state.Cart)
	} else if len(m.lines) > 0 {
		m.markCartLocked()
	}
	if len(state.Wishlist) > 0 {
		m.wishlist = slices.Clone(state.Wishlist)
	} else if len(m.wishlist) > 0 {
		m.markWishlistLocked()
	}
}

// Detach drops the owner and clears local state without touching the remote
// record. Writes already in flight complete against the previous owner.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = ""
	m.lines = nil
	m.wishlist = nil
	m.cartDirty = false
	m.wishDirty = false
}

// Wait blocks until no mirror write is pending or in flight.
func (m *Manager) Wait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.draining {
		m.idle.Wait()
	}
}

// MirrorFailures returns the number of failed remote writes so far.
func (m *Manager) MirrorFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirrorFailure
}

func (m *Manager) indexLocked(productID string) int {
	return slices.IndexFunc(m.lines, func(l Line) bool { return l.ProductID == productID })
}

func (m *Manager) markCartLocked() {
	if m.owner == "" || m.remote == nil {
		return
	}
	m.cartDirty = true
	m.startDrainLocked()
}

func (m *Manager) markWishlistLocked() {
	if m.owner == "" || m.remote == nil {
		return
	}
	m.wishDirty = true
	m.startDrainLocked()
}

func (m *Manager) startDrainLocked() {
	if m.draining {
		return
	}
	m.draining = true
	go m.drain()
}

// drain writes the latest snapshot until nothing is dirty.
func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if !m.cartDirty && !m.wishDirty {
			m.draining = false
			m.idle.Broadcast()
			m.mu.Unlock()
			return
		}
		uid := m.owner
		var (
			cartSnap []user.SavedLine
			wishSnap []string
		)
		pushCart, pushWish := m.cartDirty, m.wishDirty
		if pushCart {
			cartSnap = toSaved(m.lines)
		}
		if pushWish {
			wishSnap = slices.Clone(m.wishlist)
		}
		m.cartDirty, m.wishDirty = false, false
		m.mu.Unlock()

		if pushCart {
			m.write(uid, "cart", func(ctx context.Context) error {
				return m.remote.SaveCart(ctx, uid, cartSnap)
			})
		}
		if pushWish {
			m.write(uid, "wishlist", func(ctx context.Context) error {
				return m.remote.SaveWishlist(ctx, uid, wishSnap)
			})
		}
	}
}

func (m *Manager) write(uid, target string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.mirrorFailure++
		m.mu.Unlock()
		m.lg.Warn("Mirror write failed",
			zap.Error(&MirrorSyncError{UID: uid, Target: target, Err: err}),
		)
	}
}

func subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func toSaved(lines []Line) []user.SavedLine {
	out := make([]user.SavedLine, len(lines))
	for i, l := range lines {
		out[i] = user.SavedLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return out
}

func fromSaved(lines []user.SavedLine) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		out = append(out, Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return out
}
