package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownClient is returned for ids that were never issued or have
// expired.
var ErrUnknownClient = errors.New("unknown client")

// DefaultIdleTTL is how long an untouched client is kept.
const DefaultIdleTTL = 30 * time.Minute

// Registry holds live clients by id.
type Registry struct {
	deps Deps
	ttl  time.Duration
	lg   *zap.Logger
	now  func() time.Time

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Registry{
		deps:    deps,
		ttl:     ttl,
		lg:      lg,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

// Create starts a client. A non-empty token restores a previous session.
func (r *Registry) Create(ctx context.Context, token string) (*Client, error) {
	c, err := NewClient(ctx, uuid.NewString(), r.deps)
	if err != nil {
		return nil, err
	}
	if err := c.session.Resolve(ctx, token); err != nil {
		r.lg.Warn("Session restore failed", zap.String("client_id", c.id), zap.Error(err))
	}
	c.lastSeen.Store(r.now().UnixNano())

	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()

	r.lg.Debug("Client created",
		zap.String("client_id", c.id),
		zap.Stringer("session", c.session.State()),
		zap.Bool("catalog_degraded", c.catalog.Degraded()),
	)
	return c, nil
}

// Get returns the client and marks it active.
func (r *Registry) Get(id string) (*Client, error) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownClient
	}
	c.lastSeen.Store(r.now().UnixNano())
	return c, nil
}

// Remove closes and forgets the client.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Sweep removes clients idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Client
	for id, c := range r.clients {
		if c.idleSince().Before(cutoff) {
			expired = append(expired, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every client.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.lg.Info("Expired idle clients", zap.Int("count", n), zap.Int("live", r.Len()))
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
