package view

import (
	"sync"

	"github.com/xenking/roseila-storefront/internal/session"
)

// Viewer reports the session a route is resolved against.
type Viewer interface {
	Snapshot() session.Snapshot
}

// Router holds the current view of one client. Every navigation goes through
// Resolve, so a gated view is never current for a session that cannot see it.
type Router struct {
	viewer Viewer

	mu      sync.Mutex
	current View
	onMove  func(from, to View)
}

// NewRouter starts at Home.
func NewRouter(viewer Viewer) *Router {
	return &Router{viewer: viewer, current: Home{}}
}

// OnMove registers a callback for view changes.
func (r *Router) OnMove(fn func(from, to View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMove = fn
}

// Current returns the current view.
func (r *Router) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate moves to target, or to where access rules send it, and returns
// the view actually entered.
func (r *Router) Navigate(target View) View {
	if target == nil {
		target = Home{}
	}
	return r.move(Resolve(target, r.viewer.Snapshot()))
}

// Refresh re-applies access rules after a session change. A pending SignIn
// continues to its target once the session is authenticated; a gated view
// left by sign-out falls back to Home.
func (r *Router) Refresh() View {
	snap := r.viewer.Snapshot()
	cur := r.Current()

	next := cur
	switch v := cur.(type) {
	case SignIn:
		if snap.State == session.StateAuthenticated {
			next = afterSignIn(v.Then)
		}
	case SignUp:
		if snap.State == session.StateAuthenticated {
			next = afterSignIn(v.Then)
		}
	default:
		if !allowed(cur, snap) {
			next = Home{}
		}
	}
	return r.move(Resolve(next, snap))
}

func (r *Router) move(to View) View {
	r.mu.Lock()
	from := r.current
	r.current = to
	fn := r.onMove
	r.mu.Unlock()

	if fn != nil && from != to {
		fn(from, to)
	}
	return to
}

func afterSignIn(then View) View {
	if then == nil {
		return Home{}
	}
	return then
}

// Resolve applies access rules: anonymous sessions reaching a gated view get
// SignIn with the view as continuation; signed-in non-admins reaching an
// admin view get Home.
func Resolve(target View, snap session.Snapshot) View {
	if allowed(target, snap) {
		return target
	}
	if snap.State != session.StateAuthenticated {
		return SignIn{Then: continuation(target)}
	}
	return Home{}
}

func allowed(v View, snap session.Snapshot) bool {
	switch v.access() {
	case SignedIn:
		return snap.State == session.StateAuthenticated
	case AdminOnly:
		return snap.State == session.StateAuthenticated && snap.Profile.IsAdmin()
	default:
		return true
	}
}
