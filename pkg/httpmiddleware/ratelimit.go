package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket of a request. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window holds the counts of the current and the previous fixed window.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{cfg: cfg, now: time.Now, windows: make(map[string]*window)}
}

// take counts a request against key. The previous window contributes in
// proportion to its overlap with the sliding window ending at now.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.cfg.Window
	w, found := l.windows[key]
	if !found {
		w = &window{currStart: now.Truncate(win)}
		l.windows[key] = w
	}
	if elapsed := now.Sub(w.currStart); elapsed >= win {
		if elapsed >= 2*win {
			w.prevCount = 0
		} else {
			w.prevCount = w.currCount
		}
		w.currCount = 0
		w.currStart = now.Truncate(win)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/win.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	used := w.prevCount*overlap + w.currCount
	reset = w.currStart.Add(win)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	w.currCount++
	return max(int(float64(l.cfg.Max)-used-1), 0), reset, true
}

// evict drops keys with no requests in the last two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// RateLimit enforces a per-key sliding window limit. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset; rejected
// requests get 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := l.now()
		remaining, reset, ok := l.take(l.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			retry := max(reset.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			WriteProblem(w, Problem{
				Code:    http.StatusTooManyRequests,
				Kind:    "rate_limited",
				Message: "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
