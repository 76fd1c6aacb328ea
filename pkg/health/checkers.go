package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than limit goroutines are running.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds %d", n, limit)
		}
		return nil
	}
}

// PingCheck adapts a dependency ping, such as pgxpool.Pool.Ping, to a
// CheckFunc. The error is prefixed with name.
func PingCheck(name string, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", name)
		}
		return nil
	}
}

// GaugeCheck fails when value reports more than limit, e.g. live storefront
// clients.
func GaugeCheck(what string, value func() int, limit int) CheckFunc {
	return func(context.Context) error {
		if n := value(); n > limit {
			return errors.Errorf("%s %d exceeds %d", what, n, limit)
		}
		return nil
	}
}
