// Package rate throttles login attempts per client IP. Two implementations
// share one interface: an in-process fixed-window counter and a Redis-backed
// one for multi-instance deployments.
package rate

import (
	"context"
	"time"
)

type Limiter interface {
	// Allow reports whether the key may proceed and, when denied, how long
	// until the window resets.
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}
