package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// RateLimiter is an in-process token bucket per key. A limit of n per window
// refills one token every window/n with a burst of n.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	now      func() time.Time

	waitLimit  int
	waitWindow time.Duration
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a limiter whose Wait admits waitLimit requests per
// waitWindow. Zero values fall back to one per second.
func NewRateLimiter(waitLimit int, waitWindow time.Duration) *RateLimiter {
	if waitLimit <= 0 {
		waitLimit = 1
	}
	if waitWindow <= 0 {
		waitWindow = time.Second
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
		waitLimit:  waitLimit,
		waitWindow: waitWindow,
	}
}

func (r *RateLimiter) limiter(key string, limit int, window time.Duration) *rate.Limiter {
	if limit <= 0 {
		limit = 1
	}
	every := rate.Every(window / time.Duration(limit))

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(every, limit)
		r.limiters[key] = l
		return l
	}
	if l.Limit() != every || l.Burst() != limit {
		now := r.now()
		l.SetLimitAt(now, every)
		l.SetBurstAt(now, limit)
	}
	return l
}

// Allow takes one token from key's bucket if available.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	return r.limiter(key, limit, window).AllowN(r.now(), 1), nil
}

// Wait blocks until key is admitted or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	if err := r.limiter(key, r.waitLimit, r.waitWindow).Wait(ctx); err != nil {
		return fmt.Errorf("memory: rate limit wait %s: %w", key, err)
	}
	return nil
}
