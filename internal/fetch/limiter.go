package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/TangyRyan/Weibo-project-zy/internal/metrics"
)

// hostLimiter enforces a minimum interval between requests to the same
// logical host. Concurrent callers targeting one host serialize inside
// rate.Limiter.Wait and sit out the remainder of the interval.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func newHostLimiter(minInterval time.Duration) *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: minInterval,
	}
}

// Wait blocks until a request to rawURL's host may proceed, respecting the
// context.
func (l *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		lim := rate.Inf
		if l.interval > 0 {
			lim = rate.Every(l.interval)
		}
		limiter = rate.NewLimiter(lim, 1)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
