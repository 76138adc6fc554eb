package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out request starts per host.
//
// Each host gets a token bucket of size one refilled every delay, so two
// requests to the same host start at least delay apart no matter how many
// workers are running. Different hosts do not wait for each other.
type HostLimiter struct {
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter with the given per-host delay.
// A zero delay disables limiting.
func NewHostLimiter(delay time.Duration) *HostLimiter {
	return &HostLimiter{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host may start or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.delay <= 0 || host == "" {
		return ctx.Err()
	}
	return h.limiter(host).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.delay), 1)
		h.limiters[host] = l
	}
	return l
}
