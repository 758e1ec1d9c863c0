package crawler

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiters holds one token-bucket limiter per host, generalizing
// internal/server/ratelimit.go's per-IP ipLimiter to per-host, and
// from "reject over limit" to "wait for a token" — the crawler must
// throttle its own outbound requests, not refuse inbound ones.
type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
}

func newHostLimiters(requestsPerSecond float64) *hostLimiters {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &hostLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
	}
}

func (h *hostLimiters) getOrCreate(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		// Burst of 1 means the first request on a host proceeds
		// immediately and every subsequent one waits for a fresh
		// token, matching spec's "first call may proceed immediately,
		// subsequent calls sleep until 1/rps has elapsed" semantics.
		l = rate.NewLimiter(h.rps, 1)
		h.limiters[host] = l
	}
	return l
}

// wait blocks until the per-host limiter grants a token, or ctx is
// canceled. Waiters on the same host queue FIFO, per rate.Limiter's
// own documented ordering guarantee.
func (h *hostLimiters) wait(ctx context.Context, host string) error {
	return h.getOrCreate(host).Wait(ctx)
}
