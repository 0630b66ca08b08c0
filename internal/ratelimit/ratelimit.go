// Package ratelimit provides per-client token bucket limiting for the
// handshake endpoint. Each successful handshake consumes a view slot, so
// an unthrottled client could drain a share's quota by hammering the
// endpoint; the limiter caps how fast any one client can try.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the limiter seen by the middleware. The in-memory
// implementation covers a single instance; a distributed one can slot in
// behind the same interface.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// InMemoryRateLimiter keeps one token bucket per key. Idle buckets are
// swept periodically so one-off visitors don't accumulate forever.
type InMemoryRateLimiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*client

	stop chan struct{}
}

const (
	sweepInterval = 5 * time.Minute
	idleMaxAge    = 10 * time.Minute
)

// NewInMemoryRateLimiter creates a limiter allowing rps requests per
// second with the given burst per key.
func NewInMemoryRateLimiter(rps float64, burst int) *InMemoryRateLimiter {
	l := &InMemoryRateLimiter{
		rate:    rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether a request under key may proceed now.
func (l *InMemoryRateLimiter) Allow(ctx context.Context, key string) bool {
	c := l.get(key)

	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()

	return c.limiter.Allow()
}

func (l *InMemoryRateLimiter) get(key string) *client {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.clients[key]; ok {
		return c
	}
	c := &client{
		limiter:  rate.NewLimiter(l.rate, l.burst),
		lastSeen: time.Now(),
	}
	l.clients[key] = c
	return c
}

func (l *InMemoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now().Add(-idleMaxAge))
		case <-l.stop:
			return
		}
	}
}

func (l *InMemoryRateLimiter) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.clients {
		c.mu.Lock()
		idle := c.lastSeen.Before(cutoff)
		c.mu.Unlock()
		if idle {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Stop terminates the sweep goroutine.
func (l *InMemoryRateLimiter) Stop() {
	close(l.stop)
}
