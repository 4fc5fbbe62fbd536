package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token bucket rate limiter. The zero burst constructor
// allows short bursts up to one second's worth of requests.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	tokens     float64
	maxTokens  float64
	lastUpdate time.Time
}

// New creates a rate limiter with the specified rate (requests per second)
// and a burst of one second's worth of tokens.
func New(rps float64) *Limiter {
	return NewWithBurst(rps, 0)
}

// NewWithBurst creates a rate limiter with an explicit burst capacity.
// A non-positive burst defaults to the per-second rate.
func NewWithBurst(rps float64, burst float64) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	if burst <= 0 {
		burst = rps
	}
	return &Limiter{
		rate:       rps,
		tokens:     burst,
		maxTokens:  burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
// An immediately available token is handed out without consulting the
// context.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait := l.take()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// Re-check; another waiter may have drained the refill.
		}
	}
}

// take consumes a token if one is available, otherwise returns how long
// until the deficit refills.
func (l *Limiter) take() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true, 0
	}

	deficit := 1.0 - l.tokens
	return false, time.Duration(deficit / l.rate * float64(time.Second))
}
