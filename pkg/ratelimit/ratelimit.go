// Package ratelimit paces outbound requests with optional jitter.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter hands out evenly spaced request slots. The first slot is
// immediate; each later one is one interval after the previous, shifted by
// up to +/- jitter*interval. It is safe for concurrent use by multiple
// goroutines.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
}

// NewLimiter creates a new limiter with the given requests per second (rps)
// and jitter factor. Jitter is clamped to [0, 1].
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	l := &Limiter{jitter: jitter}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// Interval is the nominal spacing between slots. Zero means unlimited.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// reserve claims the next slot and returns how long to wait for it.
func (l *Limiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.next
	if slot.Before(now) {
		slot = now
	}

	gap := l.interval
	if l.jitter > 0 {
		factor := rand.Float64()*2 - 1 // -1.0 to 1.0
		gap += time.Duration(float64(l.interval) * l.jitter * factor)
	}
	l.next = slot.Add(gap)

	return slot.Sub(now)
}

// Wait blocks until the caller's slot arrives, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.interval <= 0 {
		return nil
	}

	d := l.reserve(time.Now())
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
