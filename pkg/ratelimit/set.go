package ratelimit

import (
	"context"
	"sync"
)

// Set holds one Limiter per key, created on first use. sift keys it by
// upstream host so each engine is paced independently.
type Set struct {
	mu       sync.Mutex
	rps      float64
	jitter   float64
	limiters map[string]*Limiter
}

// NewSet returns a Set whose limiters share rps and jitter.
func NewSet(rps, jitter float64) *Set {
	return &Set{
		rps:      rps,
		jitter:   jitter,
		limiters: make(map[string]*Limiter),
	}
}

// Get returns the limiter for key, creating it if needed.
func (s *Set) Get(key string) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = NewLimiter(s.rps, s.jitter)
		s.limiters[key] = l
	}
	return l
}

// Wait blocks on the limiter for key.
func (s *Set) Wait(ctx context.Context, key string) error {
	return s.Get(key).Wait(ctx)
}

// Len reports how many keys have been seen.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
