package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision describes a key's counter after a Hit.
type Decision struct {
	Count   int
	ResetAt time.Time
}

// Limiter is a fixed-window attempt counter. Callers ask TooManyAttempts
// first and then record the attempt with Hit regardless of the answer.
type Limiter interface {
	TooManyAttempts(ctx context.Context, key string, maxAttempts int) bool
	Hit(ctx context.Context, key string, window time.Duration) Decision
}

type InMemoryLimiter struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

type entry struct {
	count   int
	resetAt time.Time
}

func NewInMemory() *InMemoryLimiter {
	return &InMemoryLimiter{
		items: make(map[string]entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *InMemoryLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(l.now())
	return l.items[key].count >= maxAttempts
}

func (l *InMemoryLimiter) Hit(ctx context.Context, key string, window time.Duration) Decision {
	if window <= 0 {
		window = time.Minute
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(now)
	curr, ok := l.items[key]
	if !ok {
		curr = entry{resetAt: now.Add(window)}
	}
	curr.count++
	l.items[key] = curr
	return Decision{Count: curr.count, ResetAt: curr.resetAt}
}

func (l *InMemoryLimiter) cleanup(now time.Time) {
	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}
}
