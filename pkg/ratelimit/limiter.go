// Package ratelimit admits or rejects actions against fixed windows kept in
// the shared presence store, so the limit holds across all server processes.
package ratelimit

import (
	"context"
	"log"
	"time"
)

// Counter is the slice of the store the limiter needs: an atomic increment
// plus TTL assignment.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type Limiter struct {
	store Counter
}

func New(store Counter) *Limiter {
	return &Limiter{store: store}
}

// Admit increments the window counter for (action, subject) and reports
// whether the action is within limit. The first increment in a fresh window
// sets the window TTL; INCR is atomic, so a race between two callers leaves
// exactly one of them seeing count 1. On store error the limiter fails open:
// rate limiting is best-effort, never a liveness blocker.
func (l *Limiter) Admit(ctx context.Context, action, subject string, limit int64, window time.Duration) bool {
	key := "rate_limit:" + action + ":" + subject

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		log.Printf("Rate limiter failing open for %s: %v", key, err)
		return true
	}

	if count == 1 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			log.Printf("Failed to set rate window expiry for %s: %v", key, err)
		}
	}

	return count <= limit
}
