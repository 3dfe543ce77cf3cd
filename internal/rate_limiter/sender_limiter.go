// Package ratelimiter throttles sends per participant.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type CleanupOpts struct {
	TTL      time.Duration
	Interval time.Duration
}

// SenderRateLimiter holds one token bucket per sender identity and forgets
// senders idle for longer than TTL.
type SenderRateLimiter struct {
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mu       sync.Mutex
	Cancel   context.CancelFunc
	rate     rate.Limit
	burst    int
	CleanupOpts
}

// NewSenderRateLimiter allows requests sends per window with a burst of
// requests. Call Cancel to stop the cleanup goroutine.
func NewSenderRateLimiter(requests int, window time.Duration, cleanupOpts CleanupOpts) *SenderRateLimiter {
	if cleanupOpts.Interval <= 0 {
		cleanupOpts.Interval = time.Minute
	}
	if cleanupOpts.TTL <= 0 {
		cleanupOpts.TTL = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	rl := &SenderRateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		lastSeen:    make(map[string]time.Time),
		Cancel:      cancel,
		rate:        rate.Every(window / time.Duration(requests)),
		burst:       requests,
		CleanupOpts: cleanupOpts,
	}

	go rl.cleanup(ctx)

	return rl
}

func (rl *SenderRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()

			for id, ls := range rl.lastSeen {
				if time.Since(ls) > rl.TTL {
					delete(rl.limiters, id)
					delete(rl.lastSeen, id)
				}
			}

			rl.mu.Unlock()
		}
	}
}

// Allow reports whether sender may send now and consumes a token if so.
func (rl *SenderRateLimiter) Allow(sender string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.limiters[sender]
	if !ok {
		bucket = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[sender] = bucket
	}

	rl.lastSeen[sender] = time.Now()
	return bucket.Allow()
}

// Tracked reports how many senders currently hold a bucket.
func (rl *SenderRateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
