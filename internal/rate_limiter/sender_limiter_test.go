package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstPerSender(t *testing.T) {
	rl := NewSenderRateLimiter(3, time.Minute, CleanupOpts{})
	defer rl.Cancel()

	for i := range 3 {
		assert.True(t, rl.Allow("alice"), "send %d", i)
	}
	assert.False(t, rl.Allow("alice"))

	// Buckets are independent.
	assert.True(t, rl.Allow("bob"))
}

func TestCleanupForgetsIdleSenders(t *testing.T) {
	rl := NewSenderRateLimiter(1, time.Minute, CleanupOpts{
		TTL:      10 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	})
	defer rl.Cancel()

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.Equal(t, 1, rl.Tracked())

	assert.Eventually(t, func() bool { return rl.Tracked() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, rl.Allow("alice"))
}
