package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("p1", 3, 1), "token %d", i)
	}
	assert.False(t, l.Allow("p1", 3, 1))
	assert.True(t, l.Allow("p2", 3, 1), "keys have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("p1", 3, 1))
	assert.False(t, l.Allow("p1", 3, 1))

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("p1", 3, 1))
	}
	assert.False(t, l.Allow("p1", 3, 1), "refill is capped at capacity")
}

func TestLimiter_Disabled(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("p", 0, 0))
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_PruneIdle(t *testing.T) {
	now := time.Unix(0, 0)
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("q", 1, 0))
	assert.False(t, l.Allow("q", 1, 0))
	now = now.Add(time.Minute)
	assert.True(t, l.Allow("r", 1, 0))
	assert.Equal(t, 2, l.Len())

	assert.Equal(t, 0, l.Prune(2*time.Minute))
	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, l.Prune(time.Minute), "only q has been idle for a minute")
	assert.Equal(t, 1, l.Len())

	assert.True(t, l.Allow("q", 1, 0), "a pruned key starts with a full bucket")
}
