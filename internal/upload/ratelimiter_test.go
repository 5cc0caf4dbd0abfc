package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestRateLimiterAdmitsUpToMax(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rl := NewRateLimiter(2, time.Minute, clock)

	ok, _ := rl.Allow()
	assert.True(t, ok)
	ok, _ = rl.Allow()
	assert.True(t, ok)
	ok, wait := rl.Allow()
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestRateLimiterWindowSlidesForward(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rl := NewRateLimiter(1, time.Minute, clock)

	ok, _ := rl.Allow()
	assert.True(t, ok)
	ok, _ = rl.Allow()
	assert.False(t, ok)

	clock.now = clock.now.Add(time.Minute + time.Second)
	ok, _ = rl.Allow()
	assert.True(t, ok)
}
