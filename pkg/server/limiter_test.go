package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketAllowsUpToCapacity(t *testing.T) {
	b := NewTokenBucket(3, 0)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "fourth call should exhaust a zero-refill bucket of capacity 3")
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := NewTokenBucket(1, 1000) // refill fast enough to observe within the test
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Allow(), "bucket should have refilled at least one token by now")
}

func TestLeakyLimiterEnforcesWindow(t *testing.T) {
	l := NewLeakyLimiter(2, 50*time.Millisecond)

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1), "third call within the window should be rejected")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow(1), "calls outside the window should be forgotten")
}

func TestLeakyLimiterIsPerConnection(t *testing.T) {
	l := NewLeakyLimiter(1, time.Minute)

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(2), "a different connection ID must have its own budget")
	assert.False(t, l.Allow(1))
}

func TestLeakyLimiterForget(t *testing.T) {
	l := NewLeakyLimiter(1, time.Minute)

	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))

	l.Forget(1)
	assert.True(t, l.Allow(1), "forgetting a connection should clear its history")
}

func TestConcurrencyLimiterTryAcquireAndRelease(t *testing.T) {
	c := NewConcurrencyLimiter(2)

	assert.True(t, c.TryAcquire())
	assert.True(t, c.TryAcquire())
	assert.False(t, c.TryAcquire(), "third acquire should fail once both slots are held")

	c.Release()
	assert.True(t, c.TryAcquire(), "releasing a slot should free it up for another acquire")
}
