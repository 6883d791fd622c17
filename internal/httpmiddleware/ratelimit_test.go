package httpmiddleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhausts(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "1.2.3.4"), "request %d within capacity", i)
	}
	assert.False(t, l.Allow(ctx, "1.2.3.4"), "capacity exhausted")
	assert.True(t, l.Allow(ctx, "5.6.7.8"), "other callers are unaffected")
}

func TestTokenBucketDefaultCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 2)
	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "a"))
}

func TestRedisLimiterNilClientFailsOpen(t *testing.T) {
	l := NewRedisLimiter(nil, 1)
	assert.True(t, l.Allow(context.Background(), "a"))
	assert.True(t, l.Allow(context.Background(), "a"))
}
