package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUGetSetAndEviction(t *testing.T) {
	ctx := context.Background()
	l := NewLRU(2)

	l.Set(ctx, "a", 1, 0)
	l.Set(ctx, "b", 2, 0)
	l.Set(ctx, "c", 3, 0) // evicts "a", the least-recently-used

	_, ok := l.Get(ctx, "a")
	assert.False(t, ok)

	v, ok := l.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = l.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRUExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewLRU(10)
	l.Set(ctx, "k", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)
	_, ok := l.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUDeletePattern(t *testing.T) {
	ctx := context.Background()
	l := NewLRU(10)
	l.Set(ctx, "temporal:asof:objecttype:all:main:abc", []int{1}, 0)
	l.Set(ctx, "temporal:asof:objecttype:all:feature:abc", []int{2}, 0)
	l.Set(ctx, "other:key", []int{3}, 0)

	l.DeletePattern(ctx, "temporal:*:*:*:main:*")

	_, ok := l.Get(ctx, "temporal:asof:objecttype:all:main:abc")
	assert.False(t, ok)
	_, ok = l.Get(ctx, "temporal:asof:objecttype:all:feature:abc")
	assert.True(t, ok)
	_, ok = l.Get(ctx, "other:key")
	assert.True(t, ok)
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NewNoop()
	c.Set(ctx, "k", "v", time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestHashParamsStable(t *testing.T) {
	a := HashParams("type=Employee|branch=main")
	b := HashParams("type=Employee|branch=main")
	c := HashParams("type=Employee|branch=feature")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
