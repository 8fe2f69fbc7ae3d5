package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int](10 * time.Second)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(10 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCache_SetSweepsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](time.Second)
	c.now = func() time.Time { return now }

	c.Set("old", "x")
	now = now.Add(2 * time.Second)
	c.Set("new", "y")

	assert.Equal(t, 1, c.Len())
}

func TestCache_Disabled(t *testing.T) {
	c := New[int](0)
	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int](time.Minute)
	c.Set("wss://a,wss://b", 1)
	c.Set("wss://c", 2)

	c.Invalidate("wss://b")
	_, ok := c.Get("wss://a,wss://b")
	assert.False(t, ok)
	_, ok = c.Get("wss://c")
	assert.True(t, ok)

	c.Invalidate("")
	assert.Equal(t, 0, c.Len())
}
