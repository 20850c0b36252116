package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet_TracksHitsAndMisses(t *testing.T) {
	c := New(50 * time.Millisecond)

	_, found := c.Get("user1", "k1")
	assert.False(t, found)

	c.Set("user1", "k1", "v1")
	v, found := c.Get("user1", "k1")
	require.True(t, found)
	assert.Equal(t, "v1", v)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.ItemCount)
}

func TestCache_NamespacesByUser(t *testing.T) {
	c := New(time.Minute)
	c.Set("user1", "k", "u1-value")
	c.Set("user2", "k", "u2-value")

	v1, _ := c.Get("user1", "k")
	v2, _ := c.Get("user2", "k")
	assert.Equal(t, "u1-value", v1)
	assert.Equal(t, "u2-value", v2)
}

func TestCache_InvalidateUser(t *testing.T) {
	c := New(time.Minute)
	c.Set("user1", "a", 1)
	c.Set("user1", "b", 2)
	c.Set("user2", "a", 3)

	c.InvalidateUser("user1")

	_, found := c.Get("user1", "a")
	assert.False(t, found)
	_, found = c.Get("user1", "b")
	assert.False(t, found)
	v, found := c.Get("user2", "a")
	require.True(t, found)
	assert.Equal(t, 3, v)
}

func TestCache_Expires(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Set("user1", "k", "v")
	time.Sleep(30 * time.Millisecond)

	_, found := c.Get("user1", "k")
	assert.False(t, found)
}
