package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockNow(t *testing.T) *time.Time {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })
	return &now
}

func TestCache_GetSet(t *testing.T) {
	now := mockNow(t)
	c := NewCache(time.Minute)

	_, ok := c.Get("u1")
	assert.False(t, ok)

	rows := []Record{{OwnerID: "u1", TaskID: "t1"}}
	c.Set("u1", rows)
	got, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, rows, got)

	got[0].TaskID = "changed"
	again, _ := c.Get("u1")
	assert.Equal(t, "t1", again[0].TaskID, "callers get copies")

	*now = now.Add(time.Minute)
	_, ok = c.Get("u1")
	assert.False(t, ok, "entries expire after the TTL")
	assert.Equal(t, 0, c.Len())
}

func TestCache_Invalidate(t *testing.T) {
	mockNow(t)
	c := NewCache(time.Minute)

	c.Set("u1", []Record{{OwnerID: "u1"}})
	c.Set("u2", []Record{{OwnerID: "u2"}})
	c.Invalidate("u1")

	_, ok := c.Get("u1")
	assert.False(t, ok)
	_, ok = c.Get("u2")
	assert.True(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetIfVersion(t *testing.T) {
	mockNow(t)
	c := NewCache(time.Minute)

	v := c.Version("u1")
	c.Invalidate("u1") // a write landed while the read was in progress
	assert.False(t, c.SetIfVersion("u1", []Record{{OwnerID: "u1"}}, v))
	_, ok := c.Get("u1")
	assert.False(t, ok, "stale rows are not cached")

	v = c.Version("u2")
	c.InvalidateAll()
	assert.False(t, c.SetIfVersion("u2", nil, v), "InvalidateAll covers owners never seen before")

	v = c.Version("u1")
	assert.True(t, c.SetIfVersion("u1", []Record{{OwnerID: "u1"}}, v))
	_, ok = c.Get("u1")
	assert.True(t, ok)
}

func TestCache_Sweep(t *testing.T) {
	now := mockNow(t)
	c := NewCache(time.Minute)

	c.Set("u1", nil)
	*now = now.Add(30 * time.Second)
	c.Set("u2", nil)
	*now = now.Add(40 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("u2")
	assert.True(t, ok)
}

func TestNewCache_defaultTTL(t *testing.T) {
	assert.Equal(t, DefaultCacheTTL, NewCache(0).ttl)
}
