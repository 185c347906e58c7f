package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("2"), 0))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)

	_, ok, _ = s.Get(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type summary struct {
		Trades int    `json:"trades"`
		Net    string `json:"net"`
	}

	require.NoError(t, SetJSON(ctx, s, SummaryKey("u1", ""), summary{Trades: 3, Net: "12.5"}, time.Minute))

	var got summary
	ok, err := GetJSON(ctx, s, "summary:u1:all", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got.Trades)

	require.NoError(t, s.Set(ctx, ProfileKey("u1"), []byte("{broken"), 0))
	ok, err = GetJSON(ctx, s, ProfileKey("u1"), &got)
	require.NoError(t, err)
	assert.False(t, ok)
	_, found, _ := s.Get(ctx, ProfileKey("u1"))
	assert.False(t, found, "corrupt entries are evicted")

	require.NoError(t, Invalidate(ctx, s, SummaryKey("u1", "")))
	ok, _ = GetJSON(ctx, s, SummaryKey("u1", ""), &got)
	assert.False(t, ok)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url", "tl:")
	assert.Error(t, err)

	s, err := NewRedisStore("redis://localhost:6379/0", "tl:")
	require.NoError(t, err)
	assert.Equal(t, "tl:", s.Prefix)
	s.Close()
}
