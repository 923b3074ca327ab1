package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := &Client{
		Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
	}
	return client, mr
}

type countingFinder struct {
	codes map[string]*domain.AffiliateCode
	calls int
}

func (f *countingFinder) GetByCode(_ context.Context, code string) (*domain.AffiliateCode, error) {
	f.calls++
	c, ok := f.codes[code]
	if !ok {
		return nil, domain.NewNotFoundError("code")
	}
	copied := *c
	return &copied, nil
}

func TestCodeCache_GetByCode(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	finder := &countingFinder{codes: map[string]*domain.AffiliateCode{
		"DSAABC12345": {ID: "code-1", AffiliateID: "aff-1", Code: "DSAABC12345", Status: domain.CodeStatusActive, ExpiresAt: &expires},
	}}
	cache := NewCodeCache(client, finder, time.Minute, nil)

	t.Run("Success - Second lookup is served from redis", func(t *testing.T) {
		first, err := cache.GetByCode(ctx, "DSAABC12345")
		require.NoError(t, err)
		second, err := cache.GetByCode(ctx, "DSAABC12345")
		require.NoError(t, err)

		assert.Equal(t, 1, finder.calls)
		assert.Equal(t, first.AffiliateID, second.AffiliateID)
		require.NotNil(t, second.ExpiresAt)
		assert.True(t, expires.Equal(*second.ExpiresAt))

		ttl := mr.TTL(codeKeyPrefix + "DSAABC12345")
		assert.Equal(t, time.Minute, ttl)
	})

	t.Run("Success - Invalidate forces a reload", func(t *testing.T) {
		require.NoError(t, cache.Invalidate(ctx, "DSAABC12345"))
		_, err := cache.GetByCode(ctx, "DSAABC12345")
		require.NoError(t, err)

		assert.Equal(t, 2, finder.calls)
	})

	t.Run("Failure - Missing codes are not cached", func(t *testing.T) {
		_, err := cache.GetByCode(ctx, "NOPE")
		assert.True(t, domain.IsNotFound(err))
		assert.False(t, mr.Exists(codeKeyPrefix+"NOPE"))
	})

	t.Run("Success - Redis outage falls back to source", func(t *testing.T) {
		mr.Close()

		got, err := cache.GetByCode(ctx, "DSAABC12345")
		require.NoError(t, err)
		assert.Equal(t, "code-1", got.ID)
	})
}

func TestClient_DeletePattern(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, codeKeyPrefix+"A", "1", time.Hour))
	require.NoError(t, client.Set(ctx, codeKeyPrefix+"B", "2", time.Hour))
	require.NoError(t, client.Set(ctx, "other:key", "3", time.Hour))

	cache := NewCodeCache(client, &countingFinder{}, 0, nil)
	deleted, err := cache.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.True(t, mr.Exists("other:key"))
}
