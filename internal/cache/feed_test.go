package cache

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jazzfeed/internal/model"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	// DB 1 keeps test keys away from dev data
	opts.DB = 1

	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestRedisFeedCache_SetGetInvalidate(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	feedCache := NewFeedCache(client)

	_, found, err := feedCache.Get(ctx, "v")
	require.NoError(t, err)
	assert.False(t, found)

	name := "Ann"
	entries := []model.FeedEntry{{
		Post:              model.Post{ID: "p1", UID: "a", Text: "hi", Time: "2024-01-01T00:00:00.000Z", Images: []string{}, Likes: []string{"v"}},
		AuthorDisplayName: &name,
		Comments:          []model.Comment{},
		LikedByViewer:     true,
	}}
	for _, uid := range []string{"v", "w"} {
		stored, err := feedCache.Set(ctx, uid, 0, entries)
		require.NoError(t, err)
		require.True(t, stored, uid)
	}

	got, found, err := feedCache.Get(ctx, "v")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entries, got)

	require.NoError(t, feedCache.Invalidate(ctx, "v", "w", "nobody"))
	for _, uid := range []string{"v", "w"} {
		_, found, err := feedCache.Get(ctx, uid)
		require.NoError(t, err)
		assert.False(t, found, uid)
	}
}

func TestRedisFeedCache_SetSkippedAfterInvalidation(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	feedCache := NewFeedCache(client)
	entries := []model.FeedEntry{{Post: model.Post{ID: "p1", UID: "a"}}}

	// A build reads the version, then an invalidation lands before it stores.
	version, err := feedCache.Version(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	require.NoError(t, feedCache.Invalidate(ctx, "v"))

	stored, err := feedCache.Set(ctx, "v", version, entries)
	require.NoError(t, err)
	assert.False(t, stored)
	_, found, err := feedCache.Get(ctx, "v")
	require.NoError(t, err)
	assert.False(t, found)

	// A build that starts after the invalidation stores normally.
	version, err = feedCache.Version(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	stored, err = feedCache.Set(ctx, "v", version, entries)
	require.NoError(t, err)
	assert.True(t, stored)
	_, found, err = feedCache.Get(ctx, "v")
	require.NoError(t, err)
	assert.True(t, found)
}
