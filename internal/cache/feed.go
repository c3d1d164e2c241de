package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"jazzfeed/internal/model"
)

const (
	// FeedCachePrefix is the key prefix for assembled feed snapshots
	FeedCachePrefix = "feed:user:"

	// FeedVersionPrefix is the key prefix for the per-viewer invalidation counter
	FeedVersionPrefix = "feed:ver:"

	// FeedCacheTTL bounds how long a snapshot can outlive a missed invalidation
	FeedCacheTTL = 5 * time.Minute
)

// FeedCache stores the last assembled feed per viewer. The worker invalidates a
// viewer whenever an event can change what that viewer sees.
//
// Every invalidation bumps the viewer's version. A build reads the version before it
// starts and stores its snapshot only if the version is unchanged, so a build that
// raced an invalidation never overwrites it with older data.
type FeedCache interface {
	// Get returns the cached entries, or found=false on a miss.
	Get(ctx context.Context, uid string) (entries []model.FeedEntry, found bool, err error)

	// Version returns the viewer's invalidation counter (0 before the first one).
	Version(ctx context.Context, uid string) (int64, error)

	// Set stores entries with FeedCacheTTL if the viewer's version still equals
	// version. stored=false means an invalidation happened in between.
	Set(ctx context.Context, uid string, version int64, entries []model.FeedEntry) (stored bool, err error)

	// Invalidate bumps the versions and deletes the snapshots of every uid in one
	// transaction.
	Invalidate(ctx context.Context, uids ...string) error
}

// setIfVersion writes the snapshot only while the version key still holds ARGV[1].
// KEYS[1] = version key, KEYS[2] = snapshot key, ARGV[2] = data, ARGV[3] = ttl ms.
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if (current or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisFeedCache implements FeedCache with one JSON string and one counter per viewer.
type RedisFeedCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFeedCache creates a new FeedCache backed by Redis.
func NewFeedCache(client *redis.Client) FeedCache {
	return &RedisFeedCache{client: client, ttl: FeedCacheTTL}
}

// feedKey returns the Redis key for a user's feed snapshot.
func feedKey(uid string) string {
	return FeedCachePrefix + uid
}

func versionKey(uid string) string {
	return FeedVersionPrefix + uid
}

func (c *RedisFeedCache) Get(ctx context.Context, uid string) ([]model.FeedEntry, bool, error) {
	startTime := time.Now()

	data, err := c.client.Get(ctx, feedKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		log.Printf("[FeedCache] Get FAILED: user=%s err=%v", uid, err)
		return nil, false, fmt.Errorf("get feed snapshot: %w", err)
	}

	var entries []model.FeedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[FeedCache] Get corrupt snapshot: user=%s err=%v", uid, err)
		return nil, false, nil
	}

	log.Printf("[FeedCache] Get HIT: user=%s entries=%d duration=%v", uid, len(entries), time.Since(startTime))
	return entries, true, nil
}

func (c *RedisFeedCache) Version(ctx context.Context, uid string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(uid)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get feed version: %w", err)
	}
	return v, nil
}

func (c *RedisFeedCache) Set(ctx context.Context, uid string, version int64, entries []model.FeedEntry) (bool, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return false, fmt.Errorf("marshal feed snapshot: %w", err)
	}

	res, err := setIfVersion.Run(ctx, c.client,
		[]string{versionKey(uid), feedKey(uid)},
		strconv.FormatInt(version, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		log.Printf("[FeedCache] Set FAILED: user=%s err=%v", uid, err)
		return false, fmt.Errorf("set feed snapshot: %w", err)
	}
	if res == 0 {
		log.Printf("[FeedCache] Set SKIPPED: user=%s version=%d invalidated during build", uid, version)
		return false, nil
	}
	return true, nil
}

func (c *RedisFeedCache) Invalidate(ctx context.Context, uids ...string) error {
	if len(uids) == 0 {
		return nil
	}
	startTime := time.Now()

	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = feedKey(uid)
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, uid := range uids {
			pipe.Incr(ctx, versionKey(uid))
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		log.Printf("[FeedCache] Invalidate FAILED: users=%d err=%v", len(uids), err)
		return fmt.Errorf("invalidate feed snapshots: %w", err)
	}

	log.Printf("[FeedCache] Invalidate OK: users=%d duration=%v", len(uids), time.Since(startTime))
	return nil
}
