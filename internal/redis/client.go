package redis

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client shared by the event stream, the consumers and the
// feed cache. One client keeps one connection pool.
type Client struct {
	*redis.Client
}

// NewClient creates a new Redis client from the given URL and attaches tracing hooks.
// URL format: redis://[:password@]host:port[/db]
// Example: redis://localhost:6379 or redis://:password@localhost:6379/0
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		// Commands still work without spans.
		log.Printf("[Redis] tracing hooks not installed: %v", err)
	}

	return &Client{Client: client}, nil
}

// Ping verifies the connection to Redis.
// Call this on application startup to fail fast if Redis is unreachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}
