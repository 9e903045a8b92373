package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a short-lived processing lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a processing lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// MarkWebhookSeen records a webhook delivery for duplicate detection
func (c *Client) MarkWebhookSeen(ctx context.Context, providerTxID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("webhook:seen:%s", providerTxID), "1", ttl).Err()
}

// WasWebhookSeen checks whether a webhook delivery was recorded recently
func (c *Client) WasWebhookSeen(ctx context.Context, providerTxID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("webhook:seen:%s", providerTxID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
