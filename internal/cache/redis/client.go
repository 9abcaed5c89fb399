package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/deepscan/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetScan caches a scan verdict under the hash of its resolved URL. The TTL
// bounds how long a verdict is reused before the URL is re-analyzed.
func (c *Client) SetScan(ctx context.Context, urlHash string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal scan result: %w", err)
	}

	if err := c.client.Set(ctx, scanKey(urlHash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set scan cache: %w", err)
	}

	logger.Debug("Scan result cached", zap.String("url_hash", urlHash))
	return nil
}

// GetScan loads a cached verdict into result, reporting whether it was
// present.
func (c *Client) GetScan(ctx context.Context, urlHash string, result interface{}) (bool, error) {
	data, err := c.client.Get(ctx, scanKey(urlHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get scan cache: %w", err)
	}

	if err := json.Unmarshal(data, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}

	logger.Debug("Scan cache hit", zap.String("url_hash", urlHash))
	return true, nil
}

// InvalidateScans drops every cached verdict.
func (c *Client) InvalidateScans(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "scan:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Scan cache invalidated")
	return nil
}

func scanKey(urlHash string) string {
	return fmt.Sprintf("scan:%s", urlHash)
}
