package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds the Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Client embeds the go-redis client so callers can use it directly.
type Client struct {
	*goredis.Client
}

// NewClient connects to Redis and verifies the connection with a PING.
func NewClient(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Client{Client: rdb}, nil
}

// EnsureGroup creates the consumer group (and the stream) unless it already exists.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}
