// Package redis dials the optional cache backend. The engine is fully
// functional without it; only coverage report caching uses Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"creaturegrc/internal/platform/config"
)

// Client wraps the go-redis client so callers can health-check it.
type Client struct {
	*redis.Client
}

// New dials Redis per cfg. An empty URL means Redis is not configured and
// yields (nil, nil); callers treat a nil client as cache-off.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
