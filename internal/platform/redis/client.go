// Package redis opens the go-redis client that backs the submission budget
// counters.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"vouch/internal/platform/config"
)

const healthTimeout = time.Second

type Client struct {
	*redis.Client
}

// New returns nil if the URL is empty (Redis not configured).
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
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
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health pings with its own short deadline so a slow Redis cannot stall
// the health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// RegisterPoolMetrics exposes connection pool gauges sampled at scrape time.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) {
	gauge := func(name, help string, value func(*redis.PoolStats) uint32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vouch_redis_pool_" + name,
			Help: help,
		}, func() float64 {
			return float64(value(c.PoolStats()))
		})
	}
	reg.MustRegister(
		gauge("total_connections", "Connections currently open in the pool.", func(s *redis.PoolStats) uint32 { return s.TotalConns }),
		gauge("idle_connections", "Idle connections in the pool.", func(s *redis.PoolStats) uint32 { return s.IdleConns }),
		gauge("timeouts", "Times a connection could not be taken from the pool in time.", func(s *redis.PoolStats) uint32 { return s.Timeouts }),
	)
}
