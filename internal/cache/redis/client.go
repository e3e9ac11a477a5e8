// Package redis implements domain cache interfaces using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every cache and lock key when ClientConfig
// leaves Namespace empty.
const DefaultNamespace = "edgefinder"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace is prepended to quote, report and lock keys so several
	// deployments can share one Redis database.
	Namespace   string
	DialTimeout time.Duration
}

// Client wraps a go-redis Client together with the key namespace its caches
// write under.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New creates a Redis client and pings it.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb, ns: namespace(cfg.Namespace)}, nil
}

// options translates cfg into go-redis options. With TLS on, the server
// name is taken from the host part of Addr so certificates verify against
// it.
func options(cfg ClientConfig) (*redis.Options, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid addr %q: %w", cfg.Addr, err)
	}

	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		}
	}
	return opts, nil
}

func namespace(ns string) string {
	ns = strings.Trim(strings.TrimSpace(ns), ":")
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// key joins parts under the client's namespace, e.g. "edgefinder:quote:m1".
func (c *Client) key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
