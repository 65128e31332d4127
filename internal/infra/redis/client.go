package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// commands is the subset of go-redis used by the publisher and lock.
type commands interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Client wraps the Redis connection used for event delivery and locking.
type Client struct {
	rdb *redis.Client
	cfg Config
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// Stream receives published watch events.
	Stream string `yaml:"stream"`
	// StreamMaxLen caps the stream length (approximate trimming, 0 = unbounded).
	StreamMaxLen int64 `yaml:"stream_max_len"`
	// LockKey guards the block pipeline against concurrent instances.
	LockKey string        `yaml:"lock_key"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.Stream == "" {
		cfg.Stream = "blockwatch:events"
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "blockwatch:pipeline"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, cfg: cfg}, nil
}

// Publisher returns a stream publisher for the configured stream.
func (c *Client) Publisher() *Publisher {
	return newPublisher(c.rdb, c.cfg.Stream, c.cfg.StreamMaxLen)
}

// Lock returns the pipeline lock for the configured key.
func (c *Client) Lock() *Lock {
	return newLock(c.rdb, c.cfg.LockKey, c.cfg.LockTTL)
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
