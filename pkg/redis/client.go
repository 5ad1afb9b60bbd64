package redis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

// Every key this service writes lives under pd:<purpose>:...
const (
	namespace     = "pd"
	purposeReplay = "idempotency"
	purposeLease  = "lock"
)

var errNotConnected = errors.New("redis client not initialized")

// IdempotencyStore is what the replay middleware needs from Redis.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// commands is the subset of go-redis the client issues.
type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Client backs idempotent replays for the API and the cron-worker lease.
type Client struct {
	cmds  commands
	close func() error
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connection established")
	return &Client{cmds: rdb, close: rdb.Close}, nil
}

// optionsFromConfig prefers PRINTDESK_REDIS_URL; pool and timeout settings
// fill whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	opts.DB = cmp.Or(opts.DB, cfg.DB)
	opts.PoolSize = cmp.Or(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = cmp.Or(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = cmp.Or(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = cmp.Or(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = cmp.Or(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

// Get returns redis.Nil for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.cmds == nil {
		return "", errNotConnected
	}
	return c.cmds.Get(ctx, key).Result()
}

// SetNX reports whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.cmds == nil {
		return false, errNotConnected
	}
	return c.cmds.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.cmds == nil {
		return errNotConnected
	}
	return c.cmds.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	if c.cmds == nil {
		return errNotConnected
	}
	return c.cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// IdempotencyKey names the replay record for one caller-supplied key.
func (c *Client) IdempotencyKey(scope, id string) string {
	return keyFor(purposeReplay, scope, id)
}

// LockKey names a cron-worker lease.
func (c *Client) LockKey(name string) string {
	return keyFor(purposeLease, name)
}

func keyFor(purpose string, parts ...string) string {
	segments := []string{namespace, purpose}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, ":")
}
