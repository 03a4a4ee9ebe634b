// Package valkey provides a Valkey-backed cache driver for deployments that
// share session and conversational state across processes.
package valkey

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/storebotdev/storebot-go/internal/cache"
)

func init() {
	cache.RegisterDriver("valkey", func(config map[string]any) (cache.CacheWithCounter, error) {
		cfg := DefaultConfig()
		if config != nil {
			if err := mapstructure.Decode(config, cfg); err != nil {
				return nil, fmt.Errorf("invalid valkey cache config: %w", err)
			}
		}
		return New(cfg)
	})
}

// Config holds Valkey connection configuration.
type Config struct {
	// Address is the host:port of the Valkey server.
	Address string `mapstructure:"address"`

	// Password is the optional AUTH password.
	Password string `mapstructure:"password"`

	// DB is the database number to select.
	DB int `mapstructure:"db"`

	// DefaultTTLSeconds applies when Set is called with a zero TTL.
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`
}

// DefaultConfig returns sensible defaults for a local Valkey server.
func DefaultConfig() *Config {
	return &Config{
		Address:           "localhost:6379",
		DefaultTTLSeconds: int(cache.TTLNavState / time.Second),
	}
}

// Cache is a Valkey-backed cache. New fails fast when the server is
// unreachable; there is no silent in-memory fallback.
type Cache struct {
	client     valkeygo.Client
	defaultTTL time.Duration
}

// New connects to the configured Valkey server.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress:  []string{cfg.Address},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Address, err)
	}

	defaultTTL := time.Duration(cfg.DefaultTTLSeconds) * time.Second
	if defaultTTL <= 0 {
		defaultTTL = cache.TTLNavState
	}

	return &Cache{client: client, defaultTTL: defaultTTL}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("valkey get failed: %w", err)
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	err := c.client.Do(ctx, c.client.B().Set().
		Key(key).
		Value(valkeygo.BinaryString(value)).
		Ex(ttl).
		Build()).Error()
	if err != nil {
		return fmt.Errorf("valkey set failed: %w", err)
	}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
	if err != nil {
		return fmt.Errorf("valkey del failed: %w", err)
	}
	return nil
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey exists failed: %w", err)
	}
	return n > 0, nil
}

// Increment adds delta to a counter and returns the new value and reset time.
// The TTL is armed when the counter is created and left alone afterwards, so
// the window is fixed from the first increment.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	count, err := c.client.Do(ctx, c.client.B().Incrby().Key(key).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey incrby failed: %w", err)
	}

	if count == delta {
		// First increment in this window
		if err := c.client.Do(ctx, c.client.B().Expire().Key(key).Seconds(int64(ttl/time.Second)).Build()).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("valkey expire failed: %w", err)
		}
		return count, time.Now().Add(ttl), nil
	}

	ms, err := c.client.Do(ctx, c.client.B().Pttl().Key(key).Build()).AsInt64()
	if err != nil || ms < 0 {
		return count, time.Now().Add(ttl), nil
	}
	return count, time.Now().Add(time.Duration(ms) * time.Millisecond), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("valkey get failed: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %q holds non-numeric value: %w", key, err)
	}
	return n, nil
}

// Reset sets a counter to 0.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// Close releases the client connection.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

// Ensure Cache implements CacheWithCounter.
var _ cache.CacheWithCounter = (*Cache)(nil)
