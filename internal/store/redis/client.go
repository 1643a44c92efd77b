package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// gzipPrefix marks a compressed payload so readers can transparently
// detect and decompress it. Raw payloads never start with this byte.
const gzipPrefix = 0x1f // matches the gzip magic number, cheap to detect

// gzipThreshold is the payload size above which values are compressed
// before being written.
const gzipThreshold = 1024

// Config configures the Redis transport client.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client is a thin transport wrapper around go-redis: pipelined
// get/set, optional gzip framing, and pub/sub. It carries no
// domain-specific key grammar or TTL policy — that lives in
// internal/cache.
type Client struct {
	rdb *goredis.Client
}

// New creates a Client and pings the server once to fail fast on bad config.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Client{rdb: rdb}, nil
}

// Raw returns the underlying go-redis client for health checks and
// commands this wrapper doesn't expose.
func (c *Client) Raw() *goredis.Client { return c.rdb }

// Encode gzip-compresses payload if it exceeds gzipThreshold, prefixing
// the result so Decode can tell compressed from raw data apart.
func Encode(payload []byte) []byte {
	if len(payload) <= gzipThreshold {
		return payload
	}
	var buf bytes.Buffer
	buf.WriteByte(gzipPrefix)
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(payload)
	_ = zw.Close()
	return buf.Bytes()
}

// Decode reverses Encode, transparently inflating gzip-framed payloads.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != gzipPrefix {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data[1:]))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// KV is one key/value/TTL write, used for pipelined batch sets.
type KV struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// SetMany writes all of kvs in a single pipeline round trip.
func (c *Client) SetMany(ctx context.Context, kvs []KV) error {
	if len(kvs) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for _, kv := range kvs {
		pipe.Set(ctx, kv.Key, Encode(kv.Value), kv.TTL)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("pipelined set (%d keys): %w", len(kvs), err)
	}
	return nil
}

// GetMany reads all of keys in a single pipelined round trip. Missing
// keys are simply absent from the returned map.
func (c *Client) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*goredis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	_, err := pipe.Exec(ctx)
	if err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("pipelined get (%d keys): %w", len(keys), err)
	}

	out := make(map[string][]byte, len(keys))
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue // miss or error — simply absent from result
		}
		decoded, err := Decode(raw)
		if err != nil {
			log.Printf("[redis] decode error for %s: %v", keys[i], err)
			continue
		}
		out[keys[i]] = decoded
	}
	return out, nil
}

// Set writes a single key with TTL, compressing if large.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, Encode(value), ttl).Err()
}

// Get reads a single key, returning (nil, nil) on a cache miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return Decode(raw)
}

// ShadowPrevious moves the current value at key into prevKey (best
// effort — a missing key is not an error) before the caller overwrites
// key with a fresh value, and refreshes prevKey's TTL.
func (c *Client) ShadowPrevious(ctx context.Context, key, prevKey string, prevTTL time.Duration) {
	pipe := c.rdb.Pipeline()
	pipe.Rename(ctx, key, prevKey)
	pipe.Expire(ctx, prevKey, prevTTL)
	_, _ = pipe.Exec(ctx) // rename-of-missing-key errors are expected and ignored
}

// DeletePattern deletes all keys matching pattern (uses SCAN to avoid
// blocking on large keyspaces, unlike KEYS).
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("del matching %s: %w", pattern, err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Publish publishes a message to a pub/sub channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a PubSub handle for the given channel.
func (c *Client) Subscribe(ctx context.Context, channel string) *goredis.PubSub {
	return c.rdb.Subscribe(ctx, channel)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
