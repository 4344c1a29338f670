// Package redisstore wraps the Redis operations used by the result cache and
// its cell index.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/zoning-relay/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	c := &Client{rdb: rdb}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the value at key; found is false for a missing key.
func (c *Client) Get(ctx context.Context, key string) (val []byte, found bool, err error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		return nil, false, nil
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return b, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return n, nil
}

// SetIndexed stores val at key and adds key to every set in setKeys in one
// MULTI/EXEC, refreshing each set's TTL. A reader never sees the value without
// its index entries.
func (c *Client) SetIndexed(ctx context.Context, key string, val []byte, ttl time.Duration, setKeys []string) error {
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, val, ttl)
		for _, k := range setKeys {
			p.SAdd(ctx, k, key)
			if ttl > 0 {
				p.Expire(ctx, k, ttl)
			}
		}
		return nil
	})
	observability.ObserveCacheOp("set_indexed", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q + SADD %d sets (multi): %w", key, len(setKeys), err)
	}
	return nil
}

// ErrEvictContended is returned when the watched sets kept changing for every attempt.
var ErrEvictContended = errors.New("redis evict: index changed during every attempt")

// EvictIndexed deletes every key that is a member of the sets in setKeys and
// removes exactly those members from the sets. The sets are WATCHed, so a
// concurrent SetIndexed either lands before the read (and is evicted) or after
// the EXEC (and keeps both its value and its index entries).
func (c *Client) EvictIndexed(ctx context.Context, setKeys []string, attempts int) (members []string, deleted int64, err error) {
	if len(setKeys) == 0 {
		return nil, 0, nil
	}
	if attempts <= 0 {
		attempts = 1
	}
	start := time.Now()
	defer func() {
		observability.ObserveCacheOp("evict", err, time.Since(start).Seconds())
	}()

	for range attempts {
		members, deleted, err = c.evictOnce(ctx, setKeys)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil {
				return nil, 0, fmt.Errorf("redis evict %d sets: %w", len(setKeys), err)
			}
			return members, deleted, nil
		}
	}
	return nil, 0, ErrEvictContended
}

func (c *Client) evictOnce(ctx context.Context, setKeys []string) ([]string, int64, error) {
	var (
		members []string
		delCmd  *redis.IntCmd
	)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		m, err := tx.SUnion(ctx, setKeys...).Result()
		if err != nil {
			return err
		}
		members = m
		if len(members) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			delCmd = p.Del(ctx, members...)
			for _, k := range setKeys {
				p.SRem(ctx, k, toAny(members)...)
			}
			return nil
		})
		return err
	}, setKeys...)
	if err != nil {
		return nil, 0, err
	}
	if delCmd == nil {
		return members, 0, nil
	}
	return members, delCmd.Val(), nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
