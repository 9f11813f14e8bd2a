// Package cache provides a Redis read-through cache for resolved lineages.
//
// A lineage resolved from a token never changes once written, since
// contributions are append-only, so entries only expire through their TTL.
// Truncated lineages are never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mesh-intelligence/vault/pkg/types"
)

// DefaultTTL applies when a non-positive TTL is configured.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "lineage:"

// Resolver is the lineage source the cache sits in front of.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*types.Lineage, error)
}

// LineageCache implements Resolver by consulting Redis before the
// wrapped Resolver. Redis failures are logged and fall through to the
// wrapped Resolver.
type LineageCache struct {
	client *redis.Client
	next   Resolver
	ttl    time.Duration
	log    *slog.Logger
}

// Open parses a redis:// URL and verifies the server answers.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// New wraps next with a cache stored in client.
func New(client *redis.Client, next Resolver, ttl time.Duration, log *slog.Logger) *LineageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &LineageCache{client: client, next: next, ttl: ttl, log: log}
}

func key(token string) string {
	return keyPrefix + token
}

// Resolve returns the cached lineage for token, resolving and storing it
// on a miss.
func (c *LineageCache) Resolve(ctx context.Context, token string) (*types.Lineage, error) {
	raw, err := c.client.Get(ctx, key(token)).Bytes()
	switch {
	case err == nil:
		var l types.Lineage
		if err := json.Unmarshal(raw, &l); err == nil {
			return &l, nil
		}
		c.log.Warn("discarding unreadable cached lineage", "token", token)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("lineage cache read failed", "token", token, "error", err)
	}

	l, err := c.next.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if l.Truncated {
		return l, nil
	}

	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal lineage: %w", err)
	}
	if err := c.client.Set(ctx, key(token), data, c.ttl).Err(); err != nil {
		c.log.Warn("lineage cache write failed", "token", token, "error", err)
	}
	return l, nil
}

// Close closes the Redis client.
func (c *LineageCache) Close() error {
	return c.client.Close()
}
