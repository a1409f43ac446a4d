package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kbquery/domain/graph"
)

// DefaultKeyPrefix namespaces facet entries in a shared Redis.
const DefaultKeyPrefix = "kbquery:facets:"

// RedisClient is the subset of the go-redis client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// RedisFacetCache shares facets between processes. Redis owns expiry.
type RedisFacetCache struct {
	client RedisClient
	prefix string
	logger *zap.Logger
}

// NewRedisFacetCache creates a cache over client
func NewRedisFacetCache(client RedisClient, prefix string, logger *zap.Logger) *RedisFacetCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFacetCache{client: client, prefix: prefix, logger: logger}
}

// NewRedisClient dials addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Get returns cached facets. Redis errors count as a miss.
func (c *RedisFacetCache) Get(ctx context.Context, key string) (*graph.Facets, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("Facet cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var facets graph.Facets
	if err := json.Unmarshal(raw, &facets); err != nil {
		c.logger.Warn("Discarding undecodable facet cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &facets, true
}

// Set stores facets with ttl
func (c *RedisFacetCache) Set(ctx context.Context, key string, facets *graph.Facets, ttl time.Duration) error {
	raw, err := json.Marshal(facets)
	if err != nil {
		return fmt.Errorf("encode facets: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
