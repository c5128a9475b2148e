// Package predcache caches prediction results keyed by profile and artifacts.
package predcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/metrics"
	"github.com/theirongolddev/emiscope/internal/profile"
)

const keyPrefix = "emiscope:pred:"

// Cache stores decisions by key.
type Cache interface {
	Get(ctx context.Context, key string) (inference.Decision, bool, error)
	Set(ctx context.Context, key string, d inference.Decision, ttl time.Duration) error
	Close() error
}

// Key derives the cache key for a task over a profile. The profile is
// serialized with its fixed field order, so equal profiles give equal keys.
func Key(task string, p profile.RawProfile, fingerprint string) string {
	data, _ := json.Marshal(p)
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(data)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Redis is a Cache backed by a redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the server at url, e.g. redis://localhost:6379/0.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	return &Redis{client: redis.NewClient(opts)}, nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(c *redis.Client) *Redis {
	return &Redis{client: c}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get implements Cache. A missing key is a miss, not an error.
func (r *Redis) Get(ctx context.Context, key string) (inference.Decision, bool, error) {
	var d inference.Decision
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return d, false, nil
	}
	if err != nil {
		return d, false, err
	}
	d, err = inference.DecodeDecision(val)
	if err != nil {
		return d, false, fmt.Errorf("reading cached decision: %w", err)
	}
	d.Cached = true
	return d, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, d inference.Decision, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Close implements Cache.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (inference.Decision, bool, error) {
	return inference.Decision{}, false, nil
}

func (Nop) Set(context.Context, string, inference.Decision, time.Duration) error { return nil }

func (Nop) Close() error { return nil }

// Open returns a Redis cache for url, or Nop when url is empty.
func Open(url string) (Cache, error) {
	if url == "" {
		return Nop{}, nil
	}
	return NewRedis(url)
}

// Lookup reads key and counts the outcome. Errors are logged and reported as
// a miss.
func Lookup(ctx context.Context, c Cache, log logger.Logger, key string) (inference.Decision, bool) {
	d, ok, err := c.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn("prediction cache read failed", map[string]interface{}{"error": err.Error()})
		metrics.PredictionCache.WithLabelValues("error").Inc()
		return d, false
	case ok:
		metrics.PredictionCache.WithLabelValues("hit").Inc()
	default:
		metrics.PredictionCache.WithLabelValues("miss").Inc()
	}
	return d, ok
}

// Store writes d under key, logging failures.
func Store(ctx context.Context, c Cache, log logger.Logger, key string, d inference.Decision, ttl time.Duration) {
	if err := c.Set(ctx, key, d, ttl); err != nil {
		log.Warn("prediction cache write failed", map[string]interface{}{"error": err.Error()})
		metrics.PredictionCache.WithLabelValues("error").Inc()
	}
}
