package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker in front of Redis.
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

var DefaultBreakerSettings = BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}

// Redis is a Cache backed by a Redis server. Calls go through a circuit
// breaker so an unavailable server costs one fast failure per request
// instead of a dial timeout.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return redis.NewClient(opts), nil
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, bs BreakerSettings, logger zerolog.Logger) *Redis {
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = DefaultBreakerSettings.ConsecutiveFailures
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = DefaultBreakerSettings.OpenTimeout
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &Redis{client: client, prefix: prefix, ttl: ttl, breaker: breaker}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) do(fn func() (interface{}, error)) (interface{}, error) {
	return r.breaker.Execute(fn)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.do(func() (interface{}, error) {
		return r.client.Get(ctx, r.key(key)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v.([]byte), nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.do(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.key(key), value, r.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	_, err := r.do(func() (interface{}, error) {
		return nil, r.client.Del(ctx, full...).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeletePrefix scans for matching keys and deletes them in batches.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := r.do(func() (interface{}, error) {
		iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 200).Iterator()
		batch := make([]string, 0, 200)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				if err := r.client.Del(ctx, batch...).Err(); err != nil {
					return nil, err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			return nil, r.client.Del(ctx, batch...).Err()
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("redis delete prefix: %w", err)
	}
	return nil
}

// State reports the breaker state, for health output.
func (r *Redis) State() string { return r.breaker.State().String() }
