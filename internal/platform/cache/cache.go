// Package cache provides the read-through cache used by the patient service:
// an in-process LRU tier, a Redis tier guarded by a circuit breaker, and a
// tiered cache that combines the two.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value cache. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// GetJSON decodes a cached JSON value into T. Any failure, including a
// corrupt entry, is reported as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	data, err := c.Get(ctx, key)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}

func SetJSON(ctx context.Context, c Cache, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return c.Set(ctx, key, data)
}

// Nop is a Cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, string, []byte) error   { return nil }
func (Nop) Delete(context.Context, ...string) error     { return nil }
func (Nop) DeletePrefix(context.Context, string) error  { return nil }
