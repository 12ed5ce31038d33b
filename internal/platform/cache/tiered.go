package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Tiered reads from local first and falls back to remote, filling local on a
// remote hit. Remote failures are logged and treated as misses; they never
// fail the caller.
type Tiered struct {
	local  Cache
	remote Cache
	logger zerolog.Logger
}

func NewTiered(local, remote Cache, logger zerolog.Logger) *Tiered {
	return &Tiered{local: local, remote: remote, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := t.local.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := t.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			t.logger.Warn().Err(err).Str("key", key).Msg("remote cache read failed")
		}
		return nil, ErrCacheMiss
	}
	_ = t.local.Set(ctx, key, v)
	return v, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte) error {
	if err := t.local.Set(ctx, key, value); err != nil {
		return err
	}
	if err := t.remote.Set(ctx, key, value); err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("remote cache write failed")
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, keys ...string) error {
	if err := t.local.Delete(ctx, keys...); err != nil {
		return err
	}
	if err := t.remote.Delete(ctx, keys...); err != nil {
		t.logger.Warn().Err(err).Strs("keys", keys).Msg("remote cache delete failed")
	}
	return nil
}

func (t *Tiered) DeletePrefix(ctx context.Context, prefix string) error {
	if err := t.local.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	if err := t.remote.DeletePrefix(ctx, prefix); err != nil {
		t.logger.Warn().Err(err).Str("prefix", prefix).Msg("remote cache prefix delete failed")
	}
	return nil
}
