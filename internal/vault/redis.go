package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/resilience"
)

// KV is the subset of the redis client the adapter needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Rename(ctx context.Context, from, to string) error
}

// RedisAdapter stores cache files as Redis keys named prefix+path. Every call
// goes through a circuit breaker so an unavailable server fails fast.
type RedisAdapter struct {
	kv      KV
	prefix  string
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewRedisAdapter(kv KV, prefix string, breaker *resilience.CircuitBreaker, logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{Logger: logger})
	}
	return &RedisAdapter{kv: kv, prefix: prefix, breaker: breaker, logger: logger.With("component", "redis-adapter")}
}

func (a *RedisAdapter) key(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return a.prefix + path, nil
}

func (a *RedisAdapter) Exists(ctx context.Context, path string) (bool, error) {
	key, err := a.key(path)
	if err != nil {
		return false, err
	}
	var ok bool
	err = a.breaker.Execute(func() error {
		var err error
		ok, err = a.kv.Exists(ctx, key)
		return err
	})
	return ok, err
}

func (a *RedisAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	key, err := a.key(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	missing := false
	err = a.breaker.Execute(func() error {
		var err error
		data, err = a.kv.Get(ctx, key)
		if redis.IsNilError(err) {
			missing = true
			return nil
		}
		return err
	})
	if missing {
		return nil, fmt.Errorf("read %s: %w", path, os.ErrNotExist)
	}
	return data, err
}

func (a *RedisAdapter) Write(ctx context.Context, path string, data []byte) error {
	key, err := a.key(path)
	if err != nil {
		return err
	}
	return a.breaker.Execute(func() error {
		return a.kv.Set(ctx, key, data)
	})
}

// Mkdir is a no-op; Redis keys have no directories.
func (a *RedisAdapter) Mkdir(ctx context.Context, path string) error {
	_, err := a.key(path)
	return err
}

func (a *RedisAdapter) Remove(ctx context.Context, path string) error {
	key, err := a.key(path)
	if err != nil {
		return err
	}
	return a.breaker.Execute(func() error {
		return a.kv.Del(ctx, key)
	})
}

func (a *RedisAdapter) Rename(ctx context.Context, from, to string) error {
	src, err := a.key(from)
	if err != nil {
		return err
	}
	dst, err := a.key(to)
	if err != nil {
		return err
	}
	return a.breaker.Execute(func() error {
		return a.kv.Rename(ctx, src, dst)
	})
}
