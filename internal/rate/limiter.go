package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config sizes a Window.
type Config struct {
	// Prefix namespaces keys. Defaults to "passgate".
	Prefix string
	// Limit is the number of hits admitted per key and window.
	Limit  int
	Window time.Duration
}

// Window counts hits per key in fixed windows stored in Redis.
type Window struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Window over redisClient. Limit and Window default to 120
// hits per minute.
func New(redisClient redis.UniversalClient, cfg Config) *Window {
	if cfg.Prefix == "" {
		cfg.Prefix = "passgate"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 120
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Window{redis: redisClient, config: cfg}
}

// Allow records one hit for key and reports whether it is within the limit.
func (w *Window) Allow(ctx context.Context, key string) (bool, error) {
	count, err := w.incrementWithTTL(ctx, w.key(key))
	if err != nil {
		return false, err
	}
	return count <= int64(w.config.Limit), nil
}

// Reset clears the window for key.
func (w *Window) Reset(ctx context.Context, key string) error {
	if err := w.redis.Del(ctx, w.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (w *Window) key(key string) string {
	return w.config.Prefix + ":rl:" + key
}

func (w *Window) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Only the first hit starts the window.
	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
