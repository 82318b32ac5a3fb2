package visits

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-redis/redis/v8"

	"github.com/inelson/podpulse/internal/models"
)

const DefaultKey = "visitor_count"

var ErrStoreUnavailable = errors.New("visit store unavailable")

// Store is the subset of the Redis client the counter uses.
type Store interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Counter keeps a page visit count in Redis. It is best effort: any store
// failure yields models.NotAvailable instead of an error.
type Counter struct {
	store  Store
	key    string
	logger *slog.Logger
}

// NewRedis connects lazily; an unreachable server only surfaces on Hit.
func NewRedis(addr, key string, logger *slog.Logger) *Counter {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   -1,
	})
	return New(client, key, logger)
}

func New(store Store, key string, logger *slog.Logger) *Counter {
	if key == "" {
		key = DefaultKey
	}
	return &Counter{store: store, key: key, logger: logger}
}

// Incr atomically increments the counter and returns the new value.
func (c *Counter) Incr(ctx context.Context) (int64, error) {
	if c == nil || c.store == nil {
		return 0, ErrStoreUnavailable
	}
	n, err := c.store.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return n, nil
}

// Hit increments the counter and formats the result for display.
func (c *Counter) Hit(ctx context.Context) string {
	n, err := c.Incr(ctx)
	if err != nil {
		if c != nil {
			c.logger.Error("redis error", "error", err)
		}
		return models.NotAvailable
	}
	return humanize.Comma(n)
}

// Ping reports whether the store answers.
func (c *Counter) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return ErrStoreUnavailable
	}
	return c.store.Ping(ctx).Err()
}

func (c *Counter) Close() error {
	if c == nil {
		return nil
	}
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
