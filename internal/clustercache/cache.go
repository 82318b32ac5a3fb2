package clustercache

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/inelson/podpulse/internal/models"
)

// Cache holds the most recent pod snapshot. Writers replace the snapshot
// wholesale, so readers never observe a partially built value.
type Cache struct {
	snapshot atomic.Pointer[models.Snapshot]
	stored   atomic.Bool
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Cache {
	c := &Cache{logger: logger}
	c.snapshot.Store(models.EmptySnapshot())
	return c
}

// Load returns the current snapshot, or the empty snapshot before the first Store.
func (c *Cache) Load() *models.Snapshot {
	return c.snapshot.Load()
}

func (c *Cache) Store(s *models.Snapshot) {
	if s == nil {
		return
	}
	c.snapshot.Store(s)
	if !c.stored.Swap(true) {
		c.logger.Info("cluster cache ready", "pods", s.PodCount)
	}
}

// IsReady reports whether at least one snapshot has been stored.
func (c *Cache) IsReady() bool {
	return c.stored.Load()
}

// Age is the time since the cached snapshot was fetched. Zero before the
// first successful fetch.
func (c *Cache) Age() time.Duration {
	s := c.Load()
	if s.FetchedAt.IsZero() {
		return 0
	}
	return time.Since(s.FetchedAt)
}

func (c *Cache) FetchedAt() time.Time {
	return c.Load().FetchedAt
}
