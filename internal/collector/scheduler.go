package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type SchedulerConfig struct {
	Interval time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: 5 * time.Second,
	}
}

// Scheduler runs the fetch, store, broadcast cycle on a fixed interval.
// Cycles never overlap, so broadcasts reach subscribers in order.
type Scheduler struct {
	fetcher Fetcher
	store   SnapshotStore
	hub     Broadcaster
	config  SchedulerConfig
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

func NewScheduler(fetcher Fetcher, st SnapshotStore, hub Broadcaster, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		fetcher: fetcher,
		store:   st,
		hub:     hub,
		config:  cfg,
		logger:  logger,
	}
}

// Start blocks until ctx is cancelled. A second concurrent Start returns
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("broadcast loop started", "interval", s.config.Interval)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("broadcast loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single cycle. Panics are recovered so one bad cycle
// cannot end the loop.
func (s *Scheduler) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("broadcast cycle panicked", "panic", r)
		}
	}()

	snap := s.fetcher.Fetch(ctx)
	if snap == nil {
		s.logger.Warn("fetcher returned no snapshot, skipping cycle")
		return
	}
	s.store.Store(snap)
	n := s.hub.Broadcast(snap)
	s.logger.Debug("broadcast cycle complete", "pods", snap.PodCount, "subscribers", n)
}
