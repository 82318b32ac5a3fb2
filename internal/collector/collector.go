package collector

import (
	"context"

	"github.com/inelson/podpulse/internal/models"
)

// Fetcher produces a pod snapshot. Implementations never fail; they fall
// back to a cached snapshot instead.
type Fetcher interface {
	Fetch(ctx context.Context) *models.Snapshot
}

// SnapshotStore is where each cycle's result is kept for late readers.
type SnapshotStore interface {
	Store(s *models.Snapshot)
}

// Broadcaster pushes a snapshot to live subscribers.
type Broadcaster interface {
	Broadcast(s *models.Snapshot) int
}
