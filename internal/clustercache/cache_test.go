package clustercache

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/inelson/podpulse/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCache_InitiallyEmpty(t *testing.T) {
	c := New(testLogger())

	snap := c.Load()
	if snap == nil {
		t.Fatal("expected non-nil snapshot before first store")
	}
	if snap.PodCount != 0 || len(snap.Pods) != 0 {
		t.Errorf("expected empty snapshot, got %d pods", snap.PodCount)
	}
	if c.IsReady() {
		t.Error("cache should not be ready before Store")
	}
	if c.Age() != 0 {
		t.Errorf("expected zero age, got %v", c.Age())
	}
}

func TestCache_StoreReplacesSnapshot(t *testing.T) {
	c := New(testLogger())

	first := models.NewSnapshot([]models.PodEntry{{Name: "pod-1"}}, time.Now())
	c.Store(first)
	if c.Load() != first {
		t.Fatal("expected stored snapshot to be returned")
	}
	if !c.IsReady() {
		t.Error("cache should be ready after Store")
	}

	second := models.NewSnapshot([]models.PodEntry{{Name: "pod-1"}, {Name: "pod-2"}}, time.Now())
	c.Store(second)
	if c.Load() != second {
		t.Fatal("expected second snapshot to replace the first")
	}
}

func TestCache_StoreNilKeepsPrevious(t *testing.T) {
	c := New(testLogger())
	snap := models.NewSnapshot([]models.PodEntry{{Name: "pod-1"}}, time.Now())
	c.Store(snap)

	c.Store(nil)

	if c.Load() != snap {
		t.Error("nil store must not clear the cache")
	}
}

func TestCache_AgeTracksFetchTime(t *testing.T) {
	c := New(testLogger())
	c.Store(models.NewSnapshot(nil, time.Now().Add(-time.Minute)))

	if age := c.Age(); age < time.Minute {
		t.Errorf("expected age of at least a minute, got %v", age)
	}
}

func TestCache_ConcurrentReadersAndWriter(t *testing.T) {
	c := New(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := c.Load()
				if s.PodCount != len(s.Pods) {
					t.Errorf("torn snapshot: count %d, pods %d", s.PodCount, len(s.Pods))
					return
				}
			}
		}()
	}

	for j := 0; j < 500; j++ {
		pods := make([]models.PodEntry, j%7)
		c.Store(models.NewSnapshot(pods, time.Now()))
	}
	wg.Wait()
}
