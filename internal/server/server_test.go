package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/inelson/podpulse/internal/clustercache"
	"github.com/inelson/podpulse/internal/config"
	"github.com/inelson/podpulse/internal/models"
	"github.com/inelson/podpulse/internal/stream"
	"github.com/inelson/podpulse/pkg/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeFetcher struct {
	mu         sync.Mutex
	snap       *models.Snapshot
	calls      int
	configured bool
}

func (f *fakeFetcher) Fetch(context.Context) *models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap
}

func (f *fakeFetcher) Configured() bool { return f.configured }

type fakeVisits struct {
	count string
	err   error
}

func (v *fakeVisits) Hit(context.Context) string {
	if v.err != nil {
		return models.NotAvailable
	}
	return v.count
}

func (v *fakeVisits) Ping(context.Context) error { return v.err }

type testServer struct {
	*Server
	cache   *clustercache.Cache
	hub     *stream.Hub
	fetcher *fakeFetcher
}

func newTestServer(visits *fakeVisits) *testServer {
	cfg := &config.Config{HTTPAddr: ":0", Namespace: "default"}
	logger := testLogger()
	cache := clustercache.New(logger)
	hub := stream.NewHub(cache, logger)
	fetcher := &fakeFetcher{
		configured: true,
		snap: models.NewSnapshot([]models.PodEntry{
			{Name: "web-1", Status: "Running", IP: "10.0.0.1", CPU: "0.25 cores", Memory: "64.00 Mi"},
			{Name: "<script>", Status: "Pending", IP: "N/A", CPU: "N/A", Memory: "N/A"},
		}, time.Now()),
	}
	if visits == nil {
		visits = &fakeVisits{count: "7"}
	}
	return &testServer{
		Server:  New(cfg, hub, fetcher, cache, visits, logger),
		cache:   cache,
		hub:     hub,
		fetcher: fetcher,
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestReadyz_BeforeAndAfterFirstStore(t *testing.T) {
	srv := newTestServer(nil)

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before first store, got %d", w.Code)
	}

	srv.cache.Store(models.EmptySnapshot())

	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after store, got %d", w.Code)
	}
}

func TestPodsPage_RendersFetchAndCount(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html content type, got %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"web-1", "10.0.0.1", "0.25 cores", "64.00 Mi", `<strong>7</strong>`, `id="pod-count">2<`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "<td><script></td>") {
		t.Error("pod names must be escaped")
	}
	if srv.fetcher.calls != 1 {
		t.Errorf("expected one synchronous fetch, got %d", srv.fetcher.calls)
	}
}

func TestPodsPage_VisitStoreDown(t *testing.T) {
	srv := newTestServer(&fakeVisits{err: errors.New("connection refused")})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when redis is down, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<strong>N/A</strong>") {
		t.Error("expected N/A visit count")
	}
}

func TestPodsPage_EmptySnapshot(t *testing.T) {
	srv := newTestServer(nil)
	srv.fetcher.snap = models.EmptySnapshot()

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No pods found") {
		t.Error("expected empty-state row")
	}
}

func TestSnapshotEndpoint_ServesCache(t *testing.T) {
	srv := newTestServer(nil)
	srv.cache.Store(models.NewSnapshot([]models.PodEntry{{Name: "cached", Status: "Running", IP: "N/A", CPU: "N/A", Memory: "N/A"}}, time.Now()))

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pods", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body models.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.PodCount != 1 || body.Pods[0].Name != "cached" {
		t.Errorf("unexpected snapshot: %+v", body)
	}
	if srv.fetcher.calls != 0 {
		t.Error("snapshot endpoint must not trigger a fetch")
	}
}

func TestDetailedHealth(t *testing.T) {
	srv := newTestServer(&fakeVisits{err: errors.New("down")})
	srv.cache.Store(models.NewSnapshot(nil, time.Now()))

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	services, ok := body["services"].(map[string]any)
	if !ok {
		t.Fatal("expected services map in health response")
	}
	if services["kubernetes"] != "configured" {
		t.Errorf("expected kubernetes 'configured', got %v", services["kubernetes"])
	}
	if services["redis"] != "unreachable" {
		t.Errorf("expected redis 'unreachable', got %v", services["redis"])
	}
	if body["lastRefresh"] == "never" {
		t.Error("expected a last refresh time after store")
	}
}

func dialStream(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readSnapshot(t *testing.T, ctx context.Context, conn *websocket.Conn) *models.Snapshot {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt event.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Name != event.PodMetrics {
		t.Fatalf("expected pod_metrics event, got %q", evt.Name)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(evt.Payload, &snap); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return &snap
}

func TestStream_CatchUpThenBroadcast(t *testing.T) {
	srv := newTestServer(nil)
	srv.cache.Store(models.NewSnapshot([]models.PodEntry{{Name: "tick-k"}}, time.Now()))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialStream(t, ctx, ts.URL)
	defer conn.CloseNow()

	first := readSnapshot(t, ctx, conn)
	if first.PodCount != 1 || first.Pods[0].Name != "tick-k" {
		t.Fatalf("expected cached snapshot on connect, got %+v", first)
	}

	next := models.NewSnapshot([]models.PodEntry{{Name: "tick-k1"}, {Name: "tick-k1b"}}, time.Now())
	if n := srv.hub.Broadcast(next); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	second := readSnapshot(t, ctx, conn)
	if second.PodCount != 2 || second.Pods[0].Name != "tick-k1" {
		t.Errorf("expected broadcast snapshot, got %+v", second)
	}
}

func TestStream_DisconnectUnregisters(t *testing.T) {
	srv := newTestServer(nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialStream(t, ctx, ts.URL)
	readSnapshot(t, ctx, conn)

	if srv.hub.Len() != 1 {
		t.Fatalf("expected 1 client, got %d", srv.hub.Len())
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.After(3 * time.Second)
	for srv.hub.Len() != 0 {
		select {
		case <-deadline:
			t.Fatalf("client still registered after disconnect, total %d", srv.hub.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
