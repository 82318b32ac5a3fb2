package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/inelson/podpulse/internal/models"
	"github.com/inelson/podpulse/pkg/event"
)

const (
	eventSource    = "podpulse"
	sendBufferSize = 16
)

var (
	ErrSendBufferFull = errors.New("client send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// Subscriber receives encoded pod_metrics events. Deliver must not block.
type Subscriber interface {
	ID() string
	Deliver(data []byte) error
}

// SnapshotSource supplies the snapshot sent to a subscriber when it joins.
type SnapshotSource interface {
	Load() *models.Snapshot
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	source      SnapshotSource
	logger      *slog.Logger
}

type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(source SnapshotSource, logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		source:      source,
		logger:      logger,
	}
}

// Register wraps a websocket connection in a Client and subscribes it.
func (h *Hub) Register(ctx context.Context, conn *websocket.Conn) *Client {
	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ctx:    cctx,
		cancel: cancel,
	}
	h.Subscribe(c)
	return c
}

func (h *Hub) Unregister(c *Client) {
	if h.Unsubscribe(c) {
		c.cancel()
	}
}

// Subscribe adds s and immediately delivers the current cached snapshot to it.
// The catch-up send happens under the write lock so a concurrent broadcast
// cannot reach s before it.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers[s] = struct{}{}
	h.logger.Info("client connected", "client", s.ID(), "total", len(h.subscribers))

	data, err := encode(h.source.Load())
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}
	if err := s.Deliver(data); err != nil {
		h.logger.Warn("initial snapshot not delivered", "client", s.ID(), "error", err)
	}
}

// Unsubscribe removes s. It reports whether s was subscribed.
func (h *Hub) Unsubscribe(s Subscriber) bool {
	h.mu.Lock()
	_, existed := h.subscribers[s]
	delete(h.subscribers, s)
	total := len(h.subscribers)
	h.mu.Unlock()
	if existed {
		h.logger.Info("client disconnected", "client", s.ID(), "total", total)
	}
	return existed
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast sends snap to every current subscriber and returns the number of
// delivery attempts. Failed deliveries are logged and skipped.
func (h *Hub) Broadcast(snap *models.Snapshot) int {
	data, err := encode(snap)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return 0
	}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	failed := 0
	for _, s := range subs {
		if err := s.Deliver(data); err != nil {
			failed++
			h.logger.Warn("dropping broadcast", "client", s.ID(), "error", err)
		}
	}
	h.logger.Debug("broadcast pod metrics", "pods", snap.PodCount, "subscribers", len(subs), "failed", failed)
	return len(subs)
}

func encode(snap *models.Snapshot) ([]byte, error) {
	e, err := event.New(event.PodMetrics, eventSource, snap)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func (c *Client) ID() string {
	return c.id
}

// Deliver queues data for the write pump without blocking.
func (c *Client) Deliver(data []byte) error {
	if c.ctx.Err() != nil {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) Conn() *websocket.Conn {
	return c.conn
}
