package server

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inelson/podpulse/internal/clustercache"
	"github.com/inelson/podpulse/internal/config"
	"github.com/inelson/podpulse/internal/models"
	"github.com/inelson/podpulse/internal/stream"
	"github.com/inelson/podpulse/pkg/api"
	"github.com/inelson/podpulse/web"
)

const (
	wsWriteTimeout = 10 * time.Second
	pingTimeout    = time.Second
)

// Fetcher is the pod source used by the page handler.
type Fetcher interface {
	Fetch(ctx context.Context) *models.Snapshot
	Configured() bool
}

type VisitCounter interface {
	Hit(ctx context.Context) string
	Ping(ctx context.Context) error
}

type Server struct {
	cfg     *config.Config
	router  chi.Router
	hub     *stream.Hub
	fetcher Fetcher
	cache   *clustercache.Cache
	visits  VisitCounter
	page    *template.Template
	logger  *slog.Logger
	http    *http.Server
}

type pageData struct {
	Pods     []models.PodEntry
	PodCount int
	Count    string
}

func New(cfg *config.Config, hub *stream.Hub, fetcher Fetcher, cache *clustercache.Cache, visits VisitCounter, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		fetcher: fetcher,
		cache:   cache,
		visits:  visits,
		page:    template.Must(web.ParseTemplates()),
		logger:  logger,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/", s.handlePods)
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/pods", s.handleSnapshot)
			r.Get("/health", s.handleDetailedHealth)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.cfg.HTTPAddr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.http.Shutdown(ctx)
}

// handlePods renders the page from a fresh fetch. Neither an unavailable
// cluster nor an unavailable visit store fails the request.
func (s *Server) handlePods(w http.ResponseWriter, r *http.Request) {
	count := s.visits.Hit(r.Context())
	snap := s.fetcher.Fetch(r.Context())

	s.logger.Info("rendering page", "pods", snap.PodCount, "visits", count)

	var buf bytes.Buffer
	err := s.page.ExecuteTemplate(&buf, web.PodsPage, pageData{
		Pods:     snap.Pods,
		PodCount: snap.PodCount,
		Count:    count,
	})
	if err != nil {
		s.logger.Error("failed to render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Load())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the first fetch cycle has filled the cache.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cache.IsReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	} else {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{}
	if s.fetcher.Configured() {
		services["kubernetes"] = "configured"
	} else {
		services["kubernetes"] = "not configured"
	}

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := s.visits.Ping(ctx); err != nil {
		services["redis"] = "unreachable"
	} else {
		services["redis"] = "healthy"
	}

	lastRefresh := "never"
	if at := s.cache.FetchedAt(); !at.IsZero() {
		lastRefresh = humanize.Time(at)
	}

	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:      "ok",
		Version:     s.cfg.Version,
		Services:    services,
		Namespace:   s.cfg.Namespace,
		PodCount:    s.cache.Load().PodCount,
		Subscribers: s.hub.Len(),
		LastRefresh: lastRefresh,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	client := s.hub.Register(r.Context(), conn)
	defer s.hub.Unregister(client)

	go s.readPump(client)
	s.writePump(client)
}

// readPump discards inbound frames and unregisters the client once the
// connection is gone.
func (s *Server) readPump(c *stream.Client) {
	defer s.hub.Unregister(c)
	for {
		if _, _, err := c.Conn().Read(c.Context()); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *stream.Client) {
	for {
		select {
		case msg := <-c.Send():
			ctx, cancel := context.WithTimeout(c.Context(), wsWriteTimeout)
			err := c.Conn().Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "client", c.ID(), "error", err)
				return
			}
		case <-c.Context().Done():
			c.Conn().Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write json response", "error", err)
	}
}
