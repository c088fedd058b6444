// Package server exposes the HTTP surface: the client WebSocket endpoint, a
// health endpoint, and Prometheus metrics. Each WebSocket connection gets a
// fresh conversation engine from the configured factory.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vireo-ai/vireo/internal/engine"
	"github.com/vireo-ai/vireo/internal/observe"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second

	// maxFrameSize bounds inbound WebSocket frames. Audio frames from the
	// browser are a few KB; a 1 MiB cap leaves headroom without letting a
	// client exhaust memory.
	maxFrameSize = 1 << 20
)

// Server hosts the WebSocket endpoint and serves one engine per connection.
type Server struct {
	addr       string
	engineName string
	factory    engine.Factory
	metrics    *observe.Metrics
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithMetrics overrides the metrics instance (tests use a private meter).
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server. engineName is reported by the health endpoint.
func New(addr, engineName string, factory engine.Factory, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		engineName: engineName,
		factory:    factory,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed HTTP handler. Exported so tests can serve it
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully. In-flight
// WebSocket sessions are given shutdownTimeout to drain.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"engine": s.engineName,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser clients are served from arbitrary origins during
		// development; auth happens at the reverse proxy.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	eng, err := s.factory()
	if err != nil {
		slog.Error("engine construction failed", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "engine unavailable")
		return
	}

	NewSession(conn, eng, s.metrics).Run(r.Context())
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
