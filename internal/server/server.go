// Package server exposes the relay over HTTP and WebSocket.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/scenesync/internal/relay"
)

// Config holds server settings.
type Config struct {
	Addr string
	// StaticDir, when set, is served at the root for the interactive client.
	StaticDir string
	Logger    *slog.Logger
}

// Server routes the request/response surface and the push channel onto one
// listener.
type Server struct {
	relay    *relay.Relay
	logger   *slog.Logger
	mux      *http.ServeMux
	http     *http.Server
	upgrader websocket.Upgrader
}

// New creates a server around the given relay.
func New(r *relay.Relay, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		relay:  r,
		logger: logger.With("component", "server"),
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/scene", s.handleScene)
	s.mux.HandleFunc("/api/elements", s.handleElements)
	s.mux.HandleFunc("/api/elements/", s.handleElement)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/export/result", s.handleExportResult)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("/metrics", promhttp.Handler())
	if cfg.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
