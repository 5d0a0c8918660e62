// Package server exposes one isolate over HTTP: JSON endpoints for the
// setup/mutate/yield surface, a CBOR snapshot endpoint, and a websocket
// stream of applied mutations.
package server

import (
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/warden/isolate"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("warden.server")

// Server wraps a running isolate with the HTTP surface and the handle
// TTL sweeper.
type Server struct {
	worker  *Worker
	handles *HandleStore
	mux     *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	handleTTL  time.Duration
	sweepEvery time.Duration
}

// WithHandleTTL sets how long an untouched handle survives and how
// often the sweeper runs.
func WithHandleTTL(ttl, sweepEvery time.Duration) Option {
	return func(c *serverConfig) {
		c.handleTTL = ttl
		c.sweepEvery = sweepEvery
	}
}

// New creates a Server wrapping the given isolate.
func New(iso *isolate.Isolate, opts ...Option) *Server {
	cfg := &serverConfig{
		handleTTL:  30 * time.Minute,
		sweepEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker(iso)
	handles := NewHandleStore(iso.Heap())

	s := &Server{
		worker:  worker,
		handles: handles,
		mux:     http.NewServeMux(),
	}

	svc := NewService(worker, handles)
	svc.register(s.mux)
	s.mux.HandleFunc("GET /v1/watch", svc.watch)

	s.stopSweeper = handles.StartSweeper(cfg.sweepEvery, cfg.handleTTL)
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Infof("warden server listening on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

// Close stops the background sweeper. The isolate itself is owned by
// the caller and closed separately.
func (s *Server) Close() {
	s.stopSweeper()
}
