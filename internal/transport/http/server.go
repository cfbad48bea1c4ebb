// Package http provides the HTTP transport layer for ThreadFlow.
//
// Routes (Go 1.22+ method-qualified patterns):
//
//	GET    /health
//	POST   /sessions
//	DELETE /sessions
//	GET    /state
//	POST   /accounts
//	DELETE /accounts/{id}
//	POST   /pillars
//	PUT    /pillars/{id}
//	DELETE /pillars/{id}
//	POST   /generate
//	POST   /voice/samples
//	DELETE /voice/samples/{id}
//	POST   /voice/analyze
//	GET    /pattern
//	PUT    /pattern
//	POST   /queue
//	GET    /queue
//	POST   /scheduled
//	GET    /scheduled
//	DELETE /scheduled/{id}
//	GET    /activity
//	POST   /integrations/threads
//	GET    /ws
//	GET    /metrics
//	GET    /api/stats
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/ai"
	"github.com/beeziehmf/threadyflow-app/internal/config"
	"github.com/beeziehmf/threadyflow-app/internal/metrics"
	"github.com/beeziehmf/threadyflow-app/internal/publish"
	"github.com/beeziehmf/threadyflow-app/internal/store"
	transportws "github.com/beeziehmf/threadyflow-app/internal/transport/websocket"
)

// Server wraps the stdlib HTTP server with ThreadFlow route wiring.
type Server struct {
	inner *http.Server
}

// New builds a Server over the content store. generator and connector may be
// nil; the corresponding endpoints then answer 501.
// The caller is responsible for calling ListenAndServe / Shutdown.
func New(st *store.Store, generator ai.Generator, connector publish.Connector, cfg *config.Config, reg *metrics.Registry) *Server {
	h := &Handler{store: st, generator: generator, connector: connector}
	ws := &transportws.Handler{Store: st}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.health)

	// Session lifecycle
	mux.HandleFunc("POST /sessions", h.signIn)
	mux.HandleFunc("DELETE /sessions", h.signOut)
	mux.HandleFunc("GET /state", h.state)

	// Accounts
	mux.HandleFunc("POST /accounts", h.addAccount)
	mux.HandleFunc("DELETE /accounts/{id}", h.removeAccount)

	// Content pillars
	mux.HandleFunc("POST /pillars", h.addPillar)
	mux.HandleFunc("PUT /pillars/{id}", h.updatePillar)
	mux.HandleFunc("DELETE /pillars/{id}", h.removePillar)

	// AI generation and brand voice
	mux.HandleFunc("POST /generate", h.generate)
	mux.HandleFunc("POST /voice/samples", h.addVoiceSample)
	mux.HandleFunc("DELETE /voice/samples/{id}", h.removeVoiceSample)
	mux.HandleFunc("POST /voice/analyze", h.analyzeVoice)

	// Weekly availability pattern
	mux.HandleFunc("GET /pattern", h.getPattern)
	mux.HandleFunc("PUT /pattern", h.setPattern)

	// Backlog queue
	mux.HandleFunc("POST /queue", h.enqueue)
	mux.HandleFunc("GET /queue", h.listQueue)

	// Calendar
	mux.HandleFunc("POST /scheduled", h.scheduleThread)
	mux.HandleFunc("GET /scheduled", h.listScheduled)
	mux.HandleFunc("DELETE /scheduled/{id}", h.unschedule)

	// Activity feed
	mux.HandleFunc("GET /activity", h.activity)

	// Platform integrations
	mux.HandleFunc("POST /integrations/threads", h.connectThreads)

	// WebSocket push
	mux.Handle("GET /ws", ws)

	// Metrics (Prometheus text format)
	if reg != nil && cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", reg.Handler())
	}

	// Stats API
	mux.HandleFunc("GET /api/stats", h.stats(reg))

	// Build middleware chain: CORS → body cap → metrics → logging → auth → rate-limit
	rps := 100.0
	burst := 200

	var handler http.Handler = mux
	handler = chain(handler,
		CORSMiddleware,
		MaxBodyMiddleware,
		MetricsMiddleware(reg),
		LoggingMiddleware,
		AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled),
		RateLimitMiddleware(rps, burst),
	)

	return &Server{
		inner: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe starts the server on the given address (e.g. ":8080").
// It returns when the server stops or encounters an error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
