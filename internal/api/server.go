// Package api exposes the retrieval pipeline over a JSON HTTP API.
//
// Routes:
//
//	POST /api/v1/search                   hybrid search
//	POST /api/v1/ask                      search plus cited answer
//	POST /api/v1/documents                ingest a document (unapproved)
//	POST /api/v1/documents/{id}/approve   approve and rebuild
//	POST /api/v1/rebuild                  force a full index rebuild
//	GET  /health                          liveness
//	GET  /ready                           readiness (db + corpus loaded)
//
// Health probes bypass the middleware stack so orchestrators are never
// rate limited.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   log.Logger
	Searcher Searcher // Required
	Answerer Answerer // Optional: nil disables /api/v1/ask
	Ingestor Ingestor // Optional: nil disables document management

	Pool     *pgxpool.Pool    // Optional: enables db check in /ready
	Snapshot *corpus.Snapshot // Optional: enables corpus info in /ready

	TrustProxy bool    // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateRPS    float64 // Tokens refilled per second per IP (0 = default 10)
	RateBurst  int     // Rate limiter burst size per IP (0 = default 30)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	sh := &searchHandler{searcher: cfg.Searcher, answerer: cfg.Answerer, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", sh.search)
	mux.HandleFunc("POST /api/v1/ask", sh.ask)

	if cfg.Ingestor != nil {
		dh := &documentHandler{ingestor: cfg.Ingestor, logger: logger}
		mux.HandleFunc("POST /api/v1/documents", dh.create)
		mux.HandleFunc("POST /api/v1/documents/{id}/approve", dh.approve)
		mux.HandleFunc("POST /api/v1/rebuild", dh.rebuild)
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID runs before Logging so request_id is in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, cfg.Snapshot, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
