package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/internal/corpus"
	"github.com/lorekeep/lorekeep/internal/log"
)

// health is the liveness probe. Returns 200 OK with {"status":"ok"}.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the server can actually serve searches: the
// database answers and corpus statistics have been published.
func readiness(pool *pgxpool.Pool, snap *corpus.Snapshot, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"reason": "database unreachable",
				}, logger)
				return
			}
		}

		body := map[string]any{"status": "ready"}
		if snap != nil {
			stats := snap.Load()
			body["corpus_version"] = stats.Version
			body["corpus_chunks"] = stats.ChunkCount
		}
		writeJSON(w, http.StatusOK, body, logger)
	}
}
