package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverline/coverline/internal/log"
)

// health is a liveness probe for container orchestrators.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readiness reports whether the database is reachable. A nil pool always
// reads as ready so the handler works in wiring-only tests.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				writeError(w, logger, http.StatusServiceUnavailable, "not_ready", "database unreachable")
				return
			}
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ready"})
	}
}
