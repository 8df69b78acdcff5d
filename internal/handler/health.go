package handler

import (
	"net/http"

	"github.com/ticketgate/gateway/internal/infra"
)

// HealthHandler reports database reachability.
func HealthHandler(db infra.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := infra.HealthCheck(r.Context(), db); err != nil {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
		RespondJSON(w, http.StatusOK, map[string]string{
			"status":   "healthy",
			"database": "ok",
		})
	}
}
