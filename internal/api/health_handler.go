package api

import (
	"net/http"

	"github.com/quizgen/quizgen-api/internal/api/shared"
	"github.com/quizgen/quizgen-api/internal/scheduler"
)

// StatsSource reports scheduler load.
type StatsSource interface {
	Stats() scheduler.Stats
	Credentials() *scheduler.CredentialPool
}

// HealthHandler returns a liveness check handler.
func HealthHandler(src StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if src != nil {
			resp.Scheduler = src.Stats()
			resp.Credentials = src.Credentials().Len()
		}
		shared.RespondWithJSON(w, r, http.StatusOK, resp)
	}
}
