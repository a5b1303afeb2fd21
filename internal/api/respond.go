package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

// respondUpstreamError maps errors to API status codes. Internal
// details are scrubbed from 5xx responses in production; the full
// error is always logged server side.
func (s *Server) respondUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *meta.APIError
	switch {
	case meta.IsNotConfigured(err):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case meta.IsRateLimited(err):
		respondError(w, http.StatusServiceUnavailable,
			"The ad platform API rate limit was reached. Try again in 30-60 minutes.")
	case errors.As(err, &apiErr):
		// remaining upstream errors pass through verbatim
		respondError(w, http.StatusServiceUnavailable, apiErr.Error())
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "not found")
	default:
		logger.Error("request failed", "error", err.Error())
		if s.cfg.IsProduction() {
			respondError(w, http.StatusInternalServerError, "An internal error occurred")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	return json.NewDecoder(r.Body).Decode(dest)
}
