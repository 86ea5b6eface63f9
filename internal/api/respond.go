// ABOUTME: JSON response helpers shared by every handler.
// ABOUTME: Errors are logged server-side; clients only see a short message.
package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError sends {"success": false, "error": message}.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		logging.Error().Int("status", status).Str("error", logging.Sanitize(err.Error())).Msg("API error")
	}
	respondJSON(w, status, errorResponse{Success: false, Error: message})
}
