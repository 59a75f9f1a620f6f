package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mrsh/internal/apierr"
)

// Envelope is the body of every method response.
type Envelope struct {
	Success  bool          `json:"success"`
	Response any           `json:"response,omitempty"`
	Error    *apierr.Error `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("writing response failed", "component", "api", "error", err)
	}
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Response: result})
}

// writeError wraps err in a failure envelope. Method failures use 200 like
// successes; transport-level rejections pass their own status.
func writeError(w http.ResponseWriter, status int, err error) {
	apiErr, _ := apierr.From(err)
	writeJSON(w, status, Envelope{Success: false, Error: apiErr})
}
