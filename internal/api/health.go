package api

import (
	"net/http"

	"mrsh/internal/db"
)

type HealthHandler struct {
	database *db.DB
}

func NewHealthHandler(database *db.DB) *HealthHandler {
	return &HealthHandler{database: database}
}

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
}

// GET /health reports 503 when the database cannot be queried.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	version, err := h.database.MigrationVersion(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "error"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok", SchemaVersion: version})
}
