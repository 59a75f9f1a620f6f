package api

import (
	"net/http"

	"mrsh/internal/rpc"
)

type ServerInfoHandler struct {
	serverName string
	registry   *rpc.Registry
}

func NewServerInfoHandler(name string, registry *rpc.Registry) *ServerInfoHandler {
	return &ServerInfoHandler{serverName: name, registry: registry}
}

type ServerInfoResponse struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
	Latest   string   `json:"latest"`
}

// GET /mrsh/server/info
func (h *ServerInfoHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ServerInfoResponse{
		Name:     h.serverName,
		Versions: h.registry.Versions(),
		Latest:   h.registry.Latest(),
	})
}
