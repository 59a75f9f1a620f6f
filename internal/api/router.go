package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mrsh/internal/blob"
	"mrsh/internal/config"
	"mrsh/internal/constants"
	"mrsh/internal/db"
	"mrsh/internal/mediaurl"
	"mrsh/internal/rpc"
	"mrsh/internal/ws"
)

type Server struct {
	router *chi.Mux
	hub    *ws.Hub
}

// Deps are the collaborators the HTTP surface routes to.
type Deps struct {
	DB         *db.DB
	Dispatcher *rpc.Dispatcher
	Auth       rpc.Authorizer
	Hub        *ws.Hub
	// Files is set when images live on the local filesystem and must be
	// served by this process.
	Files *blob.FileStore
}

func NewServer(cfg *config.Config, d Deps) (*Server, error) {
	resolver, err := NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("configuring trusted proxies: %w", err)
	}

	callHandler := NewCallHandler(d.Dispatcher)
	wsHandler := NewWebSocketHandler(d.Hub, d.Dispatcher, d.Auth, cfg.WebSocket.AllowedOrigins)
	serverInfoHandler := NewServerInfoHandler(cfg.Server.Name, d.Dispatcher.Registry())
	healthHandler := NewHealthHandler(d.DB)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.WebSocket.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	r.Route("/"+constants.AppName, func(r chi.Router) {
		r.Get("/server/info", serverInfoHandler.GetInfo)

		r.Route("/api", func(r chi.Router) {
			r.Use(maxBodySizeMiddleware(cfg.API.MaxBodyBytes))
			r.Use(rateLimit(cfg.API.RequestsPerMinute, time.Minute, resolver))
			r.Get("/{method}", callHandler.Serve)
			r.Post("/{method}", callHandler.Serve)
		})

		r.With(rateLimit(cfg.WebSocket.UpgradesPerMinute, time.Minute, resolver)).
			Get("/websocket", wsHandler.ServeWS)
	})

	if d.Files != nil {
		mediaHandler := NewMediaHandler(d.Files)
		r.Get(mediaurl.PathPrefix+"*", mediaHandler.GetObject)
	}

	return &Server{
		router: r,
		hub:    d.Hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown closes every live websocket connection.
func (s *Server) Shutdown() {
	s.hub.Shutdown()
}
