package server

import (
	"log/slog"
	"net/http"

	"superstore-dashboard/internal/handlers"
	"superstore-dashboard/internal/services"
)

type Server struct {
	analytics    *services.Analytics
	mux          *http.ServeMux
	logger       *slog.Logger
	apiHandlers  *handlers.APIHandlers
	sseHandlers  *handlers.SSEHandlers
	pageHandlers *handlers.PageHandlers
}

func NewServer(deps handlers.Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		analytics:    deps.Analytics,
		mux:          http.NewServeMux(),
		logger:       deps.Logger,
		apiHandlers:  handlers.NewAPIHandlers(deps.Analytics, deps.Logger),
		sseHandlers:  handlers.NewSSEHandlers(deps),
		pageHandlers: handlers.NewPageHandlers(deps),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", s.pageHandlers.HandleDashboard)
	s.mux.HandleFunc("POST /upload", s.pageHandlers.HandleUpload)
	s.mux.HandleFunc("GET /download", s.pageHandlers.HandleDownload)
	s.mux.HandleFunc("POST /background", s.pageHandlers.HandleBackground)
	s.mux.HandleFunc("POST /background/clear", s.pageHandlers.HandleClearBackground)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/view", s.apiHandlers.HandleView)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/view", s.sseHandlers.HandleView)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
