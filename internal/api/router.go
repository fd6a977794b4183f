package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/hardware", func(r chi.Router) {
		// Anonymous endpoints: a factory-fresh unit has no credentials
		// until a staff member pairs it.
		r.Post("/pairing-code", s.handleIssuePairingCode)
		r.Post("/heartbeat", s.handleHeartbeat)

		// Org-scoped reads (user token or online hardware headers)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		// Pairing consumption is a staff action
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.requireUser)
			r.Post("/pair", s.handlePair)
		})
	})

	// WebSocket (auth via the same chain, validated in the handler so
	// failures can be rejected before the upgrade)
	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

// wsPath returns the configured WebSocket path, defaulting to /ws.
func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
