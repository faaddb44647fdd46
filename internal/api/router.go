package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe on GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.prom != nil {
		r.Use(s.metricsMiddleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		if s.prom != nil && s.metCfg.Enabled {
			r.Method(http.MethodGet, s.metCfg.Path, s.prom.Handler())
		}

		// WebSocket authenticates with a ticket in the query string.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/topology", s.handleGeneralView)
			r.Get("/topology/{rootID}", s.handleSubtreeView)
			r.Get("/olts", s.handleListOLTs)

			r.Route("/devices", func(r chi.Router) {
				r.Post("/", s.handleCreateDevice)
				r.Put("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/insert", s.handleInsertDevice)
				r.Post("/connect", s.handleConnectDevice)
				r.Put("/{id}/position", s.handleSetPosition)
			})

			r.Delete("/edges", s.handleDisconnect)
			r.Post("/positions/reset", s.handleResetPositions)

			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth reports the version and the state of every backing store.
// Any failing dependency turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	status := http.StatusOK

	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":  overall,
		"version": s.version,
		"checks":  checks,
	})
}
