// Package api is the thin admin surface over the scheduler: enqueue, cancel,
// progress and outbox status. It carries no business rules; everything it
// does is a call into the orchestrator or the repository.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/courierhq/sendcore/internal/dispatch"
)

// Server hosts the admin HTTP endpoints.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router around the orchestrator and sending context.
func NewServer(orch *dispatch.Orchestrator, sc *dispatch.SendingContext, allowedOrigins []string) *Server {
	h := &handlers{orch: orch, sc: sc}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tenants/{tenantID}/campaigns/{campaignID}/send", h.enqueueCampaign)
		r.Delete("/tenants/{tenantID}/campaigns/{campaignID}/send", h.cancelCampaign)
		r.Post("/tenants/{tenantID}/campaigns/{campaignID}/pause", h.pauseCampaign)
		r.Get("/campaigns/{campaignID}/progress", h.campaignProgress)
		r.Get("/outboxes", h.outboxStatus)
	})

	return &Server{handler: r}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
