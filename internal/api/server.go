// Package api exposes the operator HTTP surface: job control, rules,
// scheduled reports, settings and upstream passthrough reads.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adops-console/internal/auth"
	"github.com/ignite/adops-console/internal/cache"
	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/reports"
	"github.com/ignite/adops-console/internal/rules"
	"github.com/ignite/adops-console/internal/scheduler"
	"github.com/ignite/adops-console/internal/settings"
	"github.com/ignite/adops-console/internal/webhook"
)

// Services bundles everything the handlers depend on. Wiring happens
// once in the entrypoints; nothing here is a process-global.
type Services struct {
	Jobs      *jobs.Pool
	Recipes   *reports.Store
	Rules     *rules.Store
	Engine    *rules.Engine
	Schedules *scheduler.Store
	Meta      *meta.Client
	Settings  *settings.Store
	Users     *auth.UserStore
	Tokens    *auth.Manager
	Webhooks  *webhook.Handler
	Cache     *cache.Cache
}

// Server is the API server.
type Server struct {
	cfg    config.ServerConfig
	svc    Services
	router *chi.Mux
	server *http.Server
}

// NewServer builds the server and its route tree.
func NewServer(cfg config.ServerConfig, svc Services) *Server {
	s := &Server{cfg: cfg, svc: svc}
	s.router = s.routes()
	return s
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}
