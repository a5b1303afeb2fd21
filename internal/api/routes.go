package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/adops-console/internal/auth"
)

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// The webhook endpoints authenticate with the platform handshake
	// and HMAC signatures, not bearer tokens.
	r.Get("/api/webhooks/meta", s.svc.Webhooks.Verify)
	r.Post("/api/webhooks/meta", s.svc.Webhooks.Callback)

	r.Post("/api/auth/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.svc.Tokens.RequireAuth)

		r.Get("/auth/me", s.handleMe)

		r.Route("/jobs", func(r chi.Router) {
			r.With(auth.RequireWriter).Post("/export-report/{recipeID}", s.handleEnqueueExport)
			r.With(auth.RequireWriter).Post("/analyze-report/{recipeID}", s.handleEnqueueAnalyze)
			r.With(auth.RequireWriter).Post("/archive-reports", s.handleEnqueueArchive)
			r.Get("/{jobID}", s.handleJobStatus)
			r.Get("/{jobID}/download", s.handleJobDownload)
			r.Get("/{jobID}/pdf", s.handleJobPDF)
			r.With(auth.RequireWriter).Delete("/{jobID}", s.handleJobDelete)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/templates", s.handleListTemplates)
			r.Get("/", s.handleListRecipes)
			r.With(auth.RequireWriter).Post("/", s.handleCreateRecipe)
			r.Get("/{recipeID}", s.handleGetRecipe)
			r.With(auth.RequireWriter).Delete("/{recipeID}", s.handleDeleteRecipe)
			r.Get("/{recipeID}/files", s.handleListRecipeFiles)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/rules", s.handleListAlertRules)
			r.Get("/history", s.handleAlertHistory)
			r.With(auth.RequireWriter).Post("/rules", s.handleCreateAlertRule)
			r.Get("/rules/{ruleID}", s.handleGetAlertRule)
			r.With(auth.RequireWriter).Put("/rules/{ruleID}", s.handleUpdateAlertRule)
			r.With(auth.RequireWriter).Delete("/rules/{ruleID}", s.handleDeleteAlertRule)
			r.With(auth.RequireWriter).Post("/rules/{ruleID}/toggle", s.handleToggleAlertRule)
			r.With(auth.RequireWriter).Post("/test/{ruleID}", s.handleTestAlertRule)
			r.With(auth.RequireWriter).Post("/check-all", s.handleCheckAllAlerts)
		})

		r.Route("/automation", func(r chi.Router) {
			r.Get("/rules", s.handleListAutomationRules)
			r.Get("/logs", s.handleAutomationLogs)
			r.With(auth.RequireAdmin).Post("/rules", s.handleCreateAutomationRule)
			r.With(auth.RequireAdmin).Put("/rules/{ruleID}", s.handleUpdateAutomationRule)
			r.With(auth.RequireAdmin).Delete("/rules/{ruleID}", s.handleDeleteAutomationRule)
			r.With(auth.RequireAdmin).Post("/rules/{ruleID}/toggle", s.handleToggleAutomationRule)
			r.With(auth.RequireAdmin).Post("/rules/{ruleID}/run", s.handleRunAutomationRule)
		})

		r.Route("/scheduled-reports", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Get("/logs/recent", s.handleRecentScheduleLogs)
			r.With(auth.RequireWriter).Post("/", s.handleCreateSchedule)
			r.Get("/{reportID}", s.handleGetSchedule)
			r.With(auth.RequireWriter).Put("/{reportID}", s.handleUpdateSchedule)
			r.With(auth.RequireWriter).Delete("/{reportID}", s.handleDeleteSchedule)
			r.With(auth.RequireWriter).Post("/{reportID}/toggle", s.handleToggleSchedule)
			r.With(auth.RequireWriter).Post("/{reportID}/run-now", s.handleRunScheduleNow)
			r.Get("/{reportID}/logs", s.handleScheduleLogs)
		})

		r.Route("/meta", func(r chi.Router) {
			r.Get("/campaigns", s.handleListCampaigns)
			r.Get("/account-summary", s.handleAccountSummary)
			r.Get("/daily", s.handleDailyBreakdown)
			r.Get("/ad-accounts", s.handleAdAccounts)
			r.Get("/ads-library/search", s.handleAdsLibrarySearch)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.With(auth.RequireAdmin).Put("/", s.handleUpdateSettings)
			r.Get("/ai-providers", s.handleAIProviders)
		})

		r.Get("/webhooks/config", s.svc.Webhooks.Config)
		r.With(auth.RequireWriter).Post("/webhooks/test", s.svc.Webhooks.Test)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
