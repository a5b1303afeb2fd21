package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adops-console/internal/rules"
)

func queryInt(r *http.Request, name, def string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		v = def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Rules.ListAlertRules(r.Context(), false)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := rules.ValidateAlertRule(&rule); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.Rules.CreateAlertRule(r.Context(), &rule); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetAlertRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Rules.GetAlertRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	if rule == nil {
		respondError(w, http.StatusNotFound, "alert rule not found")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")
	if err := rules.ValidateAlertRule(&rule); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.Rules.UpdateAlertRule(r.Context(), &rule); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Rules.DeleteAlertRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleToggleAlertRule(w http.ResponseWriter, r *http.Request) {
	active, err := s.svc.Rules.ToggleAlertRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

func (s *Server) handleTestAlertRule(w http.ResponseWriter, r *http.Request) {
	matches, err := s.svc.Engine.TestAlertRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (s *Server) handleCheckAllAlerts(w http.ResponseWriter, r *http.Request) {
	fired, err := s.svc.Engine.CheckAlerts(r.Context())
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"alerts_fired": fired})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.svc.Rules.ListAlertHistory(r.Context(),
		r.URL.Query().Get("rule_id"), queryInt(r, "limit", "50"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hist)
}

func (s *Server) handleListAutomationRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Rules.ListAutomationRules(r.Context(), false)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAutomationRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.AutomationRule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := rules.ValidateAutomationRule(&rule); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.Rules.CreateAutomationRule(r.Context(), &rule); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateAutomationRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.AutomationRule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")
	if err := rules.ValidateAutomationRule(&rule); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.Rules.UpdateAutomationRule(r.Context(), &rule); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteAutomationRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Rules.DeleteAutomationRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleToggleAutomationRule(w http.ResponseWriter, r *http.Request) {
	active, err := s.svc.Rules.ToggleAutomationRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

// handleRunAutomationRule executes one rule immediately. ?dry_run=true
// evaluates without side effects.
func (s *Server) handleRunAutomationRule(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"
	logs, err := s.svc.Engine.RunAutomationRuleByID(r.Context(), chi.URLParam(r, "ruleID"), dryRun)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dry_run": dryRun,
		"actions": logs,
		"count":   len(logs),
	})
}

func (s *Server) handleAutomationLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.Rules.ListAutomationLogs(r.Context(),
		r.URL.Query().Get("rule_id"), queryInt(r, "limit", "50"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
