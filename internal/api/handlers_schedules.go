package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/scheduler"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Schedules.List(r.Context())
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var report scheduler.ScheduledReport
	if err := decodeJSON(r, &report); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := report.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.Schedules.Create(r.Context(), &report, time.Now()); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Schedules.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "scheduled report not found")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var report scheduler.ScheduledReport
	if err := decodeJSON(r, &report); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report.ID = chi.URLParam(r, "reportID")
	if err := report.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.Schedules.Update(r.Context(), &report, time.Now()); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Schedules.Delete(r.Context(), chi.URLParam(r, "reportID")); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Schedules.Toggle(r.Context(), chi.URLParam(r, "reportID"), time.Now())
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// handleRunScheduleNow enqueues an immediate delivery through the
// normal worker path.
func (s *Server) handleRunScheduleNow(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")
	report, err := s.svc.Schedules.Get(r.Context(), reportID)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "scheduled report not found")
		return
	}
	if !report.IsActive {
		respondError(w, http.StatusConflict, "scheduled report is deactivated")
		return
	}
	job, err := s.svc.Jobs.Enqueue(r.Context(), jobs.KindScheduledReport, reportID)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleScheduleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.Schedules.ListLogs(r.Context(),
		chi.URLParam(r, "reportID"), queryInt(r, "limit", "50"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (s *Server) handleRecentScheduleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.Schedules.ListLogs(r.Context(), "", queryInt(r, "limit", "50"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
