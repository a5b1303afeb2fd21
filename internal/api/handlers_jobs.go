package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adops-console/internal/jobs"
)

// enqueueForRecipe validates the recipe exists before creating a job
// against it.
func (s *Server) enqueueForRecipe(w http.ResponseWriter, r *http.Request, kind string) {
	recipeID := chi.URLParam(r, "recipeID")
	recipe, err := s.svc.Recipes.GetRecipe(r.Context(), recipeID)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	if recipe == nil {
		respondError(w, http.StatusNotFound, "report recipe not found")
		return
	}
	if len(recipe.TemplateIDs) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "report recipe has no templates")
		return
	}

	job, err := s.svc.Jobs.Enqueue(r.Context(), kind, recipeID)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleEnqueueExport(w http.ResponseWriter, r *http.Request) {
	s.enqueueForRecipe(w, r, jobs.KindExport)
}

func (s *Server) handleEnqueueAnalyze(w http.ResponseWriter, r *http.Request) {
	s.enqueueForRecipe(w, r, jobs.KindAnalyze)
}

type archiveRequest struct {
	Bucket string `json:"bucket,omitempty"`
}

func (s *Server) handleEnqueueArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	job, err := s.svc.Jobs.Enqueue(r.Context(), jobs.KindArchive, req.Bucket)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// getJob loads a job or writes the 404 itself.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) *jobs.Job {
	job, err := s.svc.Jobs.Store().Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return nil
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if job := s.getJob(w, r); job != nil {
		respondJSON(w, http.StatusOK, job)
	}
}

func contentTypeForDownload(name string) string {
	switch {
	case strings.HasSuffix(name, ".zip"):
		return "application/zip"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	default:
		return "text/csv"
	}
}

func serveJobFile(w http.ResponseWriter, r *http.Request, path, name string) {
	w.Header().Set("Content-Type", contentTypeForDownload(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	job := s.getJob(w, r)
	if job == nil {
		return
	}
	if job.Status != jobs.StatusCompleted || job.OutputPath == "" {
		respondError(w, http.StatusConflict, "job has no downloadable output")
		return
	}
	if job.Kind != jobs.KindExport && job.Kind != jobs.KindArchive {
		respondError(w, http.StatusConflict, "job kind has no file download")
		return
	}
	serveJobFile(w, r, job.OutputPath, job.OutputName)
}

func (s *Server) handleJobPDF(w http.ResponseWriter, r *http.Request) {
	job := s.getJob(w, r)
	if job == nil {
		return
	}
	if job.Kind != jobs.KindAnalyze || job.Status != jobs.StatusCompleted || job.AuxOutputPath == "" {
		respondError(w, http.StatusConflict, "job has no PDF output")
		return
	}
	serveJobFile(w, r, job.AuxOutputPath, job.OutputName)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if job := s.getJob(w, r); job == nil {
		return
	}
	if err := s.svc.Jobs.DeleteJob(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
