package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/reports"
)

// snapshotTTL bounds how stale the dashboard passthrough reads may be.
const snapshotTTL = 2 * time.Minute

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, reports.Catalog)
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Recipes.ListRecipes(r.Context())
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var recipe reports.SavedRecipe
	if err := decodeJSON(r, &recipe); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.Recipes.CreateRecipe(r.Context(), &recipe); err != nil {
		if strings.Contains(err.Error(), "required") ||
			strings.Contains(err.Error(), "template") ||
			strings.Contains(err.Error(), "window_days") {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, recipe)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := s.svc.Recipes.GetRecipe(r.Context(), chi.URLParam(r, "recipeID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	if recipe == nil {
		respondError(w, http.StatusNotFound, "report recipe not found")
		return
	}
	respondJSON(w, http.StatusOK, recipe)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Recipes.DeleteRecipe(r.Context(), chi.URLParam(r, "recipeID")); err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListRecipeFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.Recipes.ListFileRecords(r.Context(), chi.URLParam(r, "recipeID"))
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, files)
}

// Passthrough reads used by dashboard views. The upstream client
// handles throttling and error classification.

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", "7")
	account := r.URL.Query().Get("account_id")
	key := fmt.Sprintf("meta:campaigns:%d:%s", days, account)

	var cached []meta.Campaign
	if err := s.svc.Cache.GetJSON(r.Context(), key, &cached); err == nil {
		respondJSON(w, http.StatusOK, cached)
		return
	}
	camps, err := s.svc.Meta.ListCampaigns(r.Context(), days, account)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	s.svc.Cache.SetJSON(r.Context(), key, camps, snapshotTTL)
	respondJSON(w, http.StatusOK, camps)
}

func (s *Server) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", "7")
	account := r.URL.Query().Get("account_id")
	key := fmt.Sprintf("meta:summary:%d:%s", days, account)

	var cached meta.AccountSummary
	if err := s.svc.Cache.GetJSON(r.Context(), key, &cached); err == nil {
		respondJSON(w, http.StatusOK, cached)
		return
	}
	summary, err := s.svc.Meta.GetAccountSummary(r.Context(), days, account)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	s.svc.Cache.SetJSON(r.Context(), key, summary, snapshotTTL)
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDailyBreakdown(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", "30")
	account := r.URL.Query().Get("account_id")
	key := fmt.Sprintf("meta:daily:%d:%s", days, account)

	var cached []meta.DailyRow
	if err := s.svc.Cache.GetJSON(r.Context(), key, &cached); err == nil {
		respondJSON(w, http.StatusOK, cached)
		return
	}
	rows, err := s.svc.Meta.GetDailyBreakdown(r.Context(), days, account)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	s.svc.Cache.SetJSON(r.Context(), key, rows, snapshotTTL)
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAdAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Meta.ListAdAccounts(r.Context())
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleAdsLibrarySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := meta.LibrarySearchParams{
		SearchTerms:  q.Get("q"),
		AdType:       q.Get("ad_type"),
		ActiveStatus: q.Get("active_status"),
		DateMin:      q.Get("date_min"),
		DateMax:      q.Get("date_max"),
		Limit:        queryInt(r, "limit", "25"),
		After:        q.Get("after"),
	}
	if c := q.Get("countries"); c != "" {
		params.Countries = strings.Split(c, ",")
	}
	if p := q.Get("page_ids"); p != "" {
		params.PageIDs = strings.Split(p, ",")
	}
	result, err := s.svc.Meta.SearchLibrary(r.Context(), params)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
