package api

import (
	"net/http"

	"github.com/ignite/adops-console/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Settings.Masked())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := decodeJSON(r, &updates); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Masked values round-tripped from the settings UI must not
	// overwrite the stored secret.
	for key, val := range updates {
		if settings.IsSensitive(key) && val != "" && val == s.svc.Settings.Masked()[key] {
			delete(updates, key)
		}
	}

	if err := s.svc.Settings.Update(updates); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.svc.Settings.Masked())
}

// handleAIProviders lists the analysis providers the deployment can
// use, given its configured credentials.
func (s *Server) handleAIProviders(w http.ResponseWriter, r *http.Request) {
	anthropicReady := s.svc.Settings.Get(settings.KeyAnthropicAPIKey) != ""
	bedrockReady := s.svc.Settings.Get(settings.KeyAWSAccessKeyID) != "" &&
		s.svc.Settings.Get(settings.KeyAWSSecretAccessKey) != ""

	providers := []map[string]interface{}{
		{"id": "anthropic", "name": "Anthropic API", "configured": anthropicReady},
		{"id": "bedrock", "name": "AWS Bedrock", "configured": bedrockReady},
		{"id": "", "name": "Built-in summaries", "configured": true},
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"active":    s.svc.Settings.Get(settings.KeyAIProvider),
		"providers": providers,
	})
}
