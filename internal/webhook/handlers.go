package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/settings"
)

// Handler exposes the ingestor over HTTP.
type Handler struct {
	ing *Ingestor
}

// NewHandler wraps an ingestor for mounting on the router.
func NewHandler(ing *Ingestor) *Handler {
	return &Handler{ing: ing}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// queryParam reads the platform's hub.-prefixed parameter, accepting
// the bare name as well.
func queryParam(r *http.Request, name string) string {
	if v := r.URL.Query().Get("hub." + name); v != "" {
		return v
	}
	return r.URL.Query().Get(name)
}

// Verify handles the subscription handshake. The challenge is echoed
// verbatim as plain text.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := queryParam(r, "mode")
	token := queryParam(r, "verify_token")
	challenge := queryParam(r, "challenge")

	echo, ok := h.ing.VerifyToken(mode, token, challenge)
	if !ok {
		logger.Warn("webhook verification rejected", "mode", mode)
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "verification failed"})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(echo))
}

// Callback handles signed event callbacks. Accepted requests always
// return 200 so the platform does not retry.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unreadable body"})
		return
	}
	if !h.ing.CheckSignature(r.Header.Get("X-Hub-Signature-256"), body) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "invalid signature"})
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.Warn("webhook body is not a valid envelope", "error", err.Error())
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "processed": 0})
		return
	}

	processed := h.ing.Process(r.Context(), &env)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "processed": processed})
}

// Config reports which webhook credentials are configured, without
// revealing them.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"callback_path":           "/api/webhooks/meta",
		"verify_token_configured": h.ing.src.Get(settings.KeyWebhookVerifyToken) != "",
		"app_secret_configured":   h.ing.src.Get(settings.KeyMetaAppSecret) != "",
	})
}

// Test pushes a caller-supplied envelope through the classification
// path without signature checks, for wiring verification.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid envelope"})
		return
	}
	processed := h.ing.Process(r.Context(), &env)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "processed": processed})
}
