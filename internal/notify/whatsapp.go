package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/pkg/httpretry"
	"github.com/ignite/adops-console/internal/settings"
)

// WhatsAppSender delivers text messages through the WhatsApp Cloud
// API. It reuses the platform access token when no dedicated WhatsApp
// token is configured.
type WhatsAppSender struct {
	baseURL    string
	settings   interface{ Get(string) string }
	httpClient httpretry.HTTPDoer
}

// NewWhatsAppSender creates a sender. baseURL is the Graph API host
// plus version (https://graph.facebook.com/v21.0).
func NewWhatsAppSender(baseURL string, src interface{ Get(string) string }, client httpretry.HTTPDoer) *WhatsAppSender {
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3)
	}
	return &WhatsAppSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		settings:   src,
		httpClient: client,
	}
}

func (w *WhatsAppSender) token() string {
	if t := strings.TrimSpace(w.settings.Get(settings.KeyWhatsAppAccessToken)); t != "" {
		return t
	}
	return strings.TrimSpace(w.settings.Get(settings.KeyMetaAccessToken))
}

func (w *WhatsAppSender) phoneID() string {
	return strings.TrimSpace(w.settings.Get(settings.KeyWhatsAppPhoneID))
}

// SendText sends a plain text message and returns the provider
// message id.
func (w *WhatsAppSender) SendText(ctx context.Context, to, body string) (string, error) {
	phoneID := w.phoneID()
	token := w.token()
	if phoneID == "" || token == "" {
		return "", fmt.Errorf("whatsapp not configured: set WHATSAPP_PHONE_ID and an access token")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                normalizePhone(to),
		"type":              "text",
		"text": map[string]interface{}{
			"body":        body,
			"preview_url": false,
		},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		_ = json.Unmarshal(respBody, &ge)
		msg := ge.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return "", fmt.Errorf("whatsapp API error (status %d): %s", resp.StatusCode, msg)
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// normalizePhone strips formatting characters so the API receives a
// bare international number.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
