package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/pkg/httpretry"
	"github.com/ignite/adops-console/internal/settings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	anthropicVersion        = "2023-06-01"
)

// AnthropicAnalyzer calls the Anthropic Messages API over HTTP.
type AnthropicAnalyzer struct {
	baseURL    string
	cfg        config.AIConfig
	src        SettingsSource
	httpClient httpretry.HTTPDoer
}

// NewAnthropicAnalyzer creates the adapter. API key and model are read
// per request so settings changes apply without a restart.
func NewAnthropicAnalyzer(cfg config.AIConfig, src SettingsSource) *AnthropicAnalyzer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicAnalyzer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cfg:        cfg,
		src:        src,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

func (a *AnthropicAnalyzer) apiKey() string {
	if a.src != nil {
		if k := strings.TrimSpace(a.src.Get(settings.KeyAnthropicAPIKey)); k != "" {
			return k
		}
	}
	return strings.TrimSpace(a.cfg.APIKey)
}

func (a *AnthropicAnalyzer) model() string {
	if a.src != nil {
		if m := strings.TrimSpace(a.src.Get(settings.KeyAIModel)); m != "" {
			return m
		}
	}
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return defaultAnthropicModel
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Analyze sends the report table to the Messages API and returns the
// model's markdown text.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	key := a.apiKey()
	if key == "" {
		return "", fmt.Errorf("anthropic API key not configured")
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     a.model(),
		MaxTokens: 2000,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildUserPrompt(req)},
		},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var out anthropicResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parsing response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, msg)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic response contained no text")
	}
	return text.String(), nil
}
