// Package ai produces written performance analysis for report data.
// Two provider adapters (Anthropic HTTP API and AWS Bedrock) generate
// the text with a model; when neither is configured a deterministic
// built-in summarizer takes over so the analyze pipeline always
// produces output.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/settings"
)

// Request carries one report table to analyze.
type Request struct {
	ReportName    string
	TemplateTitle string
	Columns       []string
	Rows          []map[string]string
}

// Analyzer turns a report table into markdown analysis text.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// SettingsSource reads runtime settings by key.
type SettingsSource interface {
	Get(key string) string
}

// New selects the analyzer for the configured provider. Settings
// override the static config so the provider can be switched through
// the settings API without a restart. An unconfigured or failed
// provider falls back to the built-in summarizer.
func New(cfg config.AIConfig, src SettingsSource) Analyzer {
	provider := cfg.Provider
	if src != nil {
		if p := strings.TrimSpace(src.Get(settings.KeyAIProvider)); p != "" {
			provider = p
		}
	}

	switch strings.ToLower(provider) {
	case "anthropic":
		a := NewAnthropicAnalyzer(cfg, src)
		if a.apiKey() == "" {
			logger.Warn("anthropic provider selected but no API key configured, using built-in summaries")
			return NewFallbackAnalyzer()
		}
		return a
	case "bedrock":
		b, err := NewBedrockAnalyzer(context.Background(), cfg, src)
		if err != nil {
			logger.Warn("bedrock provider unavailable, using built-in summaries", "error", err.Error())
			return NewFallbackAnalyzer()
		}
		return b
	default:
		return NewFallbackAnalyzer()
	}
}

// systemPrompt frames the model as an ad-performance analyst and pins
// the output structure so the PDF renderer gets predictable markdown.
const systemPrompt = `You are a Meta Ads (Facebook & Instagram advertising) expert.
You analyze advertising data and give concrete, actionable recommendations.

Keep these heuristics in mind:
- CTR below 1%: creative or audience targeting problem
- CPC very high: bidding strategy or quality issue
- ROAS below 2: profitability risk, budget optimization needed
- Frequency above 3: ad fatigue risk
- CPM very high: audience too narrow or competition heavy

Answer in markdown with exactly these sections:
## Overall Assessment
## Strengths
## Watch Items
## Recommendations (at least 5 bullet points)
## Budget Advice`

// maxRowsPerPrompt caps how much table data goes into a prompt.
const maxRowsPerPrompt = 20

// buildUserPrompt renders the table as aligned text rows. Sending the
// table verbatim keeps the adapter independent of which template
// produced it.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Analyze the following Meta Ads report and give detailed recommendations.\n\n")
	b.WriteString("Report: " + req.ReportName + "\n")
	b.WriteString("Table: " + req.TemplateTitle + "\n\n")
	b.WriteString(strings.Join(req.Columns, " | "))
	b.WriteString("\n")

	n := len(req.Rows)
	if n > maxRowsPerPrompt {
		n = maxRowsPerPrompt
	}
	for _, row := range req.Rows[:n] {
		cells := make([]string, len(req.Columns))
		for i, col := range req.Columns {
			cells[i] = row[col]
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(req.Rows) > n {
		fmt.Fprintf(&b, "\n(truncated, %d rows total)\n", len(req.Rows))
	}
	return b.String()
}
