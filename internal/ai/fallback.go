package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// FallbackAnalyzer produces a deterministic summary straight from the
// table values, using the same heuristics the model prompt describes.
// It runs whenever no AI provider is configured.
type FallbackAnalyzer struct{}

// NewFallbackAnalyzer creates the built-in summarizer.
func NewFallbackAnalyzer() *FallbackAnalyzer { return &FallbackAnalyzer{} }

// Analyze summarizes the table. Output depends only on the input.
func (f *FallbackAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	totalSpend := sumColumn(req, "Spend")
	totalResults := sumColumn(req, "Results")
	totalImpressions := sumColumn(req, "Impressions")
	totalClicks := sumColumn(req, "Clicks")
	avgCTR := avgColumn(req, "CTR")
	avgROAS := avgColumn(req, "ROAS")
	avgFrequency := avgColumn(req, "Frequency")

	var b strings.Builder
	fmt.Fprintf(&b, "## Overall Assessment\n\n")
	fmt.Fprintf(&b, "%s covers %d rows.\n\n", req.TemplateTitle, len(req.Rows))
	fmt.Fprintf(&b, "- Total spend: %.2f\n", totalSpend)
	fmt.Fprintf(&b, "- Total results: %.0f\n", totalResults)
	if totalImpressions > 0 {
		fmt.Fprintf(&b, "- Impressions: %.0f\n", totalImpressions)
	}
	if totalClicks > 0 {
		fmt.Fprintf(&b, "- Clicks: %.0f\n", totalClicks)
	}
	if totalResults > 0 && totalSpend > 0 {
		fmt.Fprintf(&b, "- Average cost per result: %.2f\n", totalSpend/totalResults)
	}

	var strengths, watch []string
	if avgCTR >= 1 {
		strengths = append(strengths, fmt.Sprintf("Average CTR of %%%.2f is at or above the 1%% benchmark.", avgCTR))
	} else if hasColumn(req, "CTR") {
		watch = append(watch, fmt.Sprintf("Average CTR of %%%.2f is below 1%%, which points to a creative or audience targeting problem.", avgCTR))
	}
	if hasColumn(req, "ROAS") {
		if avgROAS >= 2 {
			strengths = append(strengths, fmt.Sprintf("Average ROAS of %.2f clears the 2.0 profitability bar.", avgROAS))
		} else {
			watch = append(watch, fmt.Sprintf("Average ROAS of %.2f is below 2.0, a profitability risk.", avgROAS))
		}
	}
	if hasColumn(req, "Frequency") && avgFrequency > 3 {
		watch = append(watch, fmt.Sprintf("Average frequency of %.2f is above 3, an ad fatigue risk.", avgFrequency))
	}
	if totalResults == 0 && totalSpend > 0 {
		watch = append(watch, "Spend is accruing without recorded results.")
	}

	b.WriteString("\n## Strengths\n\n")
	writeBullets(&b, strengths, "No standout strengths in this window.")

	b.WriteString("\n## Watch Items\n\n")
	writeBullets(&b, watch, "No issues flagged by the standard checks.")

	b.WriteString("\n## Recommendations\n\n")
	b.WriteString("- Compare the top and bottom rows of this table and shift budget toward the best cost per result.\n")
	b.WriteString("- Pause rows that spend without results for more than a few days.\n")
	b.WriteString("- Refresh creatives on rows with below-benchmark CTR.\n")
	b.WriteString("- Review audience overlap where frequency is climbing.\n")
	b.WriteString("- Re-run this report after changes to confirm the trend.\n")

	b.WriteString("\n## Budget Advice\n\n")
	if totalResults > 0 && totalSpend > 0 {
		fmt.Fprintf(&b, "Current blended cost per result is %.2f. Scale winners in small steps and hold losers flat.\n", totalSpend/totalResults)
	} else {
		b.WriteString("Not enough result data to give budget guidance for this window.\n")
	}

	return b.String(), nil
}

func writeBullets(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		b.WriteString("- " + empty + "\n")
		return
	}
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

func hasColumn(req Request, col string) bool {
	for _, c := range req.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func sumColumn(req Request, col string) float64 {
	var total float64
	for _, row := range req.Rows {
		total += parseCell(row[col])
	}
	return total
}

func avgColumn(req Request, col string) float64 {
	if len(req.Rows) == 0 {
		return 0
	}
	return sumColumn(req, col) / float64(len(req.Rows))
}

// parseCell reads a numeric value out of a formatted report cell,
// tolerating percent signs and thousands separators.
func parseCell(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
