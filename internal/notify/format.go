package notify

import (
	"fmt"
	"strconv"
	"strings"
)

// metricNames maps rule metric keys to display names.
var metricNames = map[string]string{
	"ctr":         "CTR",
	"roas":        "ROAS",
	"spend":       "Spend",
	"cpc":         "CPC",
	"cpm":         "CPM",
	"impressions": "Impressions",
	"clicks":      "Clicks",
	"frequency":   "Frequency",
}

// MetricName returns the display name for a metric key.
func MetricName(metric string) string {
	if name, ok := metricNames[metric]; ok {
		return name
	}
	return strings.ToUpper(metric)
}

// FormatMetricValue renders a metric value per its family:
// percentages as %x.xx, currency amounts with two decimals, ratios
// with three decimals, counts as grouped integers.
func FormatMetricValue(metric string, v float64) string {
	switch metric {
	case "ctr":
		return fmt.Sprintf("%%%.2f", v)
	case "spend", "cpc", "cpm":
		return fmt.Sprintf("%.2f", v)
	case "roas", "frequency":
		return fmt.Sprintf("%.3f", v)
	default:
		return groupInt(int64(v + 0.5))
	}
}

// BuildAlertMessage renders the standard alert body for a rule match.
func BuildAlertMessage(ruleName, campaignName, metric, condition string, value, threshold float64) string {
	conditionText := "rose above threshold"
	if condition == "lt" {
		conditionText = "fell below threshold"
	}
	return fmt.Sprintf(
		"Campaign Performance Alert\n\n"+
			"Campaign: %s\n"+
			"Metric: %s\n"+
			"Value: %s\n"+
			"Threshold: %s\n"+
			"Status: %s\n\n"+
			"Rule: %s",
		campaignName,
		MetricName(metric),
		FormatMetricValue(metric, value),
		FormatMetricValue(metric, threshold),
		conditionText,
		ruleName,
	)
}

// groupInt renders n with comma thousands separators.
func groupInt(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
