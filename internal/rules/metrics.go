package rules

import (
	"strings"

	"github.com/ignite/adops-console/internal/expr"
	"github.com/ignite/adops-console/internal/meta"
)

// metricVars is the namespace formula rules may reference.
var metricVars = map[string]bool{
	"spend": true, "impressions": true, "clicks": true, "reach": true,
	"ctr": true, "cpc": true, "cpm": true, "frequency": true,
	"conversions": true, "conversion_value": true, "roas": true,
}

func campaignVars(c meta.Campaign) map[string]float64 {
	return map[string]float64{
		"spend":            c.Spend,
		"impressions":      float64(c.Impressions),
		"clicks":           float64(c.Clicks),
		"reach":            float64(c.Reach),
		"ctr":              c.CTR,
		"cpc":              c.CPC,
		"cpm":              c.CPM,
		"frequency":        c.Frequency,
		"conversions":      float64(c.Conversions),
		"conversion_value": c.ConversionValue,
		"roas":             c.ROAS,
	}
}

// MetricValue resolves a rule metric against one campaign. Formula
// metrics evaluate over the full metric namespace. ok is false when
// the metric is unknown or the formula fails to evaluate.
func MetricValue(c meta.Campaign, metric string) (float64, bool) {
	if formula, isFormula := strings.CutPrefix(metric, FormulaPrefix); isFormula {
		prog, err := expr.Compile(formula)
		if err != nil {
			return 0, false
		}
		v, err := prog.Eval(campaignVars(c))
		if err != nil {
			return 0, false
		}
		return v, true
	}
	vars := campaignVars(c)
	v, ok := vars[metric]
	return v, ok
}

// Matches applies the rule predicate. Equality never matches.
func Matches(condition string, value, threshold float64) bool {
	switch condition {
	case ConditionLT:
		return value < threshold
	case ConditionGT:
		return value > threshold
	default:
		return false
	}
}
