// Package rules evaluates alert and automation rules against campaign
// metric snapshots and performs their side effects.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/expr"
)

// Conditions compare a metric value against the rule threshold.
const (
	ConditionLT = "lt"
	ConditionGT = "gt"
)

// Automation actions.
const (
	ActionPause          = "pause"
	ActionResume         = "resume"
	ActionNotify         = "notify"
	ActionBudgetDecrease = "budget_decrease"
	ActionBudgetIncrease = "budget_increase"
)

// FormulaPrefix marks a rule metric as a custom formula over the
// metric namespace instead of a single named metric.
const FormulaPrefix = "formula:"

var knownMetrics = map[string]bool{
	"ctr": true, "roas": true, "spend": true, "cpc": true,
	"cpm": true, "impressions": true, "clicks": true, "frequency": true,
}

// AlertRule is a user-defined threshold check with cooldown.
type AlertRule struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Metric          string     `json:"metric"`
	Condition       string     `json:"condition"`
	Threshold       float64    `json:"threshold"`
	AdAccountID     string     `json:"ad_account_id,omitempty"`
	Channels        []string   `json:"channels"`
	EmailTo         string     `json:"email_to,omitempty"`
	IMTo            string     `json:"im_to,omitempty"`
	CooldownMinutes int        `json:"cooldown_minutes"`
	IsActive        bool       `json:"is_active"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty"`
	TriggerCount    int        `json:"trigger_count"`
	CreatedAt       time.Time  `json:"created_at"`
}

// InCooldown reports whether the rule fired within its cooldown
// window as of now.
func (r *AlertRule) InCooldown(now time.Time) bool {
	if r.LastTriggered == nil {
		return false
	}
	return now.Before(r.LastTriggered.Add(time.Duration(r.CooldownMinutes) * time.Minute))
}

// AlertHistory is one fired alert.
type AlertHistory struct {
	ID                string    `json:"id"`
	RuleID            string    `json:"rule_id"`
	CampaignID        string    `json:"campaign_id,omitempty"`
	CampaignName      string    `json:"campaign_name,omitempty"`
	Metric            string    `json:"metric"`
	Threshold         float64   `json:"threshold"`
	ActualValue       float64   `json:"actual_value"`
	Message           string    `json:"message"`
	ChannelsDelivered []string  `json:"channels_delivered"`
	SentAt            time.Time `json:"sent_at"`
}

// AutomationRule is an alert rule that also writes back to the ad
// platform.
type AutomationRule struct {
	AlertRule
	Action      string   `json:"action"`
	ActionValue float64  `json:"action_value,omitempty"`
	CampaignIDs []string `json:"campaign_ids,omitempty"`
}

// AppliesTo reports whether the rule's campaign filter includes the
// campaign. An empty filter matches everything.
func (r *AutomationRule) AppliesTo(campaignID string) bool {
	if len(r.CampaignIDs) == 0 {
		return true
	}
	for _, id := range r.CampaignIDs {
		if id == campaignID {
			return true
		}
	}
	return false
}

// AutomationLog is one executed (or attempted) automation action.
type AutomationLog struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	CampaignID   string    `json:"campaign_id"`
	CampaignName string    `json:"campaign_name,omitempty"`
	ActionTaken  string    `json:"action_taken"`
	Metric       string    `json:"metric"`
	Threshold    float64   `json:"threshold"`
	ActualValue  float64   `json:"actual_value"`
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// ValidateAlertRule checks rule fields shared by alerts and
// automations.
func ValidateAlertRule(r *AlertRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name required")
	}
	if err := validateMetric(r.Metric); err != nil {
		return err
	}
	if r.Condition != ConditionLT && r.Condition != ConditionGT {
		return fmt.Errorf("condition must be lt or gt")
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive")
	}
	if r.CooldownMinutes < 5 || r.CooldownMinutes > 1440 {
		return fmt.Errorf("cooldown_minutes must be between 5 and 1440")
	}
	for _, ch := range r.Channels {
		if ch != "email" && ch != "im" {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	return nil
}

// ValidateAutomationRule additionally checks the action fields.
func ValidateAutomationRule(r *AutomationRule) error {
	if err := ValidateAlertRule(&r.AlertRule); err != nil {
		return err
	}
	switch r.Action {
	case ActionPause, ActionResume, ActionNotify:
		return nil
	case ActionBudgetDecrease, ActionBudgetIncrease:
		if r.ActionValue <= 0 || r.ActionValue > 100 {
			return fmt.Errorf("budget actions need action_value in (0, 100]")
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
}

func validateMetric(metric string) error {
	if knownMetrics[metric] {
		return nil
	}
	if formula, ok := strings.CutPrefix(metric, FormulaPrefix); ok {
		prog, err := expr.Compile(formula)
		if err != nil {
			return fmt.Errorf("invalid formula: %w", err)
		}
		for _, v := range prog.Variables() {
			if !metricVars[v] {
				return fmt.Errorf("formula references unknown metric %q", v)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown metric %q", metric)
}
