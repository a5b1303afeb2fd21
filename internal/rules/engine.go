package rules

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/pkg/logger"
)

// CampaignSource provides the enriched campaign snapshot for an
// account.
type CampaignSource interface {
	ListCampaigns(ctx context.Context, days int, accountID string) ([]meta.Campaign, error)
}

// ActionClient is the upstream write surface automations use.
type ActionClient interface {
	SetCampaignStatus(ctx context.Context, campaignID, status string) error
	ListAdSets(ctx context.Context, campaignID string, days int, accountID string) ([]meta.AdSet, error)
	UpdateAdSetBudget(ctx context.Context, adsetID string, upd meta.AdSetBudgetUpdate) error
}

// Notifier dispatches one alert to its channels.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message, dest notify.Destinations) []string
}

// minDailyBudget is the floor for budget automations, in minor
// currency units.
const minDailyBudget = 100

// Engine evaluates alert and automation rules against campaign
// snapshots. One engine instance runs per scheduler leader.
type Engine struct {
	store      *Store
	campaigns  CampaignSource
	actions    ActionClient
	fanout     Notifier
	windowDays int
	now        func() time.Time
}

// NewEngine wires the rule engine.
func NewEngine(store *Store, campaigns CampaignSource, actions ActionClient, fanout Notifier) *Engine {
	return &Engine{
		store:      store,
		campaigns:  campaigns,
		actions:    actions,
		fanout:     fanout,
		windowDays: 7,
		now:        time.Now,
	}
}

// Match is one (rule, campaign) hit, returned by test and dry-run
// evaluations.
type Match struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Value        float64 `json:"value"`
	Threshold    float64 `json:"threshold"`
}

// snapshots fetches each account's campaign list at most once.
func (e *Engine) snapshots(ctx context.Context, accounts []string) map[string][]meta.Campaign {
	out := make(map[string][]meta.Campaign, len(accounts))
	for _, account := range accounts {
		camps, err := e.campaigns.ListCampaigns(ctx, e.windowDays, account)
		if err != nil {
			logger.Warn("campaign snapshot failed, skipping account", "account", account, "error", err.Error())
			continue
		}
		out[account] = camps
	}
	return out
}

// CheckAlerts evaluates every active alert rule once and returns how
// many fired. A rule fires at most once per call no matter how many
// campaigns match.
func (e *Engine) CheckAlerts(ctx context.Context) (int, error) {
	rules, err := e.store.ListAlertRules(ctx, true)
	if err != nil {
		return 0, err
	}

	byAccount := map[string][]AlertRule{}
	for _, r := range rules {
		byAccount[r.AdAccountID] = append(byAccount[r.AdAccountID], r)
	}
	accounts := make([]string, 0, len(byAccount))
	for account := range byAccount {
		accounts = append(accounts, account)
	}
	snaps := e.snapshots(ctx, accounts)

	now := e.now()
	fired := 0
	for account, accountRules := range byAccount {
		camps, ok := snaps[account]
		if !ok {
			continue
		}
		for i := range accountRules {
			rule := accountRules[i]
			if rule.InCooldown(now) {
				continue
			}
			for _, camp := range camps {
				value, ok := MetricValue(camp, rule.Metric)
				if !ok || !Matches(rule.Condition, value, rule.Threshold) {
					continue
				}
				e.fireAlert(ctx, &rule, camp, value, now)
				fired++
				break
			}
		}
	}
	return fired, nil
}

func (e *Engine) fireAlert(ctx context.Context, rule *AlertRule, camp meta.Campaign, value float64, now time.Time) {
	body := notify.BuildAlertMessage(rule.Name, camp.Name, rule.Metric, rule.Condition, value, rule.Threshold)
	delivered := e.fanout.Dispatch(ctx, notify.Message{
		Title: "Campaign Performance Alert: " + rule.Name,
		Body:  body,
	}, notify.Destinations{
		Channels: rule.Channels,
		EmailTo:  rule.EmailTo,
		IMTo:     rule.IMTo,
	})

	if err := e.store.AddAlertHistory(ctx, &AlertHistory{
		RuleID:            rule.ID,
		CampaignID:        camp.ID,
		CampaignName:      camp.Name,
		Metric:            rule.Metric,
		Threshold:         rule.Threshold,
		ActualValue:       value,
		Message:           body,
		ChannelsDelivered: delivered,
	}); err != nil {
		logger.Error("recording alert history failed", "rule_id", rule.ID, "error", err.Error())
	}
	if err := e.store.MarkAlertTriggered(ctx, rule.ID, now); err != nil {
		logger.Error("stamping alert trigger failed", "rule_id", rule.ID, "error", err.Error())
	}
	logger.Info("alert fired", "rule", rule.Name, "campaign", camp.Name, "value", fmt.Sprintf("%.4f", value))
}

// TestAlertRule evaluates a rule against the live snapshot without
// cooldown, notifications or persistence. Works on inactive rules.
func (e *Engine) TestAlertRule(ctx context.Context, ruleID string) ([]Match, error) {
	rule, err := e.store.GetAlertRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("alert rule %s not found", ruleID)
	}
	camps, err := e.campaigns.ListCampaigns(ctx, e.windowDays, rule.AdAccountID)
	if err != nil {
		return nil, err
	}

	matches := []Match{}
	for _, camp := range camps {
		value, ok := MetricValue(camp, rule.Metric)
		if ok && Matches(rule.Condition, value, rule.Threshold) {
			matches = append(matches, Match{
				CampaignID:   camp.ID,
				CampaignName: camp.Name,
				Value:        value,
				Threshold:    rule.Threshold,
			})
		}
	}
	return matches, nil
}

// RunAutomations evaluates every active automation rule. In dry-run
// mode no upstream writes, notifications, logs or bookkeeping happen;
// the returned logs describe what would have been done. Unlike
// alerts, an automation acts on every matching campaign.
func (e *Engine) RunAutomations(ctx context.Context, dryRun bool) ([]AutomationLog, error) {
	rules, err := e.store.ListAutomationRules(ctx, true)
	if err != nil {
		return nil, err
	}

	byAccount := map[string][]AutomationRule{}
	for _, r := range rules {
		byAccount[r.AdAccountID] = append(byAccount[r.AdAccountID], r)
	}
	accounts := make([]string, 0, len(byAccount))
	for account := range byAccount {
		accounts = append(accounts, account)
	}
	snaps := e.snapshots(ctx, accounts)

	var results []AutomationLog
	for account, accountRules := range byAccount {
		camps, ok := snaps[account]
		if !ok {
			continue
		}
		for i := range accountRules {
			logs := e.runAutomationRule(ctx, &accountRules[i], camps, dryRun)
			results = append(results, logs...)
		}
	}
	return results, nil
}

// RunAutomationRuleByID evaluates one rule on demand, bypassing the
// active flag and, in dry-run mode, all side effects.
func (e *Engine) RunAutomationRuleByID(ctx context.Context, ruleID string, dryRun bool) ([]AutomationLog, error) {
	rule, err := e.store.GetAutomationRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("automation rule %s not found", ruleID)
	}
	camps, err := e.campaigns.ListCampaigns(ctx, e.windowDays, rule.AdAccountID)
	if err != nil {
		return nil, err
	}
	// Manual runs skip the cooldown consult.
	rule.LastTriggered = nil
	return e.runAutomationRule(ctx, rule, camps, dryRun), nil
}

func (e *Engine) runAutomationRule(ctx context.Context, rule *AutomationRule, camps []meta.Campaign, dryRun bool) []AutomationLog {
	now := e.now()
	if !dryRun && rule.InCooldown(now) {
		return nil
	}

	var logs []AutomationLog
	matches := 0
	for _, camp := range camps {
		if !rule.AppliesTo(camp.ID) {
			continue
		}
		value, ok := MetricValue(camp, rule.Metric)
		if !ok || !Matches(rule.Condition, value, rule.Threshold) {
			continue
		}
		matches++

		entry := AutomationLog{
			RuleID:       rule.ID,
			CampaignID:   camp.ID,
			CampaignName: camp.Name,
			ActionTaken:  rule.Action,
			Metric:       rule.Metric,
			Threshold:    rule.Threshold,
			ActualValue:  value,
			ExecutedAt:   now,
		}

		if dryRun {
			entry.Success = true
			entry.Message = "dry run, no action taken"
			logs = append(logs, entry)
			continue
		}

		if err := e.executeAction(ctx, rule, camp); err != nil {
			entry.Success = false
			entry.Error = err.Error()
			logger.Warn("automation action failed", "rule", rule.Name, "campaign", camp.Name, "error", err.Error())
		} else {
			entry.Success = true
			entry.Message = actionMessage(rule, camp)
		}

		if err := e.store.AddAutomationLog(ctx, &entry); err != nil {
			logger.Error("recording automation log failed", "rule_id", rule.ID, "error", err.Error())
		}
		if len(rule.Channels) > 0 {
			e.fanout.Dispatch(ctx, notify.Message{
				Title: "Automation Executed: " + rule.Name,
				Body:  automationBody(rule, camp, value, &entry),
			}, notify.Destinations{
				Channels: rule.Channels,
				EmailTo:  rule.EmailTo,
				IMTo:     rule.IMTo,
			})
		}
		logs = append(logs, entry)
	}

	if !dryRun && matches > 0 {
		if err := e.store.MarkAutomationTriggered(ctx, rule.ID, now, matches); err != nil {
			logger.Error("stamping automation trigger failed", "rule_id", rule.ID, "error", err.Error())
		}
	}
	return logs
}

func (e *Engine) executeAction(ctx context.Context, rule *AutomationRule, camp meta.Campaign) error {
	switch rule.Action {
	case ActionPause:
		return e.actions.SetCampaignStatus(ctx, camp.ID, "PAUSED")
	case ActionResume:
		return e.actions.SetCampaignStatus(ctx, camp.ID, "ACTIVE")
	case ActionNotify:
		// Delivery happens through the fanout below.
		return nil
	case ActionBudgetDecrease, ActionBudgetIncrease:
		return e.adjustBudgets(ctx, rule, camp)
	default:
		return fmt.Errorf("unknown action %q", rule.Action)
	}
}

// adjustBudgets rewrites the daily budget of every daily-budget adset
// in the campaign. Lifetime-budget adsets are skipped.
func (e *Engine) adjustBudgets(ctx context.Context, rule *AutomationRule, camp meta.Campaign) error {
	adsets, err := e.actions.ListAdSets(ctx, camp.ID, e.windowDays, rule.AdAccountID)
	if err != nil {
		return err
	}

	factor := 1 + rule.ActionValue/100
	if rule.Action == ActionBudgetDecrease {
		factor = 1 - rule.ActionValue/100
	}

	var firstErr error
	adjusted := 0
	for _, adset := range adsets {
		current, err := strconv.ParseInt(adset.DailyBudget, 10, 64)
		if err != nil || current <= 0 {
			continue
		}
		newDaily := int64(math.Floor(float64(current) * factor))
		if newDaily < minDailyBudget {
			newDaily = minDailyBudget
		}
		if err := e.actions.UpdateAdSetBudget(ctx, adset.ID, meta.AdSetBudgetUpdate{DailyBudget: &newDaily}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		adjusted++
	}
	if firstErr != nil {
		return fmt.Errorf("adjusted %d adsets: %w", adjusted, firstErr)
	}
	if adjusted == 0 {
		return fmt.Errorf("campaign %s has no daily-budget adsets", camp.ID)
	}
	return nil
}

func actionMessage(rule *AutomationRule, camp meta.Campaign) string {
	switch rule.Action {
	case ActionPause:
		return "campaign paused"
	case ActionResume:
		return "campaign resumed"
	case ActionNotify:
		return "notification sent"
	case ActionBudgetDecrease:
		return fmt.Sprintf("daily budgets decreased by %.0f%%", rule.ActionValue)
	case ActionBudgetIncrease:
		return fmt.Sprintf("daily budgets increased by %.0f%%", rule.ActionValue)
	}
	return ""
}

func automationBody(rule *AutomationRule, camp meta.Campaign, value float64, entry *AutomationLog) string {
	outcome := entry.Message
	if !entry.Success {
		outcome = "action failed: " + entry.Error
	}
	return fmt.Sprintf(
		"Automation Rule Executed\n\n"+
			"Campaign: %s\n"+
			"Metric: %s\n"+
			"Value: %s\n"+
			"Threshold: %s\n"+
			"Action: %s\n"+
			"Outcome: %s\n\n"+
			"Rule: %s",
		camp.Name,
		notify.MetricName(rule.Metric),
		notify.FormatMetricValue(rule.Metric, value),
		notify.FormatMetricValue(rule.Metric, rule.Threshold),
		rule.Action,
		outcome,
		rule.Name,
	)
}
