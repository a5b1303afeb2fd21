package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Store handles CRUD for alert_rules, automation_rules and their
// history tables.
type Store struct {
	db *sql.DB
}

// NewStore creates a rule store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func marshalList(items []string) []byte {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return b
}

// CreateAlertRule validates and inserts a rule.
func (s *Store) CreateAlertRule(ctx context.Context, r *AlertRule) error {
	if err := ValidateAlertRule(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.IsActive = true
	return s.db.QueryRowContext(ctx, `
		INSERT INTO alert_rules
			(id, name, metric, condition, threshold, ad_account_id, channels,
			 email_to, im_to, cooldown_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		RETURNING created_at
	`, r.ID, r.Name, r.Metric, r.Condition, r.Threshold, nullable(r.AdAccountID),
		marshalList(r.Channels), nullable(r.EmailTo), nullable(r.IMTo), r.CooldownMinutes,
	).Scan(&r.CreatedAt)
}

const alertRuleColumns = `
	id, name, metric, condition, threshold, COALESCE(ad_account_id, ''),
	channels, COALESCE(email_to, ''), COALESCE(im_to, ''),
	cooldown_minutes, is_active, last_triggered, trigger_count, created_at`

func scanAlertRule(row interface{ Scan(...interface{}) error }) (*AlertRule, error) {
	var r AlertRule
	var channels []byte
	err := row.Scan(
		&r.ID, &r.Name, &r.Metric, &r.Condition, &r.Threshold, &r.AdAccountID,
		&channels, &r.EmailTo, &r.IMTo,
		&r.CooldownMinutes, &r.IsActive, &r.LastTriggered, &r.TriggerCount, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(channels, &r.Channels)
	return &r, nil
}

// GetAlertRule reads one rule; nil when absent.
func (s *Store) GetAlertRule(ctx context.Context, id string) (*AlertRule, error) {
	r, err := scanAlertRule(s.db.QueryRowContext(ctx,
		`SELECT`+alertRuleColumns+` FROM alert_rules WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListAlertRules returns rules, optionally only active ones.
func (s *Store) ListAlertRules(ctx context.Context, activeOnly bool) ([]AlertRule, error) {
	q := `SELECT` + alertRuleColumns + ` FROM alert_rules`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRule
	for rows.Next() {
		r, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ToggleAlertRule flips is_active and returns the new value.
func (s *Store) ToggleAlertRule(ctx context.Context, id string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE alert_rules SET is_active = NOT is_active
		WHERE id = $1 RETURNING is_active
	`, id).Scan(&active)
	if err == sql.ErrNoRows {
		return false, sql.ErrNoRows
	}
	return active, err
}

// DeleteAlertRule removes a rule and its history.
func (s *Store) DeleteAlertRule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history WHERE rule_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// MarkAlertTriggered stamps last_triggered and bumps trigger_count.
func (s *Store) MarkAlertTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules
		SET last_triggered = $2, trigger_count = trigger_count + 1
		WHERE id = $1
	`, id, at)
	return err
}

// AddAlertHistory appends one fired-alert row.
func (s *Store) AddAlertHistory(ctx context.Context, h *AlertHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO alert_history
			(id, rule_id, campaign_id, campaign_name, metric, threshold,
			 actual_value, message, channels_delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sent_at
	`, h.ID, h.RuleID, nullable(h.CampaignID), nullable(h.CampaignName), h.Metric,
		h.Threshold, h.ActualValue, h.Message, marshalList(h.ChannelsDelivered),
	).Scan(&h.SentAt)
}

// ListAlertHistory returns recent fired alerts, newest first. ruleID
// empty means all rules.
func (s *Store) ListAlertHistory(ctx context.Context, ruleID string, limit int) ([]AlertHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, rule_id, COALESCE(campaign_id, ''), COALESCE(campaign_name, ''),
		       metric, threshold, actual_value, message, channels_delivered, sent_at
		FROM alert_history`
	args := []interface{}{}
	if ruleID != "" {
		q += ` WHERE rule_id = $1 ORDER BY sent_at DESC LIMIT $2`
		args = append(args, ruleID, limit)
	} else {
		q += ` ORDER BY sent_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertHistory
	for rows.Next() {
		var h AlertHistory
		var channels []byte
		if err := rows.Scan(&h.ID, &h.RuleID, &h.CampaignID, &h.CampaignName,
			&h.Metric, &h.Threshold, &h.ActualValue, &h.Message, &channels, &h.SentAt); err != nil {
			return nil, err
		}
		json.Unmarshal(channels, &h.ChannelsDelivered)
		out = append(out, h)
	}
	return out, rows.Err()
}

// CreateAutomationRule validates and inserts an automation rule.
func (s *Store) CreateAutomationRule(ctx context.Context, r *AutomationRule) error {
	if err := ValidateAutomationRule(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.IsActive = true
	return s.db.QueryRowContext(ctx, `
		INSERT INTO automation_rules
			(id, name, metric, condition, threshold, ad_account_id, channels,
			 email_to, im_to, cooldown_minutes, is_active, action, action_value, campaign_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12, $13)
		RETURNING created_at
	`, r.ID, r.Name, r.Metric, r.Condition, r.Threshold, nullable(r.AdAccountID),
		marshalList(r.Channels), nullable(r.EmailTo), nullable(r.IMTo), r.CooldownMinutes,
		r.Action, r.ActionValue, marshalList(r.CampaignIDs),
	).Scan(&r.CreatedAt)
}

const automationRuleColumns = `
	id, name, metric, condition, threshold, COALESCE(ad_account_id, ''),
	channels, COALESCE(email_to, ''), COALESCE(im_to, ''),
	cooldown_minutes, is_active, last_triggered, trigger_count, created_at,
	action, COALESCE(action_value, 0), campaign_ids`

func scanAutomationRule(row interface{ Scan(...interface{}) error }) (*AutomationRule, error) {
	var r AutomationRule
	var channels, campaignIDs []byte
	err := row.Scan(
		&r.ID, &r.Name, &r.Metric, &r.Condition, &r.Threshold, &r.AdAccountID,
		&channels, &r.EmailTo, &r.IMTo,
		&r.CooldownMinutes, &r.IsActive, &r.LastTriggered, &r.TriggerCount, &r.CreatedAt,
		&r.Action, &r.ActionValue, &campaignIDs,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(channels, &r.Channels)
	json.Unmarshal(campaignIDs, &r.CampaignIDs)
	return &r, nil
}

// GetAutomationRule reads one rule; nil when absent.
func (s *Store) GetAutomationRule(ctx context.Context, id string) (*AutomationRule, error) {
	r, err := scanAutomationRule(s.db.QueryRowContext(ctx,
		`SELECT`+automationRuleColumns+` FROM automation_rules WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListAutomationRules returns automation rules, optionally active
// only.
func (s *Store) ListAutomationRules(ctx context.Context, activeOnly bool) ([]AutomationRule, error) {
	q := `SELECT` + automationRuleColumns + ` FROM automation_rules`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AutomationRule
	for rows.Next() {
		r, err := scanAutomationRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ToggleAutomationRule flips is_active and returns the new value.
func (s *Store) ToggleAutomationRule(ctx context.Context, id string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE automation_rules SET is_active = NOT is_active
		WHERE id = $1 RETURNING is_active
	`, id).Scan(&active)
	return active, err
}

// DeleteAutomationRule removes a rule and its logs.
func (s *Store) DeleteAutomationRule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM automation_logs WHERE rule_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// MarkAutomationTriggered stamps last_triggered and adds the number
// of campaign matches to trigger_count.
func (s *Store) MarkAutomationTriggered(ctx context.Context, id string, at time.Time, matches int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET last_triggered = $2, trigger_count = trigger_count + $3
		WHERE id = $1
	`, id, at, matches)
	return err
}

// AddAutomationLog appends one executed-action row.
func (s *Store) AddAutomationLog(ctx context.Context, l *AutomationLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO automation_logs
			(id, rule_id, campaign_id, campaign_name, action_taken, metric,
			 threshold, actual_value, success, message, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING executed_at
	`, l.ID, l.RuleID, l.CampaignID, nullable(l.CampaignName), l.ActionTaken, l.Metric,
		l.Threshold, l.ActualValue, l.Success, nullable(l.Message), nullable(l.Error),
	).Scan(&l.ExecutedAt)
}

// ListAutomationLogs returns recent automation executions, newest
// first. ruleID empty means all rules.
func (s *Store) ListAutomationLogs(ctx context.Context, ruleID string, limit int) ([]AutomationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, rule_id, campaign_id, COALESCE(campaign_name, ''), action_taken,
		       metric, threshold, actual_value, success, COALESCE(message, ''),
		       COALESCE(error, ''), executed_at
		FROM automation_logs`
	args := []interface{}{}
	if ruleID != "" {
		q += ` WHERE rule_id = $1 ORDER BY executed_at DESC LIMIT $2`
		args = append(args, ruleID, limit)
	} else {
		q += ` ORDER BY executed_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AutomationLog
	for rows.Next() {
		var l AutomationLog
		if err := rows.Scan(&l.ID, &l.RuleID, &l.CampaignID, &l.CampaignName, &l.ActionTaken,
			&l.Metric, &l.Threshold, &l.ActualValue, &l.Success, &l.Message,
			&l.Error, &l.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpdateAlertRule rewrites the editable fields; bookkeeping columns
// are preserved.
func (s *Store) UpdateAlertRule(ctx context.Context, r *AlertRule) error {
	if err := ValidateAlertRule(r); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules
		SET name = $2, metric = $3, condition = $4, threshold = $5,
		    ad_account_id = $6, channels = $7, email_to = $8, im_to = $9,
		    cooldown_minutes = $10
		WHERE id = $1
	`, r.ID, r.Name, r.Metric, r.Condition, r.Threshold,
		nullable(r.AdAccountID), marshalList(r.Channels), nullable(r.EmailTo), nullable(r.IMTo),
		r.CooldownMinutes)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateAutomationRule rewrites the editable fields.
func (s *Store) UpdateAutomationRule(ctx context.Context, r *AutomationRule) error {
	if err := ValidateAutomationRule(r); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = $2, metric = $3, condition = $4, threshold = $5,
		    ad_account_id = $6, channels = $7, email_to = $8, im_to = $9,
		    cooldown_minutes = $10, action = $11, action_value = $12, campaign_ids = $13
		WHERE id = $1
	`, r.ID, r.Name, r.Metric, r.Condition, r.Threshold,
		nullable(r.AdAccountID), marshalList(r.Channels), nullable(r.EmailTo), nullable(r.IMTo),
		r.CooldownMinutes, r.Action, r.ActionValue, marshalList(r.CampaignIDs))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
