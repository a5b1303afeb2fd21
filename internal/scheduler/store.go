// Package scheduler drives periodic work: the beat process that owns
// rule checks and report delivery, the scheduled-report table, and the
// next-run arithmetic.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report kinds.
const (
	KindDailySummary  = "daily_summary"
	KindWeeklySummary = "weekly_summary"
	KindCampaignList  = "campaign_list"
	KindPerformance   = "performance"
)

// Frequencies.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// ScheduledReport is a recurring report delivery definition.
type ScheduledReport struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ReportKind  string     `json:"report_kind"`
	WindowDays  int        `json:"window_days"`
	AdAccountID string     `json:"ad_account_id,omitempty"`
	Frequency   string     `json:"frequency"`
	DayOfWeek   *int       `json:"day_of_week,omitempty"`
	DayOfMonth  *int       `json:"day_of_month,omitempty"`
	Hour        int        `json:"hour"`
	Minute      int        `json:"minute"`
	Timezone    string     `json:"timezone"`
	Channels    []string   `json:"channels"`
	EmailTo     string     `json:"email_to,omitempty"`
	IMTo        string     `json:"im_to,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	RunCount    int        `json:"run_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ReportLog is one execution record for a scheduled report.
type ReportLog struct {
	ID                string     `json:"id"`
	ScheduledReportID string     `json:"scheduled_report_id"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	SummaryData       string     `json:"summary_data,omitempty"`
	AnalysisText      string     `json:"analysis_text,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	ChannelsDelivered []string   `json:"channels_delivered"`
}

var reportKinds = map[string]bool{
	KindDailySummary: true, KindWeeklySummary: true,
	KindCampaignList: true, KindPerformance: true,
}

// Validate checks the schedule definition.
func (r *ScheduledReport) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("report name required")
	}
	if !reportKinds[r.ReportKind] {
		return fmt.Errorf("unknown report_kind %q", r.ReportKind)
	}
	if r.WindowDays < 1 {
		return fmt.Errorf("window_days must be at least 1")
	}
	switch r.Frequency {
	case FreqDaily:
	case FreqWeekly:
		if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return fmt.Errorf("weekly frequency needs day_of_week 0-6")
		}
	case FreqMonthly:
		if r.DayOfMonth == nil || *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return fmt.Errorf("monthly frequency needs day_of_month 1-31")
		}
	default:
		return fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("hour must be 0-23")
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("minute must be 0-59")
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", r.Timezone)
		}
	}
	for _, ch := range r.Channels {
		if ch != "email" && ch != "im" {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	return nil
}

// Store persists scheduled reports and their execution logs.
type Store struct {
	db *sql.DB
}

// NewStore creates a scheduled-report store.
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

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create validates, computes next_run_at and inserts.
func (s *Store) Create(ctx context.Context, r *ScheduledReport, now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	next, err := NextRun(r, now)
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.IsActive = true
	r.NextRunAt = &next
	return s.db.QueryRowContext(ctx, `
		INSERT INTO scheduled_reports
			(id, name, report_kind, window_days, ad_account_id, frequency,
			 day_of_week, day_of_month, hour, minute, timezone, channels,
			 email_to, im_to, is_active, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE, $15)
		RETURNING created_at
	`, r.ID, r.Name, r.ReportKind, r.WindowDays, nullable(r.AdAccountID), r.Frequency,
		r.DayOfWeek, r.DayOfMonth, r.Hour, r.Minute, r.Timezone, marshalList(r.Channels),
		nullable(r.EmailTo), nullable(r.IMTo), next,
	).Scan(&r.CreatedAt)
}

const reportColumns = `
	id, name, report_kind, window_days, COALESCE(ad_account_id, ''), frequency,
	day_of_week, day_of_month, hour, minute, COALESCE(timezone, ''), channels,
	COALESCE(email_to, ''), COALESCE(im_to, ''), is_active,
	last_run_at, next_run_at, run_count, created_at`

func scanReport(row interface{ Scan(...interface{}) error }) (*ScheduledReport, error) {
	var r ScheduledReport
	var channels []byte
	err := row.Scan(
		&r.ID, &r.Name, &r.ReportKind, &r.WindowDays, &r.AdAccountID, &r.Frequency,
		&r.DayOfWeek, &r.DayOfMonth, &r.Hour, &r.Minute, &r.Timezone, &channels,
		&r.EmailTo, &r.IMTo, &r.IsActive,
		&r.LastRunAt, &r.NextRunAt, &r.RunCount, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(channels, &r.Channels)
	return &r, nil
}

// Get reads one schedule; nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*ScheduledReport, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT`+reportColumns+` FROM scheduled_reports WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// List returns all schedules, newest first.
func (s *Store) List(ctx context.Context) ([]ScheduledReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+reportColumns+` FROM scheduled_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Update rewrites the definition and recomputes next_run_at.
func (s *Store) Update(ctx context.Context, r *ScheduledReport, now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	next, err := NextRun(r, now)
	if err != nil {
		return err
	}
	r.NextRunAt = &next
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_reports
		SET name = $2, report_kind = $3, window_days = $4, ad_account_id = $5,
		    frequency = $6, day_of_week = $7, day_of_month = $8, hour = $9,
		    minute = $10, timezone = $11, channels = $12, email_to = $13,
		    im_to = $14, next_run_at = $15
		WHERE id = $1
	`, r.ID, r.Name, r.ReportKind, r.WindowDays, nullable(r.AdAccountID),
		r.Frequency, r.DayOfWeek, r.DayOfMonth, r.Hour,
		r.Minute, r.Timezone, marshalList(r.Channels), nullable(r.EmailTo),
		nullable(r.IMTo), next)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Toggle flips is_active. Activation recomputes next_run_at;
// deactivation clears it.
func (s *Store) Toggle(ctx context.Context, id string, now time.Time) (*ScheduledReport, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, sql.ErrNoRows
	}

	if r.IsActive {
		_, err = s.db.ExecContext(ctx, `
			UPDATE scheduled_reports SET is_active = FALSE, next_run_at = NULL WHERE id = $1
		`, id)
		if err != nil {
			return nil, err
		}
		r.IsActive = false
		r.NextRunAt = nil
		return r, nil
	}

	next, err := NextRun(r, now)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE scheduled_reports SET is_active = TRUE, next_run_at = $2 WHERE id = $1
	`, id, next)
	if err != nil {
		return nil, err
	}
	r.IsActive = true
	r.NextRunAt = &next
	return r, nil
}

// Delete removes a schedule and its logs.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_report_logs WHERE scheduled_report_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scheduled_reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// Due returns active schedules whose next_run_at has passed.
func (s *Store) Due(ctx context.Context, now time.Time) ([]ScheduledReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+reportColumns+` FROM scheduled_reports
		WHERE is_active AND next_run_at IS NOT NULL AND next_run_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SetNextRun stamps next_run_at. The worker calls this before its
// heavy work so a slow run is not picked up twice.
func (s *Store) SetNextRun(ctx context.Context, id string, next time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_reports SET next_run_at = $2 WHERE id = $1`, id, next)
	return err
}

// MarkRun stamps last_run_at and bumps run_count after a delivery.
func (s *Store) MarkRun(ctx context.Context, id string, ranAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_reports
		SET last_run_at = $2, run_count = run_count + 1
		WHERE id = $1
	`, id, ranAt)
	return err
}

// CreateLog inserts a running log row.
func (s *Store) CreateLog(ctx context.Context, l *ReportLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.Status = "running"
	return s.db.QueryRowContext(ctx, `
		INSERT INTO scheduled_report_logs (id, scheduled_report_id, status)
		VALUES ($1, $2, 'running')
		RETURNING started_at
	`, l.ID, l.ScheduledReportID).Scan(&l.StartedAt)
}

// FinishLog records the outcome of a run.
func (s *Store) FinishLog(ctx context.Context, l *ReportLog) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_report_logs
		SET status = $2, completed_at = NOW(), summary_data = $3,
		    analysis_text = $4, error_message = $5, channels_delivered = $6
		WHERE id = $1
	`, l.ID, l.Status, nullable(l.SummaryData), nullable(l.AnalysisText),
		nullable(l.ErrorMessage), marshalList(l.ChannelsDelivered))
	return err
}

// ListLogs returns execution logs, newest first. reportID empty means
// all schedules.
func (s *Store) ListLogs(ctx context.Context, reportID string, limit int) ([]ReportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, scheduled_report_id, status, started_at, completed_at,
		       COALESCE(summary_data, ''), COALESCE(analysis_text, ''),
		       COALESCE(error_message, ''), channels_delivered
		FROM scheduled_report_logs`
	args := []interface{}{}
	if reportID != "" {
		q += ` WHERE scheduled_report_id = $1 ORDER BY started_at DESC LIMIT $2`
		args = append(args, reportID, limit)
	} else {
		q += ` ORDER BY started_at DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportLog
	for rows.Next() {
		var l ReportLog
		var channels []byte
		if err := rows.Scan(&l.ID, &l.ScheduledReportID, &l.Status, &l.StartedAt, &l.CompletedAt,
			&l.SummaryData, &l.AnalysisText, &l.ErrorMessage, &channels); err != nil {
			return nil, err
		}
		json.Unmarshal(channels, &l.ChannelsDelivered)
		out = append(out, l)
	}
	return out, rows.Err()
}
