package scheduler

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func validReport() *ScheduledReport {
	return &ScheduledReport{
		Name:       "Morning digest",
		ReportKind: KindDailySummary,
		WindowDays: 7,
		Frequency:  FreqDaily,
		Hour:       9,
		Minute:     0,
		Channels:   []string{"email"},
		EmailTo:    "ops@example.com",
	}
}

func reportColumnNames() []string {
	return []string{
		"id", "name", "report_kind", "window_days", "ad_account_id", "frequency",
		"day_of_week", "day_of_month", "hour", "minute", "timezone", "channels",
		"email_to", "im_to", "is_active", "last_run_at", "next_run_at", "run_count", "created_at",
	}
}

func reportRow(active bool, next interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(reportColumnNames()).AddRow(
		"sr1", "Morning digest", KindDailySummary, 7, "", FreqDaily,
		nil, nil, 9, 0, "", []byte(`["email"]`),
		"ops@example.com", "", active, nil, next, 3, time.Now(),
	)
}

func TestValidateScheduledReport(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ScheduledReport)
		wantErr string
	}{
		{"empty name", func(r *ScheduledReport) { r.Name = " " }, "name required"},
		{"bad kind", func(r *ScheduledReport) { r.ReportKind = "quarterly" }, "report_kind"},
		{"bad window", func(r *ScheduledReport) { r.WindowDays = 0 }, "window_days"},
		{"weekly without day", func(r *ScheduledReport) { r.Frequency = FreqWeekly }, "day_of_week"},
		{"monthly day out of range", func(r *ScheduledReport) {
			r.Frequency = FreqMonthly
			r.DayOfMonth = intp(32)
		}, "day_of_month"},
		{"bad hour", func(r *ScheduledReport) { r.Hour = 24 }, "hour"},
		{"bad minute", func(r *ScheduledReport) { r.Minute = 60 }, "minute"},
		{"bad timezone", func(r *ScheduledReport) { r.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad channel", func(r *ScheduledReport) { r.Channels = []string{"fax"} }, "channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(r)
			assert.ErrorContains(t, r.Validate(), tt.wantErr)
		})
	}
	assert.NoError(t, validReport().Validate())
}

func TestCreateComputesNextRun(t *testing.T) {
	store, mock := newMockStore(t)
	now := utc(2026, 8, 24, 8, 0, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO scheduled_reports`)).
		WithArgs(sqlmock.AnyArg(), "Morning digest", KindDailySummary, 7, sql.NullString{},
			FreqDaily, nil, nil, 9, 0, "", []byte(`["email"]`),
			sql.NullString{String: "ops@example.com", Valid: true}, sql.NullString{},
			utc(2026, 8, 24, 9, 0, 0)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	r := validReport()
	require.NoError(t, store.Create(context.Background(), r, now))
	assert.NotEmpty(t, r.ID)
	assert.True(t, r.IsActive)
	require.NotNil(t, r.NextRunAt)
	assert.Equal(t, utc(2026, 8, 24, 9, 0, 0), *r.NextRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	r := validReport()
	r.Frequency = FreqWeekly
	assert.ErrorContains(t, store.Create(context.Background(), r, time.Now()), "day_of_week")
	assert.NoError(t, mock.ExpectationsWereMet(), "no SQL on validation failure")
}

func TestDueSelectsPastNextRun(t *testing.T) {
	store, mock := newMockStore(t)
	now := utc(2026, 8, 24, 9, 0, 5)

	mock.ExpectQuery(regexp.QuoteMeta(`next_run_at IS NOT NULL AND next_run_at <= $1`)).
		WithArgs(now).
		WillReturnRows(reportRow(true, utc(2026, 8, 24, 9, 0, 0)))

	due, err := store.Due(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "sr1", due[0].ID)
	assert.Equal(t, []string{"email"}, due[0].Channels)
}

func TestToggleDeactivateClearsNextRun(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM scheduled_reports WHERE id = $1`)).
		WithArgs("sr1").
		WillReturnRows(reportRow(true, utc(2026, 8, 24, 9, 0, 0)))
	mock.ExpectExec(regexp.QuoteMeta(`SET is_active = FALSE, next_run_at = NULL`)).
		WithArgs("sr1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r, err := store.Toggle(context.Background(), "sr1", utc(2026, 8, 24, 10, 0, 0))
	require.NoError(t, err)
	assert.False(t, r.IsActive)
	assert.Nil(t, r.NextRunAt)
}

func TestToggleActivateRecomputesNextRun(t *testing.T) {
	store, mock := newMockStore(t)
	now := utc(2026, 8, 24, 10, 0, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM scheduled_reports WHERE id = $1`)).
		WithArgs("sr1").
		WillReturnRows(reportRow(false, nil))
	mock.ExpectExec(regexp.QuoteMeta(`SET is_active = TRUE, next_run_at = $2`)).
		WithArgs("sr1", utc(2026, 8, 25, 9, 0, 0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r, err := store.Toggle(context.Background(), "sr1", now)
	require.NoError(t, err)
	assert.True(t, r.IsActive)
	require.NotNil(t, r.NextRunAt)
	assert.Equal(t, utc(2026, 8, 25, 9, 0, 0), *r.NextRunAt)
}

func TestToggleMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM scheduled_reports WHERE id = $1`)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Toggle(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteCascadesLogs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM scheduled_report_logs WHERE scheduled_report_id = $1`)).
		WithArgs("sr1").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM scheduled_reports WHERE id = $1`)).
		WithArgs("sr1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Delete(context.Background(), "sr1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRunBumpsCount(t *testing.T) {
	store, mock := newMockStore(t)
	ranAt := utc(2026, 8, 24, 9, 0, 10)

	mock.ExpectExec(regexp.QuoteMeta(`SET last_run_at = $2, run_count = run_count + 1`)).
		WithArgs("sr1", ranAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkRun(context.Background(), "sr1", ranAt))
}

func TestFinishLogPersistsOutcome(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE scheduled_report_logs`)).
		WithArgs("log1", "success",
			sql.NullString{String: `{"campaign_count":2}`, Valid: true},
			sql.NullString{String: "analysis", Valid: true},
			sql.NullString{}, []byte(`["email"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := &ReportLog{
		ID:                "log1",
		Status:            "success",
		SummaryData:       `{"campaign_count":2}`,
		AnalysisText:      "analysis",
		ChannelsDelivered: []string{"email"},
	}
	require.NoError(t, store.FinishLog(context.Background(), l))
}

func TestListLogsScans(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM scheduled_report_logs`)).
		WithArgs("sr1", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "scheduled_report_id", "status", "started_at", "completed_at",
			"summary_data", "analysis_text", "error_message", "channels_delivered",
		}).AddRow("log1", "sr1", "success", now, now, `{"campaign_count":2}`, "", "", []byte(`["email","im"]`)))

	logs, err := store.ListLogs(context.Background(), "sr1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, []string{"email", "im"}, logs[0].ChannelsDelivered)
	assert.Equal(t, "success", logs[0].Status)
}
