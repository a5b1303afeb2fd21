package jobs

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/reports"
)

type stubRecipes map[string]*reports.SavedRecipe

func (s stubRecipes) GetRecipe(ctx context.Context, id string) (*reports.SavedRecipe, error) {
	return s[id], nil
}

type stubRows struct {
	calls   int
	errs    []error
	rows    []reports.Row
	gotTpls []string
}

func (s *stubRows) Rows(ctx context.Context, templateID string, days int, accountID string) ([]reports.Row, error) {
	s.gotTpls = append(s.gotTpls, templateID)
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.rows, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)
}

func newExportTask(t *testing.T, recipes stubRecipes, rows *stubRows) (*ExportTask, *time.Duration) {
	t.Helper()
	task := NewExportTask(recipes, rows, nil, t.TempDir())
	task.now = fixedNow
	var slept time.Duration
	task.sleep = func(ctx context.Context, d time.Duration) error {
		slept += d
		return nil
	}
	return task, &slept
}

func TestExportSingleTemplate(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "Smoke Test", TemplateIDs: []string{"template_1"}, WindowDays: 7,
	}}
	rows := &stubRows{rows: []reports.Row{
		{"Campaign Name": "Summer Sale", "Spend": "100.00", "Results": "8", "Cost Per Result": "12.50", "Status": "ACTIVE"},
	}}
	task, _ := newExportTask(t, recipes, rows)

	var points []int
	res, err := task.Run(context.Background(), Job{ID: "job1", SubjectID: "r1"}, func(p int) { points = append(points, p) })
	require.NoError(t, err)

	assert.Equal(t, "Smoke_Test_job1_20260824_093000.csv", filepath.Base(res.OutputPath))
	assert.Equal(t, "Smoke_Test_20260824_093000.csv", res.OutputName, "download name omits the job id")
	assert.Equal(t, []int{10, 70, 100}, points)

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "Campaign Name,Spend,Results,Cost Per Result,Status", lines[0])
	assert.Contains(t, lines[1], "Summer Sale")
}

func TestExportMultiTemplateZips(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "Weekly", TemplateIDs: []string{"template_1", "template_10"}, WindowDays: 7,
	}}
	rows := &stubRows{rows: []reports.Row{{"Spend": "1.00"}}}
	task, slept := newExportTask(t, recipes, rows)

	var points []int
	res, err := task.Run(context.Background(), Job{ID: "job2", SubjectID: "r1"}, func(p int) { points = append(points, p) })
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(res.OutputPath, ".zip"))
	assert.Equal(t, []int{10, 50, 90, 100}, points)
	assert.Equal(t, 8*time.Second, *slept, "templates are spaced out")

	zr, err := zip.OpenReader(res.OutputPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
	names := []string{zr.File[0].Name, zr.File[1].Name}
	assert.Contains(t, names[0], ".csv")
	assert.NotEqual(t, names[0], names[1])
}

func TestExportRateLimitRetry(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "SmokeTest", TemplateIDs: []string{"template_1"}, WindowDays: 7,
	}}
	rl := &meta.APIError{Class: meta.ErrClassRateLimited, StatusCode: 429, Message: "User request limit reached"}
	rows := &stubRows{
		errs: []error{rl, rl, nil},
		rows: []reports.Row{{"Campaign Name": "A", "Spend": "1.00"}},
	}
	task, slept := newExportTask(t, recipes, rows)

	res, err := task.Run(context.Background(), Job{ID: "job3", SubjectID: "r1"}, func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 3, rows.calls, "two rate-limited attempts then success")
	assert.GreaterOrEqual(t, *slept, 240*time.Second, "waits between retries accumulate")

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Campaign Name")
}

func TestExportRateLimitExhausted(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "x", TemplateIDs: []string{"template_1"}, WindowDays: 7,
	}}
	rl := &meta.APIError{Class: meta.ErrClassRateLimited, StatusCode: 429, Message: "limit"}
	rows := &stubRows{errs: []error{rl, rl, rl}}
	task, _ := newExportTask(t, recipes, rows)

	_, err := task.Run(context.Background(), Job{ID: "job4", SubjectID: "r1"}, func(int) {})
	require.Error(t, err)
	assert.True(t, meta.IsRateLimited(err))
	assert.Equal(t, 3, rows.calls)
}

func TestExportOtherErrorFailsFast(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "x", TemplateIDs: []string{"template_1"}, WindowDays: 7,
	}}
	rows := &stubRows{errs: []error{errors.New("boom")}}
	task, slept := newExportTask(t, recipes, rows)

	_, err := task.Run(context.Background(), Job{ID: "job5", SubjectID: "r1"}, func(int) {})
	require.Error(t, err)
	assert.Equal(t, 1, rows.calls)
	assert.Zero(t, *slept)
}

func TestExportMissingRecipe(t *testing.T) {
	task, _ := newExportTask(t, stubRecipes{}, &stubRows{})
	_, err := task.Run(context.Background(), Job{ID: "job6", SubjectID: "nope"}, func(int) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Weekly_Report", safeName("Weekly Report"))
	assert.Equal(t, "acct-7_summary", safeName("acct-7 summary!"))
	assert.Equal(t, "report", safeName("???"))
}
