package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adops-console/internal/ai"
	"github.com/ignite/adops-console/internal/reports"
)

type stubAnalyzer struct {
	err  error
	got  []ai.Request
	text string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req ai.Request) (string, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func newAnalyzeTask(t *testing.T, recipes stubRecipes, rows *stubRows, analyzer *stubAnalyzer) *AnalyzeTask {
	t.Helper()
	task := NewAnalyzeTask(recipes, rows, analyzer, t.TempDir())
	task.now = fixedNow
	task.render = func(markdown, title, outputPath string) (string, error) {
		return outputPath, nil
	}
	return task
}

func TestAnalyzeCombinesSections(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "Weekly Review", TemplateIDs: []string{"template_1", "template_10"}, WindowDays: 7,
	}}
	rows := &stubRows{rows: []reports.Row{{"Spend": "10.00"}}}
	analyzer := &stubAnalyzer{text: "Spend is healthy."}
	task := newAnalyzeTask(t, recipes, rows, analyzer)

	res, err := task.Run(context.Background(), Job{ID: "job1", SubjectID: "r1"}, func(int) {})
	require.NoError(t, err)

	parts := strings.Split(res.ResultText, "\n\n---\n\n")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "## Which campaign produces results at the lowest cost?"))
	assert.Contains(t, parts[0], "Spend is healthy.")

	assert.Equal(t, "Weekly_Review_job1_20260824_093000.pdf", filepath.Base(res.AuxOutputPath))
	assert.Equal(t, "Weekly_Review_20260824_093000.pdf", res.OutputName)

	require.Len(t, analyzer.got, 2)
	assert.Equal(t, "Weekly Review", analyzer.got[0].ReportName)
}

func TestAnalyzeAbsorbsPerTemplateFailures(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "Weekly", TemplateIDs: []string{"template_1", "template_10"}, WindowDays: 7,
	}}
	rows := &stubRows{rows: []reports.Row{{"Spend": "10.00"}}}
	analyzer := &stubAnalyzer{err: errors.New("model unavailable")}
	task := newAnalyzeTask(t, recipes, rows, analyzer)

	res, err := task.Run(context.Background(), Job{ID: "job2", SubjectID: "r1"}, func(int) {})
	require.NoError(t, err, "per-template analysis failures do not fail the job")
	assert.Equal(t, 2, strings.Count(res.ResultText, "Analysis could not be generated"))
}

func TestAnalyzeAbsorbsFetchFailures(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "Weekly", TemplateIDs: []string{"template_1"}, WindowDays: 7,
	}}
	rows := &stubRows{errs: []error{errors.New("upstream down")}}
	analyzer := &stubAnalyzer{text: "unused"}
	task := newAnalyzeTask(t, recipes, rows, analyzer)

	res, err := task.Run(context.Background(), Job{ID: "job3", SubjectID: "r1"}, func(int) {})
	require.NoError(t, err)
	assert.Contains(t, res.ResultText, "Analysis could not be generated")
	assert.Empty(t, analyzer.got, "no analysis attempted when rows are unavailable")
}

func TestAnalyzeRenderFailureFailsJob(t *testing.T) {
	recipes := stubRecipes{"r1": {
		ID: "r1", Name: "Weekly", TemplateIDs: []string{"template_1"}, WindowDays: 7,
	}}
	task := newAnalyzeTask(t, recipes, &stubRows{}, &stubAnalyzer{text: "ok"})
	task.render = func(markdown, title, outputPath string) (string, error) {
		return "", fmt.Errorf("disk full")
	}

	_, err := task.Run(context.Background(), Job{ID: "job4", SubjectID: "r1"}, func(int) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
