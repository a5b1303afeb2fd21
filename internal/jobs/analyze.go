package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/ai"
	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/reports"
)

// Analyzer produces markdown analysis for one report table.
type Analyzer interface {
	Analyze(ctx context.Context, req ai.Request) (string, error)
}

// PDFRenderer writes markdown to a PDF file.
type PDFRenderer func(markdown, title, outputPath string) (string, error)

// AnalyzeTask runs AI analysis over every template of a saved recipe
// and renders the combined text to PDF. Per-template failures become
// placeholder sections; the job itself still completes.
type AnalyzeTask struct {
	recipes  RecipeSource
	rows     RowSource
	analyzer Analyzer
	render   PDFRenderer
	dir      string
	now      func() time.Time
}

// NewAnalyzeTask creates the analyze handler writing PDFs into dir.
func NewAnalyzeTask(recipes RecipeSource, rows RowSource, analyzer Analyzer, dir string) *AnalyzeTask {
	return &AnalyzeTask{
		recipes:  recipes,
		rows:     rows,
		analyzer: analyzer,
		render:   ai.RenderPDF,
		dir:      dir,
		now:      time.Now,
	}
}

// Run executes one analyze job.
func (t *AnalyzeTask) Run(ctx context.Context, job Job, progress func(int)) (Result, error) {
	recipe, err := t.recipes.GetRecipe(ctx, job.SubjectID)
	if err != nil {
		return Result{}, err
	}
	if recipe == nil {
		return Result{}, fmt.Errorf("saved report %s not found", job.SubjectID)
	}
	if len(recipe.TemplateIDs) == 0 {
		return Result{}, fmt.Errorf("saved report %s has no templates", recipe.ID)
	}
	progress(10)

	n := len(recipe.TemplateIDs)
	sections := make([]string, 0, n)
	for i, tid := range recipe.TemplateIDs {
		tpl, ok := reports.TemplateByID(tid)
		if !ok {
			return Result{}, fmt.Errorf("unknown report template %q", tid)
		}
		sections = append(sections, t.analyzeTemplate(ctx, recipe, tpl))
		progress(10 + (i+1)*70/n)

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}

	combined := strings.Join(sections, "\n\n---\n\n")

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating reports dir: %w", err)
	}
	stamp := t.now().Format("20060102_150405")
	base := safeName(recipe.Name)
	pdfPath := filepath.Join(t.dir, fmt.Sprintf("%s_%s_%s.pdf", base, job.ID, stamp))
	if _, err := t.render(combined, recipe.Name, pdfPath); err != nil {
		return Result{}, fmt.Errorf("rendering analysis PDF: %w", err)
	}
	progress(95)

	return Result{
		ResultText:    combined,
		AuxOutputPath: pdfPath,
		OutputName:    fmt.Sprintf("%s_%s.pdf", base, stamp),
	}, nil
}

// analyzeTemplate never fails; fetch or analysis errors degrade to a
// placeholder section.
func (t *AnalyzeTask) analyzeTemplate(ctx context.Context, recipe *reports.SavedRecipe, tpl reports.Template) string {
	placeholder := fmt.Sprintf("## %s\n\nAnalysis could not be generated for this table.", tpl.Title)

	rows, err := t.rows.Rows(ctx, tpl.ID, recipe.WindowDays, recipe.AdAccountID)
	if err != nil {
		logger.Warn("analysis fetch failed", "template", tpl.ID, "error", err.Error())
		return placeholder
	}
	projected := reports.Project(rows, tpl.Columns)

	req := ai.Request{
		ReportName:    recipe.Name,
		TemplateTitle: tpl.Title,
		Columns:       tpl.Columns,
		Rows:          make([]map[string]string, len(projected)),
	}
	for i, row := range projected {
		req.Rows[i] = row
	}

	text, err := t.analyzer.Analyze(ctx, req)
	if err != nil {
		logger.Warn("analysis generation failed", "template", tpl.ID, "error", err.Error())
		return placeholder
	}
	return fmt.Sprintf("## %s\n\n%s", tpl.Title, strings.TrimSpace(text))
}
