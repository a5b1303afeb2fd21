package jobs

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/reports"
)

// RecipeSource loads saved report recipes.
type RecipeSource interface {
	GetRecipe(ctx context.Context, id string) (*reports.SavedRecipe, error)
}

// RowSource materializes report rows for a template.
type RowSource interface {
	Rows(ctx context.Context, templateID string, days int, accountID string) ([]reports.Row, error)
}

// FileRecorder tracks generated files against their recipe.
type FileRecorder interface {
	AddFileRecord(ctx context.Context, f *reports.FileRecord) error
}

// ExportTask materializes a saved recipe into CSV output. One template
// yields a single CSV file; several yield a zip with one entry each.
type ExportTask struct {
	recipes RecipeSource
	rows    RowSource
	files   FileRecorder
	dir     string

	retryWait   time.Duration
	templateGap time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewExportTask creates the export handler writing into dir. files may
// be nil to skip bookkeeping.
func NewExportTask(recipes RecipeSource, rows RowSource, files FileRecorder, dir string) *ExportTask {
	return &ExportTask{
		recipes:     recipes,
		rows:        rows,
		files:       files,
		dir:         dir,
		retryWait:   120 * time.Second,
		templateGap: 8 * time.Second,
		sleep:       sleepCtx,
		now:         time.Now,
	}
}

// Run executes one export job.
func (t *ExportTask) Run(ctx context.Context, job Job, progress func(int)) (Result, error) {
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

	type section struct {
		tpl  reports.Template
		rows []reports.Row
	}
	n := len(recipe.TemplateIDs)
	sections := make([]section, 0, n)

	for i, tid := range recipe.TemplateIDs {
		tpl, ok := reports.TemplateByID(tid)
		if !ok {
			return Result{}, fmt.Errorf("unknown report template %q", tid)
		}

		rows, err := t.fetchWithRetry(ctx, tid, recipe.WindowDays, recipe.AdAccountID)
		if err != nil {
			return Result{}, err
		}
		sections = append(sections, section{tpl: tpl, rows: reports.Project(rows, tpl.Columns)})

		if n == 1 {
			progress(70)
		} else {
			progress(10 + (i+1)*80/n)
		}
		if i < n-1 {
			if err := t.sleep(ctx, t.templateGap); err != nil {
				return Result{}, err
			}
		}
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating reports dir: %w", err)
	}

	stamp := t.now().Format("20060102_150405")
	base := safeName(recipe.Name)

	var outputPath, outputName string
	if n == 1 {
		outputPath = filepath.Join(t.dir, fmt.Sprintf("%s_%s_%s.csv", base, job.ID, stamp))
		outputName = fmt.Sprintf("%s_%s.csv", base, stamp)
		if err := writeCSVFile(outputPath, sections[0].tpl.Columns, sections[0].rows); err != nil {
			return Result{}, err
		}
	} else {
		outputPath = filepath.Join(t.dir, fmt.Sprintf("%s_%s_%s.zip", base, job.ID, stamp))
		outputName = fmt.Sprintf("%s_%s.zip", base, stamp)
		zf, err := os.Create(outputPath)
		if err != nil {
			return Result{}, fmt.Errorf("creating zip: %w", err)
		}
		zw := zip.NewWriter(zf)
		for _, sec := range sections {
			entry, err := zw.Create(safeName(sec.tpl.Title) + ".csv")
			if err != nil {
				zf.Close()
				return Result{}, err
			}
			if err := reports.WriteCSV(entry, sec.tpl.Columns, sec.rows); err != nil {
				zf.Close()
				return Result{}, err
			}
		}
		if err := zw.Close(); err != nil {
			zf.Close()
			return Result{}, err
		}
		if err := zf.Close(); err != nil {
			return Result{}, err
		}
	}

	if t.files != nil {
		templateID := recipe.TemplateIDs[0]
		if n > 1 {
			templateID = ""
		}
		if err := t.files.AddFileRecord(ctx, &reports.FileRecord{
			RecipeID:   recipe.ID,
			TemplateID: templateID,
			FilePath:   outputPath,
			FileName:   outputName,
		}); err != nil {
			return Result{}, fmt.Errorf("recording report file: %w", err)
		}
	}

	progress(100)
	return Result{OutputPath: outputPath, OutputName: outputName}, nil
}

// fetchWithRetry retries rate-limited fetches up to 3 attempts with a
// long wait in between. Other errors fail immediately.
func (t *ExportTask) fetchWithRetry(ctx context.Context, templateID string, days int, accountID string) ([]reports.Row, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		rows, err := t.rows.Rows(ctx, templateID, days, accountID)
		if err == nil {
			return rows, nil
		}
		if !meta.IsRateLimited(err) {
			return nil, err
		}
		lastErr = err
		if attempt < 2 {
			if serr := t.sleep(ctx, t.retryWait); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
}

func writeCSVFile(path string, columns []string, rows []reports.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := reports.WriteCSV(f, columns, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// safeName keeps filenames shell and URL friendly.
func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "report"
	}
	return b.String()
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
