package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/storage"
)

// Uploader stores one local file in the archive bucket.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) (*storage.UploadResult, error)
}

// ArchiveTask uploads every CSV and zip under the reports directory to
// the archive bucket under a date-scoped prefix. Per-file failures are
// collected; the job still completes.
type ArchiveTask struct {
	uploader Uploader
	dir      string
	prefix   string
	now      func() time.Time
}

// NewArchiveTask creates the archive handler reading from dir.
func NewArchiveTask(uploader Uploader, dir, prefix string) *ArchiveTask {
	if prefix == "" {
		prefix = "reports"
	}
	return &ArchiveTask{
		uploader: uploader,
		dir:      dir,
		prefix:   strings.Trim(prefix, "/"),
		now:      time.Now,
	}
}

type archiveSummary struct {
	Uploaded []storage.UploadResult `json:"uploaded"`
	Failed   []archiveFailure       `json:"failed,omitempty"`
}

type archiveFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Run executes one archive job. The job subject, when set, overrides
// the configured bucket.
func (t *ArchiveTask) Run(ctx context.Context, job Job, progress func(int)) (Result, error) {
	var candidates []string
	err := filepath.WalkDir(t.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".zip":
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scanning reports dir: %w", err)
	}
	progress(10)

	summary := archiveSummary{Uploaded: []storage.UploadResult{}}
	datePrefix := fmt.Sprintf("%s/%s", t.prefix, t.now().UTC().Format("2006/01/02"))

	for i, path := range candidates {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		rel, relErr := filepath.Rel(t.dir, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		key := datePrefix + "/" + filepath.ToSlash(rel)

		res, upErr := t.uploader.Upload(ctx, path, job.SubjectID, key)
		if upErr != nil {
			logger.Warn("archive upload failed", "file", path, "error", upErr.Error())
			summary.Failed = append(summary.Failed, archiveFailure{File: rel, Error: upErr.Error()})
		} else {
			summary.Uploaded = append(summary.Uploaded, *res)
		}
		progress(10 + (i+1)*90/len(candidates))
	}

	text, err := json.Marshal(summary)
	if err != nil {
		return Result{}, err
	}
	return Result{ResultText: string(text)}, nil
}
