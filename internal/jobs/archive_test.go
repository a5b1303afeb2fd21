package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adops-console/internal/storage"
)

type stubUploader struct {
	keys    []string
	buckets []string
	failOn  string
}

func (s *stubUploader) Upload(ctx context.Context, localPath, bucket, key string) (*storage.UploadResult, error) {
	if s.failOn != "" && filepath.Base(localPath) == s.failOn {
		return nil, errors.New("access denied")
	}
	s.keys = append(s.keys, key)
	s.buckets = append(s.buckets, bucket)
	return &storage.UploadResult{Bucket: bucket, Key: key, Size: 10}, nil
}

func seedReportsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.zip"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("z"), 0o644))
	return dir
}

func TestArchiveUploadsReportFiles(t *testing.T) {
	dir := seedReportsDir(t)
	up := &stubUploader{}
	task := NewArchiveTask(up, dir, "archive")
	task.now = fixedNow

	res, err := task.Run(context.Background(), Job{ID: "job1", SubjectID: "my-bucket"}, func(int) {})
	require.NoError(t, err)

	require.Len(t, up.keys, 2, "only csv and zip files are archived")
	assert.Contains(t, up.keys, "archive/2026/08/24/a.csv")
	assert.Contains(t, up.keys, "archive/2026/08/24/b.zip")
	assert.Equal(t, "my-bucket", up.buckets[0])

	var summary archiveSummary
	require.NoError(t, json.Unmarshal([]byte(res.ResultText), &summary))
	assert.Len(t, summary.Uploaded, 2)
	assert.Empty(t, summary.Failed)
}

func TestArchivePartialFailureStillSucceeds(t *testing.T) {
	dir := seedReportsDir(t)
	up := &stubUploader{failOn: "a.csv"}
	task := NewArchiveTask(up, dir, "archive")
	task.now = fixedNow

	res, err := task.Run(context.Background(), Job{ID: "job2"}, func(int) {})
	require.NoError(t, err, "per-file failures do not fail the job")

	var summary archiveSummary
	require.NoError(t, json.Unmarshal([]byte(res.ResultText), &summary))
	assert.Len(t, summary.Uploaded, 1)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "a.csv", summary.Failed[0].File)
	assert.Contains(t, summary.Failed[0].Error, "access denied")
}

func TestArchiveEmptyDir(t *testing.T) {
	task := NewArchiveTask(&stubUploader{}, t.TempDir(), "")
	task.now = fixedNow

	res, err := task.Run(context.Background(), Job{ID: "job3"}, func(int) {})
	require.NoError(t, err)

	var summary archiveSummary
	require.NoError(t, json.Unmarshal([]byte(res.ResultText), &summary))
	assert.Empty(t, summary.Uploaded)
}
