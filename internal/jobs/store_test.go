package jobs

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

func TestEnqueueInsertsPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO jobs`)).
		WithArgs(sqlmock.AnyArg(), KindExport, sql.NullString{String: "recipe-1", Valid: true}, StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	job, err := store.Enqueue(context.Background(), KindExport, "recipe-1")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	job, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestGetScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	started := now.Add(time.Second)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "kind", "subject_id", "status", "progress",
			"result_text", "output_path", "output_name", "aux_output_path",
			"error_message", "created_at", "started_at", "completed_at",
		}).AddRow("j1", KindExport, "r1", StatusRunning, 50, "", "/tmp/x.csv", "x.csv", "", "", now, started, nil))

	job, err := store.Get(context.Background(), "j1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 50, job.Progress)
	assert.Equal(t, "/tmp/x.csv", job.OutputPath)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.False(t, job.Terminal())
}

func TestSetProgressOnlyRunning(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET progress = GREATEST(progress, $2)`)).
		WithArgs("j1", 70).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetProgress(context.Background(), "j1", 70))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetProgressClamps(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET progress = GREATEST(progress, $2)`)).
		WithArgs("j1", 100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetProgress(context.Background(), "j1", 250))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteGuardsTerminal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = 'running'`)).
		WithArgs("j1",
			sql.NullString{},
			sql.NullString{String: "/tmp/r.csv", Valid: true},
			sql.NullString{String: "r.csv", Valid: true},
			sql.NullString{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Complete(context.Background(), "j1", Result{
		OutputPath: "/tmp/r.csv",
		OutputName: "r.csv",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailSkipsTerminalRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`AND status NOT IN ('completed', 'failed')`)).
		WithArgs("j1", "upstream exploded").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Fail(context.Background(), "j1", "upstream exploded"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReturnsRunningJobs(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WithArgs("worker-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "subject_id", "created_at"}).
			AddRow("j1", KindExport, "r1", now).
			AddRow("j2", KindAnalyze, "r2", now))

	claimed, err := store.Claim(context.Background(), "worker-1", 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, StatusRunning, claimed[0].Status)
	assert.Equal(t, KindAnalyze, claimed[1].Kind)
}

func TestStartPendingOnly(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = 'pending'`)).
		WithArgs("j1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	started, err := store.Start(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, started)
}

func TestDeleteMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM jobs WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPruneTerminal(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().AddDate(0, 0, -30)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE status IN ('completed', 'failed') AND created_at < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := store.PruneTerminal(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
