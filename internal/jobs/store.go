// Package jobs provides the durable background job table and the
// worker pool that executes tasks against it.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job kinds.
const (
	KindExport          = "export"
	KindAnalyze         = "analyze"
	KindArchive         = "archive"
	KindScheduledReport = "scheduled_report"
	KindRuleCheck       = "rule_check"
)

// Job statuses. pending and running are live; completed and failed are
// terminal and never change again.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one row of background work.
type Job struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	SubjectID     string     `json:"subject_id,omitempty"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	ResultText    string     `json:"result_text,omitempty"`
	OutputPath    string     `json:"output_path,omitempty"`
	OutputName    string     `json:"output_name,omitempty"`
	AuxOutputPath string     `json:"aux_output_path,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Result carries the output fields a task publishes on success.
type Result struct {
	ResultText    string
	OutputPath    string
	OutputName    string
	AuxOutputPath string
}

// Store persists jobs in the jobs table.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts a pending job and returns it.
func (s *Store) Enqueue(ctx context.Context, kind, subjectID string) (*Job, error) {
	j := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		SubjectID: subjectID,
		Status:    StatusPending,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, kind, subject_id, status, progress, created_at)
		VALUES ($1, $2, $3, $4, 0, NOW())
		RETURNING created_at
	`, j.ID, j.Kind, nullable(j.SubjectID), j.Status).Scan(&j.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueuing %s job: %w", kind, err)
	}
	return j, nil
}

const jobColumns = `
	id, kind, COALESCE(subject_id, ''), status, progress,
	COALESCE(result_text, ''), COALESCE(output_path, ''),
	COALESCE(output_name, ''), COALESCE(aux_output_path, ''),
	COALESCE(error_message, ''), created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.Kind, &j.SubjectID, &j.Status, &j.Progress,
		&j.ResultText, &j.OutputPath,
		&j.OutputName, &j.AuxOutputPath,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Get reads a job by id. Returns nil when not found.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", id, err)
	}
	return j, nil
}

// Claim atomically moves up to limit pending jobs to running and
// returns them. Concurrent pools skip rows another pool already
// locked.
func (s *Store) Claim(ctx context.Context, workerID string, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE jobs
			SET status = 'running', worker_id = $1, started_at = NOW()
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'pending'
				ORDER BY created_at ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, kind, COALESCE(subject_id, ''), created_at
		)
		SELECT id, kind, COALESCE(subject_id, ''), created_at FROM claimed
	`, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming jobs: %w", err)
	}
	defer rows.Close()

	var claimed []Job
	for rows.Next() {
		j := Job{Status: StatusRunning}
		if err := rows.Scan(&j.ID, &j.Kind, &j.SubjectID, &j.CreatedAt); err != nil {
			return nil, err
		}
		claimed = append(claimed, j)
	}
	return claimed, rows.Err()
}

// Start moves one pending job to running. Returns false when the job
// is missing or already past pending.
func (s *Store) Start(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("starting job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetProgress records progress for a running job. Progress never moves
// backwards and terminal rows are never touched.
func (s *Store) SetProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = GREATEST(progress, $2)
		WHERE id = $1 AND status = 'running'
	`, id, progress)
	if err != nil {
		return fmt.Errorf("updating progress for job %s: %w", id, err)
	}
	return nil
}

// Complete marks a running job completed and publishes its outputs.
func (s *Store) Complete(ctx context.Context, id string, res Result) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', progress = 100,
		    result_text = $2, output_path = $3, output_name = $4,
		    aux_output_path = $5, completed_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, nullable(res.ResultText), nullable(res.OutputPath), nullable(res.OutputName), nullable(res.AuxOutputPath))
	if err != nil {
		return fmt.Errorf("completing job %s: %w", id, err)
	}
	return nil
}

// Fail marks a non-terminal job failed with an operator-readable
// message.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, id, message)
	if err != nil {
		return fmt.Errorf("failing job %s: %w", id, err)
	}
	return nil
}

// Delete removes a job row. Returns sql.ErrNoRows when absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PruneTerminal deletes completed and failed jobs created before the
// cutoff and returns how many were removed.
func (s *Store) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed') AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning jobs: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
