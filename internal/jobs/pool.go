package jobs

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/pkg/logger"
)

// rateLimitMessage is what operators see when a job dies on upstream
// rate limiting.
const rateLimitMessage = "The ad platform API rate limit was reached. Wait 30-60 minutes and run the job again."

// TaskFunc executes one job. progress reports percentage points; the
// pool persists them monotonically. Returning an error fails the job.
type TaskFunc func(ctx context.Context, job Job, progress func(int)) (Result, error)

// Pool polls the job table and executes claimed jobs with bounded
// concurrency. Task handlers register by kind before Start.
type Pool struct {
	store        *Store
	tasks        map[string]TaskFunc
	numWorkers   int
	pollInterval time.Duration
	workerID     string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPool creates a pool with the given concurrency bound.
func NewPool(store *Store, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	host, _ := os.Hostname()
	return &Pool{
		store:        store,
		tasks:        make(map[string]TaskFunc),
		numWorkers:   concurrency,
		pollInterval: 2 * time.Second,
		workerID:     fmt.Sprintf("%s-%s", host, uuid.New().String()[:8]),
	}
}

// Register binds a task handler to a job kind.
func (p *Pool) Register(kind string, fn TaskFunc) {
	p.tasks[kind] = fn
}

// validKinds guards Enqueue so a typo in an API payload fails loudly.
// Handlers for a kind may live in a different process than the one
// enqueueing it.
var validKinds = map[string]bool{
	KindExport:          true,
	KindAnalyze:         true,
	KindArchive:         true,
	KindScheduledReport: true,
	KindRuleCheck:       true,
}

// Enqueue creates a pending job; a polling worker picks it up.
func (p *Pool) Enqueue(ctx context.Context, kind, subjectID string) (*Job, error) {
	if !validKinds[kind] {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	return p.store.Enqueue(ctx, kind, subjectID)
}

// Store exposes the underlying job store for read paths.
func (p *Pool) Store() *Store { return p.store }

// Start launches the polling workers.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	logger.Info("job pool starting", "workers", p.numWorkers, "worker_id", p.workerID)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish.
// Cancellation is cooperative; tasks observe it between upstream
// calls.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("job pool stopped", "worker_id", p.workerID)
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		claimed, err := p.store.Claim(p.ctx, p.workerID, 1)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			logger.Error("claiming jobs failed", "worker", n, "error", err.Error())
		}
		if len(claimed) == 0 {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}
		for i := range claimed {
			p.run(p.ctx, claimed[i])
		}
	}
}

// Execute runs a job by id in the calling goroutine. A job already in
// a terminal state returns immediately; running it twice is safe.
func (p *Pool) Execute(ctx context.Context, jobID string) error {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Terminal() {
		return nil
	}
	if job.Status == StatusPending {
		started, err := p.store.Start(ctx, jobID)
		if err != nil {
			return err
		}
		if !started {
			// Lost the race to a polling worker.
			return nil
		}
	}
	p.run(ctx, *job)
	return nil
}

func (p *Pool) run(ctx context.Context, job Job) {
	fn, ok := p.tasks[job.Kind]
	if !ok {
		_ = p.store.Fail(ctx, job.ID, fmt.Sprintf("no handler for job kind %q", job.Kind))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "job_id", job.ID, "kind", job.Kind, "panic", fmt.Sprint(r))
			debug.PrintStack()
			_ = p.store.Fail(context.WithoutCancel(ctx), job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	progress := func(pct int) {
		if err := p.store.SetProgress(ctx, job.ID, pct); err != nil {
			logger.Warn("progress update failed", "job_id", job.ID, "error", err.Error())
		}
	}
	progress(0)

	logger.Info("job started", "job_id", job.ID, "kind", job.Kind, "subject_id", job.SubjectID)
	res, err := fn(ctx, job, progress)
	if err != nil {
		msg := err.Error()
		if meta.IsRateLimited(err) {
			msg = rateLimitMessage
		}
		logger.Warn("job failed", "job_id", job.ID, "kind", job.Kind, "error", err.Error())
		_ = p.store.Fail(context.WithoutCancel(ctx), job.ID, msg)
		return
	}

	if err := p.store.Complete(ctx, job.ID, res); err != nil {
		logger.Error("completing job failed", "job_id", job.ID, "error", err.Error())
		return
	}
	logger.Info("job completed", "job_id", job.ID, "kind", job.Kind)
}

// DeleteJob removes a job row and best-effort unlinks its files.
func (p *Pool) DeleteJob(ctx context.Context, jobID string) error {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	for _, path := range []string{job.OutputPath, job.AuxOutputPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("removing job file failed", "job_id", jobID, "path", path, "error", err.Error())
		}
	}
	return p.store.Delete(ctx, jobID)
}
