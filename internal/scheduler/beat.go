package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/pkg/distlock"
	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/rules"
)

// Enqueuer submits jobs to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind, subjectID string) (*jobs.Job, error)
}

// Pruner removes finished jobs past the retention window.
type Pruner interface {
	PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error)
}

// Beat is the periodic driver. It holds a distributed lock so that
// exactly one instance fires ticks even when several processes run.
// Ticks only enqueue work; the heavy lifting happens on the pool.
type Beat struct {
	reports *Store
	pool    Enqueuer
	pruner  Pruner
	lock    distlock.DistLock

	ruleTick    time.Duration
	reportTick  time.Duration
	cleanupTick time.Duration
	lockTTL     time.Duration
	retention   time.Duration
	now         func() time.Time

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	leaderMu sync.Mutex
	leader   bool
}

// NewBeat builds the beat from configured intervals.
func NewBeat(cfg config.SchedulerConfig, reports *Store, pool Enqueuer, pruner Pruner, lock distlock.DistLock) *Beat {
	return &Beat{
		reports:     reports,
		pool:        pool,
		pruner:      pruner,
		lock:        lock,
		ruleTick:    time.Duration(cfg.AlertTickSeconds) * time.Second,
		reportTick:  time.Duration(cfg.ReportTickSeconds) * time.Second,
		cleanupTick: time.Duration(cfg.CleanupTickHours) * time.Hour,
		lockTTL:     time.Duration(cfg.LockTTLSeconds) * time.Second,
		retention:   time.Duration(cfg.JobRetentionDays) * 24 * time.Hour,
		now:         time.Now,
	}
}

// Start launches the tick loops.
func (b *Beat) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.wg.Add(3)
	go b.loop(b.ruleTick, b.ruleCheckTick)
	go b.loop(b.reportTick, b.reportTickFn)
	go b.loop(b.cleanupTick, b.cleanupTickFn)
	logger.Info("scheduler beat started",
		"rule_tick", b.ruleTick.String(),
		"report_tick", b.reportTick.String(),
		"cleanup_tick", b.cleanupTick.String())
}

// Stop halts the loops and releases leadership.
func (b *Beat) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	b.cancel()
	b.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.leaderMu.Lock()
	if b.leader {
		if err := b.lock.Release(ctx); err != nil {
			logger.Warn("lock release failed", "error", err.Error())
		}
		b.leader = false
	}
	b.leaderMu.Unlock()
	logger.Info("scheduler beat stopped")
}

func (b *Beat) loop(interval time.Duration, tick func(context.Context)) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.tick(b.ctx, tick)
		}
	}
}

// tick runs one iteration of a loop, gated on leadership.
func (b *Beat) tick(ctx context.Context, fn func(context.Context)) {
	if !b.ensureLeader(ctx) {
		return
	}
	fn(ctx)
}

// ensureLeader acquires the lock on first need and keeps the Redis TTL
// fresh afterwards. A lost lock demotes this instance until the next
// successful acquire.
func (b *Beat) ensureLeader(ctx context.Context) bool {
	b.leaderMu.Lock()
	defer b.leaderMu.Unlock()

	if b.leader {
		if rl, ok := b.lock.(*distlock.RedisLock); ok {
			if err := rl.Extend(ctx, b.lockTTL); err != nil {
				logger.Warn("lost scheduler leadership", "error", err.Error())
				b.leader = false
			}
		}
	}
	if !b.leader {
		ok, err := b.lock.Acquire(ctx)
		if err != nil {
			logger.Warn("scheduler lock acquire failed", "error", err.Error())
			return false
		}
		if ok {
			logger.Info("acquired scheduler leadership")
		}
		b.leader = ok
	}
	return b.leader
}

func (b *Beat) ruleCheckTick(ctx context.Context) {
	if _, err := b.pool.Enqueue(ctx, jobs.KindRuleCheck, ""); err != nil {
		logger.Error("rule check enqueue failed", "error", err.Error())
	}
}

func (b *Beat) reportTickFn(ctx context.Context) {
	due, err := b.reports.Due(ctx, b.now())
	if err != nil {
		logger.Error("due report query failed", "error", err.Error())
		return
	}
	for _, r := range due {
		if _, err := b.pool.Enqueue(ctx, jobs.KindScheduledReport, r.ID); err != nil {
			logger.Error("scheduled report enqueue failed", "report_id", r.ID, "error", err.Error())
			continue
		}
		logger.Info("scheduled report enqueued", "report_id", r.ID, "name", r.Name)
	}
}

func (b *Beat) cleanupTickFn(ctx context.Context) {
	cutoff := b.now().Add(-b.retention)
	n, err := b.pruner.PruneTerminal(ctx, cutoff)
	if err != nil {
		logger.Error("job cleanup failed", "error", err.Error())
		return
	}
	if n > 0 {
		logger.Info("pruned finished jobs", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}

// RuleCheckTask adapts the rule engine to a worker-pool job so alert
// evaluation and automations run off the beat process.
type RuleCheckTask struct {
	engine *rules.Engine
}

// NewRuleCheckTask wires the rule-check job handler.
func NewRuleCheckTask(engine *rules.Engine) *RuleCheckTask {
	return &RuleCheckTask{engine: engine}
}

// Run evaluates alert rules, then executes automations for real.
func (t *RuleCheckTask) Run(ctx context.Context, job jobs.Job, progress func(int)) (jobs.Result, error) {
	fired, err := t.engine.CheckAlerts(ctx)
	if err != nil {
		return jobs.Result{}, err
	}
	progress(50)

	logs, err := t.engine.RunAutomations(ctx, false)
	if err != nil {
		return jobs.Result{}, err
	}
	progress(100)

	return jobs.Result{
		ResultText: fmt.Sprintf("alerts fired: %d, automation actions: %d", fired, len(logs)),
	}, nil
}
