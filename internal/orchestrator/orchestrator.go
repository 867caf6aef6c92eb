// Package orchestrator drives the job lifecycle: each periodic sweep acquires
// its procedure lock, loads the jobs whose status it owns, fans the work out
// with per-job error isolation, and applies the shared retry policy on
// failure. Status partitions are disjoint across procedures, so no row-level
// locking is needed.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/escrow"
	"github.com/crowdforge/launcher/internal/metrics"
	"github.com/crowdforge/launcher/internal/moderation"
	"github.com/crowdforge/launcher/internal/scheduler"
	"github.com/crowdforge/launcher/internal/store"
	"github.com/crowdforge/launcher/internal/webhook"
)

// Orchestrator owns the lifecycle sweeps.
type Orchestrator struct {
	jobs        *store.JobRepository
	locks       *scheduler.LockManager
	escrow      escrow.Client
	moderation  *moderation.Service
	delivery    *webhook.Service
	policy      core.RetryPolicy
	chainIDs    []int64
	syncPage    int
	concurrency int
	logger      *slog.Logger
}

// Config holds the orchestrator tunables.
type Config struct {
	// MaxRetries is the uniform per-entity retry budget.
	MaxRetries int
	// ChainIDs are the networks whose escrow events the status sync scans.
	ChainIDs []int64
	// SyncPageSize is the fixed page size for event-source pagination.
	SyncPageSize int
	// Concurrency bounds the per-sweep job fan-out.
	Concurrency int
}

// New creates the orchestrator.
func New(jobs *store.JobRepository, locks *scheduler.LockManager, escrowClient escrow.Client, moderationSvc *moderation.Service, delivery *webhook.Service, cfg Config) *Orchestrator {
	if cfg.SyncPageSize <= 0 {
		cfg.SyncPageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Orchestrator{
		jobs:        jobs,
		locks:       locks,
		escrow:      escrowClient,
		moderation:  moderationSvc,
		delivery:    delivery,
		policy:      core.RetryPolicy{MaxRetries: cfg.MaxRetries},
		chainIDs:    cfg.ChainIDs,
		syncPage:    cfg.SyncPageSize,
		concurrency: cfg.Concurrency,
		logger:      slog.With("component", "orchestrator"),
	}
}

// runLocked wraps one sweep body in the procedure lock. A held lock turns the
// invocation into a silent no-op; the lock is released even when the body
// fails partway.
func (o *Orchestrator) runLocked(ctx context.Context, procedureType core.ProcedureType, body func(ctx context.Context, lock *store.ProcedureLock) error) error {
	start := time.Now()

	lock, err := o.locks.TryStart(ctx, procedureType)
	if errors.Is(err, scheduler.ErrLockHeld) {
		o.logger.Debug("sweep skipped, previous run still in flight", "procedure", procedureType)
		metrics.SweepRuns.WithLabelValues(string(procedureType), "skipped").Inc()
		return nil
	}
	if err != nil {
		metrics.SweepRuns.WithLabelValues(string(procedureType), "error").Inc()
		return err
	}

	bodyErr := body(ctx, lock)

	if err := o.locks.Complete(ctx, lock); err != nil {
		o.logger.Error("failed to release procedure lock", "procedure", procedureType, "error", err)
	}

	metrics.SweepDuration.WithLabelValues(string(procedureType)).Observe(time.Since(start).Seconds())
	if bodyErr != nil {
		metrics.SweepRuns.WithLabelValues(string(procedureType), "error").Inc()
		return bodyErr
	}
	metrics.SweepRuns.WithLabelValues(string(procedureType), "completed").Inc()
	return nil
}

// handleJobFailure applies the retry policy to one failed job transition. The
// retry count is cumulative across the job's lifetime; once the budget is
// spent the job fails terminally with the reason recorded.
func (o *Orchestrator) handleJobFailure(ctx context.Context, procedureType core.ProcedureType, job *store.Job, cause error) {
	job.RetriesCount, job.WaitUntil = o.policy.NextAttempt(job.RetriesCount, time.Now())

	if o.policy.Exhausted(job.RetriesCount) {
		job.Status = core.JobStatusFailed
		reason := core.FailureReason(cause.Error())
		job.FailedReason = &reason
		o.logger.Error("job failed terminally",
			"procedure", procedureType,
			"job_id", job.ID,
			"retries", job.RetriesCount,
			"error", cause)
		metrics.SweepItems.WithLabelValues(string(procedureType), "failed").Inc()
	} else {
		o.logger.Warn("job transition failed, will retry next tick",
			"procedure", procedureType,
			"job_id", job.ID,
			"retries", job.RetriesCount,
			"error", cause)
		metrics.SweepItems.WithLabelValues(string(procedureType), "retried").Inc()
	}

	if err := o.jobs.Update(ctx, job); err != nil {
		o.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
}

// RegisterSweeps wires every sweep procedure into the scheduler at the given
// intervals.
func (o *Orchestrator) RegisterSweeps(s *scheduler.Scheduler, intervals Intervals) error {
	entries := []struct {
		name  core.ProcedureType
		every time.Duration
		run   func(context.Context) error
	}{
		{core.ProcedureModerateJobs, intervals.ModerateJobs, o.ModerateJobs},
		{core.ProcedureCreateEscrows, intervals.CreateEscrows, o.CreateEscrows},
		{core.ProcedureFundEscrows, intervals.FundEscrows, o.FundEscrows},
		{core.ProcedureSetupEscrows, intervals.SetupEscrows, o.SetupEscrows},
		{core.ProcedureCancelJobs, intervals.CancelJobs, o.CancelJobs},
		{core.ProcedureSyncStatuses, intervals.SyncStatuses, o.SyncStatuses},
		{core.ProcedureDeliverWebhooks, intervals.DeliverWebhooks, o.DeliverWebhooks},
	}
	for _, e := range entries {
		if err := s.Register(string(e.name), e.every, e.run); err != nil {
			return err
		}
	}
	return nil
}

// Intervals holds the per-procedure tick periods.
type Intervals struct {
	ModerateJobs    time.Duration
	CreateEscrows   time.Duration
	FundEscrows     time.Duration
	SetupEscrows    time.Duration
	CancelJobs      time.Duration
	SyncStatuses    time.Duration
	DeliverWebhooks time.Duration
}
