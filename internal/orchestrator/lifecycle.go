package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/escrow"
	"github.com/crowdforge/launcher/internal/metrics"
	"github.com/crowdforge/launcher/internal/store"
)

// forEachEligible loads the jobs owned by the procedure and fans the
// transition out, isolating failures per job.
func (o *Orchestrator) forEachEligible(ctx context.Context, procedureType core.ProcedureType, statuses []core.JobStatus, transition func(ctx context.Context, job *store.Job) error) error {
	jobs, err := o.jobs.FindEligible(ctx, statuses, o.policy.MaxRetries, time.Now())
	if err != nil {
		return fmt.Errorf("loading jobs for %s: %w", procedureType, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := transition(ctx, job); err != nil {
				o.handleJobFailure(ctx, procedureType, job, err)
				return nil
			}
			metrics.SweepItems.WithLabelValues(string(procedureType), "advanced").Inc()
			return nil
		})
	}
	return g.Wait()
}

// ModerateJobs runs the content-moderation pipeline over every job awaiting a
// moderation verdict.
func (o *Orchestrator) ModerateJobs(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureModerateJobs, func(ctx context.Context, _ *store.ProcedureLock) error {
		return o.forEachEligible(ctx, core.ProcedureModerateJobs,
			[]core.JobStatus{core.JobStatusPaid, core.JobStatusUnderModeration},
			o.moderation.ModerateJob)
	})
}

// CreateEscrows deploys an escrow contract for every moderation-passed job.
func (o *Orchestrator) CreateEscrows(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureCreateEscrows, func(ctx context.Context, _ *store.ProcedureLock) error {
		return o.forEachEligible(ctx, core.ProcedureCreateEscrows,
			[]core.JobStatus{core.JobStatusModerationPassed},
			func(ctx context.Context, job *store.Job) error {
				address, err := o.escrow.CreateEscrow(ctx, job.ChainID, job.Token)
				if err != nil {
					return fmt.Errorf("creating escrow: %w", err)
				}
				normalized := escrow.NormalizeAddress(address)
				job.EscrowAddress = &normalized
				job.Status = core.JobStatusCreated
				o.logger.Info("escrow created", "job_id", job.ID, "chain_id", job.ChainID, "escrow_address", normalized)
				return o.jobs.Update(ctx, job)
			})
	})
}

// FundEscrows transfers the job's fund amount into its escrow.
func (o *Orchestrator) FundEscrows(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureFundEscrows, func(ctx context.Context, _ *store.ProcedureLock) error {
		return o.forEachEligible(ctx, core.ProcedureFundEscrows,
			[]core.JobStatus{core.JobStatusCreated},
			func(ctx context.Context, job *store.Job) error {
				if job.EscrowAddress == nil {
					return core.NewValidationError("job has no escrow address", nil)
				}
				if err := o.escrow.FundEscrow(ctx, job.ChainID, *job.EscrowAddress, job.FundAmount); err != nil {
					return fmt.Errorf("funding escrow: %w", err)
				}
				job.Status = core.JobStatusFunded
				o.logger.Info("escrow funded", "job_id", job.ID, "escrow_address", *job.EscrowAddress, "amount", job.FundAmount)
				return o.jobs.Update(ctx, job)
			})
	})
}

// SetupEscrows writes the oracle routing and manifest pointers to each funded
// escrow, launches the job, and registers the launch notification for the
// exchange oracle.
func (o *Orchestrator) SetupEscrows(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureSetupEscrows, func(ctx context.Context, _ *store.ProcedureLock) error {
		return o.forEachEligible(ctx, core.ProcedureSetupEscrows,
			[]core.JobStatus{core.JobStatusFunded},
			func(ctx context.Context, job *store.Job) error {
				if job.EscrowAddress == nil {
					return core.NewValidationError("job has no escrow address", nil)
				}
				cfg := escrow.Config{
					ExchangeOracle:   job.ExchangeOracle,
					RecordingOracle:  job.RecordingOracle,
					ReputationOracle: job.ReputationOracle,
					ManifestURL:      job.ManifestURL,
					ManifestHash:     job.ManifestHash,
				}
				if err := o.escrow.SetupEscrow(ctx, job.ChainID, *job.EscrowAddress, cfg); err != nil {
					return fmt.Errorf("setting up escrow: %w", err)
				}

				job.Status = core.JobStatusLaunched
				if err := o.jobs.Update(ctx, job); err != nil {
					return err
				}
				o.logger.Info("job launched", "job_id", job.ID, "escrow_address", *job.EscrowAddress)

				return o.enqueueOracleEvent(ctx, job, core.EventEscrowCreated)
			})
	})
}

// CancelJobs requests on-chain cancellation for every job marked to cancel.
// Jobs without an escrow cancel immediately; escrows past the point of
// cancellation fail the job instead.
func (o *Orchestrator) CancelJobs(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureCancelJobs, func(ctx context.Context, _ *store.ProcedureLock) error {
		return o.forEachEligible(ctx, core.ProcedureCancelJobs,
			[]core.JobStatus{core.JobStatusToCancel},
			func(ctx context.Context, job *store.Job) error {
				if job.EscrowAddress == nil {
					job.Status = core.JobStatusCanceled
					o.logger.Info("job canceled before escrow creation", "job_id", job.ID)
					return o.jobs.Update(ctx, job)
				}

				status, err := o.escrow.GetStatus(ctx, job.ChainID, *job.EscrowAddress)
				if err != nil {
					return fmt.Errorf("reading escrow status: %w", err)
				}
				if status == escrow.StatusCancelled {
					job.Status = core.JobStatusCanceled
					if err := o.jobs.Update(ctx, job); err != nil {
						return err
					}
					return o.enqueueOracleEvent(ctx, job, core.EventEscrowCanceled)
				}
				if !escrow.Cancellable(status) {
					return core.NewConflictError("escrow is past cancellation", map[string]any{
						"escrow_address": *job.EscrowAddress,
						"escrow_status":  status,
					})
				}

				if err := o.escrow.CancelEscrow(ctx, job.ChainID, *job.EscrowAddress); err != nil {
					return fmt.Errorf("canceling escrow: %w", err)
				}
				job.Status = core.JobStatusCanceling
				o.logger.Info("escrow cancellation requested", "job_id", job.ID, "escrow_address", *job.EscrowAddress)
				return o.jobs.Update(ctx, job)
			})
	})
}

// DeliverWebhooks drains the pending webhook queue under the delivery lock.
func (o *Orchestrator) DeliverWebhooks(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureDeliverWebhooks, func(ctx context.Context, _ *store.ProcedureLock) error {
		return o.delivery.DeliverPending(ctx)
	})
}

// enqueueOracleEvent registers an outbound event addressed to the job's
// exchange oracle. Deliveries are signed except for oracle stacks that reject
// signed payloads.
func (o *Orchestrator) enqueueOracleEvent(ctx context.Context, job *store.Job, eventType core.EventType) error {
	if job.EscrowAddress == nil {
		return nil
	}
	oracleType := core.OracleTypeFor(job.RequestType)
	return o.delivery.Enqueue(ctx, &store.WebhookEvent{
		ChainID:       job.ChainID,
		EscrowAddress: *job.EscrowAddress,
		EventType:     eventType,
		OracleAddress: job.ExchangeOracle,
		OracleType:    oracleType,
		HasSignature:  oracleType != core.OracleTypeHCaptcha,
	})
}
