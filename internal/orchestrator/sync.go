package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/escrow"
	"github.com/crowdforge/launcher/internal/metrics"
	"github.com/crowdforge/launcher/internal/store"
)

// syncedStatuses are the on-chain transitions the status sync reacts to.
var syncedStatuses = []escrow.Status{
	escrow.StatusPartial,
	escrow.StatusPaid,
	escrow.StatusComplete,
	escrow.StatusCancelled,
}

// SyncStatuses polls the chain event source for escrow status transitions and
// folds them into job statuses. The cursor persisted on the lock row makes
// each event is processed at most once per cursor position; pagination runs
// in fixed pages until a short page signals the end.
func (o *Orchestrator) SyncStatuses(ctx context.Context) error {
	return o.runLocked(ctx, core.ProcedureSyncStatuses, func(ctx context.Context, lock *store.ProcedureLock) error {
		filter := escrow.EventFilter{
			ChainIDs: o.chainIDs,
			Statuses: syncedStatuses,
			First:    o.syncPage,
		}
		if lock.LastEventAt != nil {
			filter.From = *lock.LastEventAt
		}

		var latest time.Time
		for skip := 0; ; skip += o.syncPage {
			filter.Skip = skip
			events, err := o.escrow.GetStatusEvents(ctx, filter)
			if err != nil {
				return fmt.Errorf("loading escrow status events: %w", err)
			}

			for _, event := range events {
				if event.Timestamp.After(latest) {
					latest = event.Timestamp
				}
				if err := o.applyStatusEvent(ctx, event); err != nil {
					o.logger.Error("failed to apply escrow status event",
						"chain_id", event.ChainID,
						"escrow_address", event.EscrowAddress,
						"escrow_status", event.Status,
						"error", err)
					metrics.SweepItems.WithLabelValues(string(core.ProcedureSyncStatuses), "failed").Inc()
					continue
				}
				metrics.SweepItems.WithLabelValues(string(core.ProcedureSyncStatuses), "applied").Inc()
			}

			if len(events) < o.syncPage {
				break
			}
		}

		// Advance past the boundary event so it is not re-read next tick.
		// The lock release persists the cursor.
		if !latest.IsZero() {
			next := latest.Add(time.Second)
			lock.LastEventAt = &next
		}
		return nil
	})
}

func (o *Orchestrator) applyStatusEvent(ctx context.Context, event escrow.StatusEvent) error {
	job, err := o.jobs.FindByChainAndEscrow(ctx, event.ChainID, escrow.NormalizeAddress(event.EscrowAddress))
	if err != nil {
		return err
	}
	if job == nil {
		// Escrow launched outside this system; not ours to track.
		o.logger.Debug("status event for unknown escrow", "chain_id", event.ChainID, "escrow_address", event.EscrowAddress)
		return nil
	}
	if core.IsTerminalJobStatus(job.Status) {
		return nil
	}

	switch event.Status {
	case escrow.StatusPartial:
		job.Status = core.JobStatusPartial
	case escrow.StatusPaid, escrow.StatusComplete:
		job.Status = core.JobStatusCompleted
	case escrow.StatusCancelled:
		job.Status = core.JobStatusCanceled
	default:
		return nil
	}

	if err := o.jobs.Update(ctx, job); err != nil {
		return err
	}
	o.logger.Info("job status synced from chain",
		"job_id", job.ID,
		"escrow_status", event.Status,
		"status", job.Status)

	if job.Status == core.JobStatusCanceled {
		return o.enqueueOracleEvent(ctx, job, core.EventEscrowCanceled)
	}
	return nil
}
