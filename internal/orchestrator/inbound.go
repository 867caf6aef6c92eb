package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/escrow"
	"github.com/crowdforge/launcher/internal/store"
	"github.com/crowdforge/launcher/internal/webhook"
)

// InboundEvent is one notification received from an oracle about an escrow
// this system launched.
type InboundEvent struct {
	ChainID       int64          `json:"chain_id"`
	EscrowAddress string         `json:"escrow_address"`
	EventType     core.EventType `json:"event_type"`
	EventData     map[string]any `json:"event_data,omitempty"`
}

// HandleInbound applies one oracle-reported event to the owning job. When a
// signature accompanies the request it must recover to the job's exchange
// oracle address. Processing is idempotent: re-delivered events find the job
// already in the reported state and change nothing.
func (o *Orchestrator) HandleInbound(ctx context.Context, event InboundEvent, rawBody []byte, signature string) error {
	if !escrow.ValidAddress(event.EscrowAddress) {
		return core.NewValidationError(fmt.Sprintf("invalid escrow address %q", event.EscrowAddress), nil)
	}

	address := escrow.NormalizeAddress(event.EscrowAddress)
	job, err := o.jobs.FindByChainAndEscrow(ctx, event.ChainID, address)
	if err != nil {
		return err
	}
	if job == nil {
		return core.NewNotFoundError("job", fmt.Sprintf("%d/%s", event.ChainID, address))
	}

	if signature != "" && !webhook.Verify(rawBody, signature, job.ExchangeOracle) {
		return core.NewValidationError("signature does not match the exchange oracle", nil)
	}

	switch event.EventType {
	case core.EventEscrowCompleted:
		if core.IsTerminalJobStatus(job.Status) {
			return nil
		}
		job.Status = core.JobStatusCompleted
		o.logger.Info("job completed by oracle report", "job_id", job.ID)
		return o.jobs.Update(ctx, job)

	case core.EventEscrowFailed:
		if core.IsTerminalJobStatus(job.Status) {
			return nil
		}
		job.Status = core.JobStatusFailed
		reason := core.FailureReason(failureReasonFrom(event.EventData))
		job.FailedReason = &reason
		o.logger.Error("job failed by oracle report", "job_id", job.ID, "reason", reason)
		return o.jobs.Update(ctx, job)

	case core.EventAbuseDetected:
		// Relay the report to the exchange oracle through the durable queue.
		outbound := &store.WebhookEvent{
			ChainID:       job.ChainID,
			EscrowAddress: address,
			EventType:     core.EventAbuseDetected,
			OracleAddress: job.ExchangeOracle,
			OracleType:    core.OracleTypeFor(job.RequestType),
			HasSignature:  core.OracleTypeFor(job.RequestType) != core.OracleTypeHCaptcha,
		}
		if len(event.EventData) > 0 {
			data, err := json.Marshal(event.EventData)
			if err != nil {
				return core.NewValidationError("invalid event data", nil)
			}
			outbound.EventData = datatypes.JSON(data)
		}
		return o.delivery.Enqueue(ctx, outbound)

	default:
		return core.NewValidationError(fmt.Sprintf("unsupported event type %q", event.EventType), nil)
	}
}

func failureReasonFrom(data map[string]any) string {
	if reason, ok := data["reason"].(string); ok && reason != "" {
		return reason
	}
	return "escrow failure reported by oracle"
}
