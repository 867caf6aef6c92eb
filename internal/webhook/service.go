// Package webhook implements the durable outbound-event delivery subsystem:
// a persisted queue of escrow events delivered to oracle endpoints with
// optional signing and next-tick retry. Delivery is at-least-once; consumers
// deduplicate by (escrow_address, event_type).
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/metrics"
	"github.com/crowdforge/launcher/internal/store"
)

// Service owns WebhookEvent rows from enqueue to terminal status.
type Service struct {
	webhooks    *store.WebhookRepository
	registry    OracleRegistry
	policy      core.RetryPolicy
	signingKey  string
	client      *http.Client
	concurrency int
	logger      *slog.Logger
}

// NewService creates the delivery subsystem. signingKey is the hex-encoded
// private key used when an event requests a signature.
func NewService(webhooks *store.WebhookRepository, registry OracleRegistry, policy core.RetryPolicy, signingKey string, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		webhooks:    webhooks,
		registry:    registry,
		policy:      policy,
		signingKey:  signingKey,
		client:      http.DefaultClient,
		concurrency: concurrency,
		logger:      slog.With("component", "webhook"),
	}
}

// Enqueue registers an outbound event for delivery. Registering the same
// (chainId, escrowAddress, eventType) twice is a no-op.
func (s *Service) Enqueue(ctx context.Context, event *store.WebhookEvent) error {
	event.Status = core.WebhookStatusPending
	if event.WaitUntil.IsZero() {
		event.WaitUntil = time.Now()
	}
	return s.webhooks.CreateUnique(ctx, event)
}

// DeliverPending attempts delivery of every due pending event. Failures are
// isolated per event: one broken endpoint never delays its siblings.
func (s *Service) DeliverPending(ctx context.Context) error {
	events, err := s.webhooks.FindDeliverable(ctx, core.DeliverableEventTypes, time.Now())
	if err != nil {
		return fmt.Errorf("loading pending webhooks: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, event := range events {
		event := event
		g.Go(func() error {
			if err := s.deliver(ctx, event); err != nil {
				s.handleFailure(ctx, event, err)
				return nil
			}
			event.Status = core.WebhookStatusCompleted
			if err := s.webhooks.Update(ctx, event); err != nil {
				s.logger.Error("failed to mark webhook completed", "webhook_id", event.ID, "error", err)
				return nil
			}
			metrics.WebhookDeliveries.WithLabelValues("completed").Inc()
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) deliver(ctx context.Context, event *store.WebhookEvent) error {
	endpoint, err := s.registry.EndpointFor(ctx, event.OracleType, event.OracleAddress)
	if err != nil {
		return err
	}

	payload := Payload{
		EscrowAddress: event.EscrowAddress,
		ChainID:       event.ChainID,
		EventType:     event.EventType,
	}
	body, err := payload.Canonical()
	if err != nil {
		return core.NewInternalError(fmt.Sprintf("encoding webhook payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.NewInternalError(fmt.Sprintf("building webhook request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if event.HasSignature {
		signature, err := Sign(body, s.signingKey)
		if err != nil {
			return err
		}
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected by %s: %s", endpoint, resp.Status)
	}
	return nil
}

// handleFailure applies the retry policy. Structural errors (missing
// endpoint registration) fail the event immediately; transient errors leave
// it pending for the next tick until the budget is spent.
func (s *Service) handleFailure(ctx context.Context, event *store.WebhookEvent, cause error) {
	var structural *core.Error
	isStructural := errors.As(cause, &structural) && structural.Code == core.ErrCodeNotFound

	event.RetriesCount, event.WaitUntil = s.policy.NextAttempt(event.RetriesCount, time.Now())

	if isStructural || s.policy.Exhausted(event.RetriesCount) {
		event.Status = core.WebhookStatusFailed
		s.logger.Error("webhook delivery failed terminally",
			"webhook_id", event.ID,
			"escrow_address", event.EscrowAddress,
			"event_type", event.EventType,
			"retries", event.RetriesCount,
			"error", cause)
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	} else {
		s.logger.Warn("webhook delivery failed, will retry",
			"webhook_id", event.ID,
			"retries", event.RetriesCount,
			"error", cause)
		metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
	}

	if err := s.webhooks.Update(ctx, event); err != nil {
		s.logger.Error("failed to record webhook failure", "webhook_id", event.ID, "error", err)
	}
}
