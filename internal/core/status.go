package core

// JobStatus is the lifecycle state of a launched job.
type JobStatus string

const (
	JobStatusPaid                  JobStatus = "paid"
	JobStatusUnderModeration       JobStatus = "under_moderation"
	JobStatusModerationPassed      JobStatus = "moderation_passed"
	JobStatusPossibleAbuseInReview JobStatus = "possible_abuse_in_review"
	JobStatusCreated               JobStatus = "created"
	JobStatusFunded                JobStatus = "funded"
	JobStatusLaunched              JobStatus = "launched"
	JobStatusPartial               JobStatus = "partial"
	JobStatusCompleted             JobStatus = "completed"
	JobStatusToCancel              JobStatus = "to_cancel"
	JobStatusCanceling             JobStatus = "canceling"
	JobStatusCanceled              JobStatus = "canceled"
	JobStatusFailed                JobStatus = "failed"
)

// IsTerminalJobStatus reports whether a job can no longer be advanced by any
// sweep procedure.
func IsTerminalJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// WebhookStatus is the delivery state of an outbound webhook event.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusCompleted WebhookStatus = "completed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// ModerationStatus is the state of one content-moderation request slice.
type ModerationStatus string

const (
	ModerationStatusPending       ModerationStatus = "pending"
	ModerationStatusProcessed     ModerationStatus = "processed"
	ModerationStatusPassed        ModerationStatus = "passed"
	ModerationStatusPossibleAbuse ModerationStatus = "possible_abuse"
	ModerationStatusPositiveAbuse ModerationStatus = "positive_abuse"
	ModerationStatusFailed        ModerationStatus = "failed"
)

// IsTerminalModerationStatus reports whether a moderation request has reached
// a verdict. Pending and processed requests are still converging.
func IsTerminalModerationStatus(s ModerationStatus) bool {
	switch s {
	case ModerationStatusPassed, ModerationStatusPossibleAbuse,
		ModerationStatusPositiveAbuse, ModerationStatusFailed:
		return true
	}
	return false
}

// EventType identifies the kind of escrow event carried by a webhook.
type EventType string

const (
	EventEscrowCreated   EventType = "escrow_created"
	EventEscrowCanceled  EventType = "escrow_canceled"
	EventEscrowCompleted EventType = "escrow_completed"
	EventEscrowFailed    EventType = "escrow_failed"
	EventAbuseDetected   EventType = "abuse_detected"
)

// DeliverableEventTypes is the set of event types the delivery sweep sends to
// oracles. Inbound-only events are excluded.
var DeliverableEventTypes = []EventType{
	EventEscrowCreated,
	EventEscrowCanceled,
	EventAbuseDetected,
}

// OracleType classifies the oracle stack a job is routed to. It decides the
// destination endpoint and whether deliveries are signed.
type OracleType string

const (
	OracleTypeFortune  OracleType = "fortune"
	OracleTypeCvat     OracleType = "cvat"
	OracleTypeAudino   OracleType = "audino"
	OracleTypeHCaptcha OracleType = "hcaptcha"
)

// JobRequestType is the annotation task family requested by the user.
type JobRequestType string

const (
	RequestTypeFortune            JobRequestType = "fortune"
	RequestTypeImageBoxes         JobRequestType = "image_boxes"
	RequestTypeImagePoints        JobRequestType = "image_points"
	RequestTypeImagePolygons      JobRequestType = "image_polygons"
	RequestTypeAudioTranscription JobRequestType = "audio_transcription"
	RequestTypeHCaptcha           JobRequestType = "hcaptcha"
)

// OracleTypeFor maps a request type to the oracle stack serving it.
func OracleTypeFor(t JobRequestType) OracleType {
	switch t {
	case RequestTypeFortune:
		return OracleTypeFortune
	case RequestTypeHCaptcha:
		return OracleTypeHCaptcha
	case RequestTypeAudioTranscription:
		return OracleTypeAudino
	default:
		return OracleTypeCvat
	}
}

// ProcedureType names one periodic sweep procedure. Exactly one lock row
// exists per type.
type ProcedureType string

const (
	ProcedureModerateJobs    ProcedureType = "moderate_jobs"
	ProcedureCreateEscrows   ProcedureType = "create_escrows"
	ProcedureFundEscrows     ProcedureType = "fund_escrows"
	ProcedureSetupEscrows    ProcedureType = "setup_escrows"
	ProcedureCancelJobs      ProcedureType = "cancel_jobs"
	ProcedureSyncStatuses    ProcedureType = "sync_statuses"
	ProcedureDeliverWebhooks ProcedureType = "deliver_webhooks"
)
