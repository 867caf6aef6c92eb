package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/crowdforge/launcher/internal/core"
)

// Job is a persisted job record advanced by the sweep procedures.
type Job struct {
	ID               uint                `gorm:"primaryKey;autoIncrement"`
	Status           core.JobStatus      `gorm:"size:40;not null;index:idx_jobs_status_wait,priority:1"`
	RetriesCount     int                 `gorm:"not null;default:0"`
	WaitUntil        time.Time           `gorm:"not null;index:idx_jobs_status_wait,priority:2"`
	ChainID          int64               `gorm:"not null;index:idx_jobs_chain_escrow,priority:1"`
	EscrowAddress    *string             `gorm:"size:64;index:idx_jobs_chain_escrow,priority:2"`
	FundAmount       float64             `gorm:"not null"`
	Token            string              `gorm:"size:20;not null"`
	ManifestURL      string              `gorm:"size:512;not null"`
	ManifestHash     string              `gorm:"size:128;not null"`
	RequestType      core.JobRequestType `gorm:"size:40;not null"`
	ExchangeOracle   string              `gorm:"size:64"`
	RecordingOracle  string              `gorm:"size:64"`
	ReputationOracle string              `gorm:"size:64"`
	FailedReason     *string             `gorm:"type:text"`
	CreatedAt        time.Time           `gorm:"autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime"`
}

func (Job) TableName() string { return "jobs" }

// WebhookEvent is one outbound notification owed to an oracle. Rows are
// created by the orchestrator or the inbound handler and mutated only by the
// delivery subsystem.
type WebhookEvent struct {
	ID            uint               `gorm:"primaryKey;autoIncrement"`
	ChainID       int64              `gorm:"not null;uniqueIndex:idx_webhooks_chain_escrow_event,priority:1"`
	EscrowAddress string             `gorm:"size:64;not null;uniqueIndex:idx_webhooks_chain_escrow_event,priority:2"`
	EventType     core.EventType     `gorm:"size:40;not null;uniqueIndex:idx_webhooks_chain_escrow_event,priority:3"`
	OracleAddress string             `gorm:"size:64;not null"`
	OracleType    core.OracleType    `gorm:"size:20;not null"`
	HasSignature  bool               `gorm:"not null;default:false"`
	Status        core.WebhookStatus `gorm:"size:20;not null;index"`
	RetriesCount  int                `gorm:"not null;default:0"`
	WaitUntil     time.Time          `gorm:"not null"`
	EventData     datatypes.JSON
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// ModerationRequest covers one contiguous slice [From,To] of a dataset's
// file listing. For a given job the ranges partition [1,fileCount] exactly.
type ModerationRequest struct {
	ID          uint                  `gorm:"primaryKey;autoIncrement"`
	JobID       uint                  `gorm:"not null;uniqueIndex:idx_moderation_job_range,priority:1;index"`
	DataURL     string                `gorm:"size:512;not null"`
	From        int                   `gorm:"column:range_from;not null;uniqueIndex:idx_moderation_job_range,priority:2"`
	To          int                   `gorm:"column:range_to;not null;uniqueIndex:idx_moderation_job_range,priority:3"`
	Status      core.ModerationStatus `gorm:"size:20;not null;index"`
	AbuseReason *string               `gorm:"type:text"`
	CreatedAt   time.Time             `gorm:"autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"autoUpdateTime"`
}

func (ModerationRequest) TableName() string { return "moderation_requests" }

// ProcedureLock is the advisory lock row for one procedure type. A procedure
// is running iff its row exists with a NULL completed_at. Rows are created on
// first run and never deleted.
type ProcedureLock struct {
	ID          uint               `gorm:"primaryKey;autoIncrement"`
	Type        core.ProcedureType `gorm:"size:40;not null;uniqueIndex"`
	StartedAt   time.Time          `gorm:"not null"`
	CompletedAt *time.Time
	// LastEventAt is the monotone cursor used by the status-sync procedure
	// to avoid re-scanning already-processed chain events.
	LastEventAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (ProcedureLock) TableName() string { return "procedure_locks" }
