// Package escrow defines the narrow contract the orchestrator consumes from
// the on-chain escrow service. The chain client itself is an external
// collaborator; this package carries its types, the event cursor filter, and
// address hygiene helpers.
package escrow

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the on-chain state of an escrow contract.
type Status string

const (
	StatusLaunched  Status = "launched"
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// Cancellable reports whether requesting cancellation is still meaningful for
// the given on-chain status.
func Cancellable(s Status) bool {
	switch s {
	case StatusComplete, StatusPaid, StatusCancelled:
		return false
	}
	return true
}

// Config carries the oracle routing and manifest pointers written to the
// escrow during setup.
type Config struct {
	ExchangeOracle   string
	RecordingOracle  string
	ReputationOracle string
	ManifestURL      string
	ManifestHash     string
}

// StatusEvent is one on-chain status transition observed by the event source.
type StatusEvent struct {
	ChainID       int64
	EscrowAddress string
	Status        Status
	Timestamp     time.Time
}

// EventFilter selects a page of status events. From is exclusive of events
// already processed; First/Skip paginate in fixed-size pages.
type EventFilter struct {
	ChainIDs []int64
	Statuses []Status
	From     time.Time
	First    int
	Skip     int
}

// Client is the opaque chain service the orchestrator drives.
type Client interface {
	CreateEscrow(ctx context.Context, chainID int64, token string) (string, error)
	FundEscrow(ctx context.Context, chainID int64, escrowAddress string, amount float64) error
	SetupEscrow(ctx context.Context, chainID int64, escrowAddress string, cfg Config) error
	CancelEscrow(ctx context.Context, chainID int64, escrowAddress string) error
	GetStatus(ctx context.Context, chainID int64, escrowAddress string) (Status, error)
	GetStatusEvents(ctx context.Context, filter EventFilter) ([]StatusEvent, error)
}

// ValidAddress reports whether s is a well-formed EVM address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress returns the checksummed form of an EVM address.
func NormalizeAddress(s string) string {
	return common.HexToAddress(s).Hex()
}
