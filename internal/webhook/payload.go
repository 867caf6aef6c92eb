package webhook

import (
	"encoding/json"

	"github.com/crowdforge/launcher/internal/core"
)

// HeaderSignature carries the sender's signature over the canonical payload.
const HeaderSignature = "human-signature"

// Payload is the wire body delivered to oracles. Field order is fixed so the
// canonical encoding is stable for signing and verification.
type Payload struct {
	EscrowAddress string         `json:"escrow_address"`
	ChainID       int64          `json:"chain_id"`
	EventType     core.EventType `json:"event_type"`
}

// Canonical returns the canonical JSON encoding of the payload.
func (p Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}
