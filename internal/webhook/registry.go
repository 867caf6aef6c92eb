package webhook

import (
	"context"
	"fmt"

	"github.com/crowdforge/launcher/internal/core"
)

// OracleRegistry resolves the delivery endpoint registered for an oracle.
type OracleRegistry interface {
	EndpointFor(ctx context.Context, oracleType core.OracleType, oracleAddress string) (string, error)
}

// StaticRegistry maps oracle types to fixed endpoints from configuration.
type StaticRegistry struct {
	endpoints map[core.OracleType]string
}

// NewStaticRegistry creates a StaticRegistry over the given endpoint map.
func NewStaticRegistry(endpoints map[core.OracleType]string) *StaticRegistry {
	return &StaticRegistry{endpoints: endpoints}
}

// EndpointFor returns the endpoint registered for the oracle type. A missing
// registration is a structural error — the event fails without retry.
func (r *StaticRegistry) EndpointFor(_ context.Context, oracleType core.OracleType, oracleAddress string) (string, error) {
	endpoint, ok := r.endpoints[oracleType]
	if !ok || endpoint == "" {
		return "", core.NewNotFoundError("oracle endpoint", fmt.Sprintf("%s/%s", oracleType, oracleAddress))
	}
	return endpoint, nil
}
