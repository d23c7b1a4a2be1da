package ports

import (
	"context"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// ProbabilityProvider is the research oracle. Implementations carry no latency bound,
// so callers apply a timeout. A returned estimate may still be stale or low confidence;
// the edge engine enforces those rules.
type ProbabilityProvider interface {
	Estimate(ctx context.Context, marketID, topic string) (domain.ProbabilityEstimate, error)
}
