package ports

import (
	"context"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// Notifier presents a ranked scan to the operator.
type Notifier interface {
	Notify(ctx context.Context, opportunities []domain.Opportunity) error
}

// SignalSink receives monitor signals. The console prints them; the pipeline collects them.
type SignalSink interface {
	NotifySignals(ctx context.Context, signals []domain.Signal) error
}
