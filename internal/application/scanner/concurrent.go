package scanner

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// scoreMarketsConcurrent scores every market on a bounded worker pool.
// Result order is unspecified; callers rank afterwards. Markets not yet picked
// up when ctx is cancelled are dropped.
//
// workers <= 0 uses runtime.NumCPU().
func scoreMarketsConcurrent(
	ctx context.Context,
	markets []domain.Market,
	now time.Time,
	cfg domain.ScoringConfig,
	workers int,
) []domain.Opportunity {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(markets) {
		workers = len(markets)
	}

	workCh := make(chan domain.Market, len(markets))
	resultCh := make(chan domain.Opportunity, len(markets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range workCh {
				if ctx.Err() != nil {
					continue
				}
				resultCh <- domain.Score(m, now, cfg)
			}
		}()
	}

	for _, m := range markets {
		workCh <- m
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	opps := make([]domain.Opportunity, 0, len(markets))
	for opp := range resultCh {
		opps = append(opps, opp)
	}

	slog.Debug("concurrent scoring complete",
		"markets", len(markets),
		"scored", len(opps),
		"workers", workers,
	)
	return opps
}
