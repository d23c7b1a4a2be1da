package monitor

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  []string
}

func (f *fakePrices) Midpoint(_ context.Context, tokenID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tokenID)
	p, ok := f.prices[tokenID]
	if !ok {
		return 0, domain.ErrProviderUnavailable
	}
	return p, nil
}

type memPositions struct {
	mu    sync.Mutex
	list  []domain.Position
	saved map[string]domain.Position
}

func (m *memPositions) UpsertPosition(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]domain.Position)
	}
	m.saved[p.TokenID] = p
	return nil
}

func (m *memPositions) GetPosition(_ context.Context, tokenID string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.saved[tokenID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) ListPositions(context.Context) ([]domain.Position, error) {
	return append([]domain.Position(nil), m.list...), nil
}

func (m *memPositions) DeletePosition(context.Context, string) error { return nil }

type captureSink struct{ got []domain.Signal }

func (c *captureSink) NotifySignals(_ context.Context, s []domain.Signal) error {
	c.got = append(c.got, s...)
	return nil
}

func position(token string, side domain.Side, entry float64, resolvesIn time.Duration) domain.Position {
	return domain.Position{
		TokenID:       token,
		MarketID:      "m-" + token,
		Question:      "Question " + token,
		Side:          side,
		EntryPriceUSD: entry,
		SizeUSD:       10,
		Shares:        10 / entry,
		ResolvesAt:    now.Add(resolvesIn),
	}
}

func kinds(signals []domain.Signal, token string) []domain.SignalKind {
	var out []domain.SignalKind
	for _, s := range signals {
		if s.Position.TokenID == token {
			out = append(out, s.Kind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestEvaluate_Signals(t *testing.T) {
	store := &memPositions{list: []domain.Position{
		position("tp", domain.SideYes, 0.40, 10*24*time.Hour),
		position("sl", domain.SideYes, 0.50, 10*24*time.Hour),
		position("flat", domain.SideYes, 0.50, 10*24*time.Hour),
		position("soon", domain.SideYes, 0.50, 3*time.Hour),
	}}
	prices := &fakePrices{prices: map[string]float64{"tp": 0.47, "sl": 0.38, "flat": 0.52, "soon": 0.50}}
	sink := &captureSink{}

	res, err := New(DefaultConfig(), prices, store, sink).Evaluate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Positions, 4)

	assert.Equal(t, []domain.SignalKind{domain.SignalTakeProfit}, kinds(res.Signals, "tp"))
	assert.Equal(t, []domain.SignalKind{domain.SignalStopLossCandidate}, kinds(res.Signals, "sl"))
	assert.Empty(t, kinds(res.Signals, "flat"))
	assert.Equal(t, []domain.SignalKind{domain.SignalResolvingSoon}, kinds(res.Signals, "soon"))
	assert.Len(t, sink.got, 3)

	tp := store.saved["tp"]
	assert.InDelta(t, 0.175, tp.UnrealizedPnLPct, 1e-9)
	assert.Equal(t, 0.47, tp.CurrentPriceUSD)
	assert.Equal(t, now, tp.UpdatedAt)
	assert.InDelta(t, -0.24, store.saved["sl"].UnrealizedPnLPct, 1e-9)
}

func TestEvaluate_FailureIsolated(t *testing.T) {
	store := &memPositions{list: []domain.Position{
		position("ok", domain.SideYes, 0.40, 10*24*time.Hour),
		position("broken", domain.SideYes, 0.40, 10*24*time.Hour),
	}}
	prices := &fakePrices{prices: map[string]float64{"ok": 0.41}}

	res, err := New(DefaultConfig(), prices, store, nil).Evaluate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, "ok", res.Positions[0].TokenID)
	_, saved := store.saved["broken"]
	assert.False(t, saved)
}

func TestEvaluateWithQuotes_ConvertsNoSide(t *testing.T) {
	no := position("no-token", domain.SideNo, 0.40, 10*24*time.Hour)
	store := &memPositions{list: []domain.Position{no}}
	prices := &fakePrices{}

	res, err := New(DefaultConfig(), prices, store, nil).
		EvaluateWithQuotes(context.Background(), now, map[string]float64{no.MarketID: 0.53})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.InDelta(t, 0.47, res.Positions[0].CurrentPriceUSD, 1e-9)
	assert.Empty(t, prices.calls, "quoted markets are not polled")
	assert.Equal(t, []domain.SignalKind{domain.SignalTakeProfit}, kinds(res.Signals, "no-token"))
}

func TestEvaluate_RejectsOutOfRangeMidpoint(t *testing.T) {
	store := &memPositions{list: []domain.Position{position("x", domain.SideYes, 0.40, 10*24*time.Hour)}}
	prices := &fakePrices{prices: map[string]float64{"x": 1.7}}

	res, err := New(DefaultConfig(), prices, store, nil).Evaluate(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}
