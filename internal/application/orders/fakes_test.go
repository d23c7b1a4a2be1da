package orders

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/application/risk"
	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

func testRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3}.WithSleep(noSleep)
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// --- ledger ---

type memLedgerStore struct {
	mu    sync.Mutex
	state domain.LedgerState
	found bool
}

func (m *memLedgerStore) LoadLedger(context.Context) (domain.LedgerState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.found, nil
}

func (m *memLedgerStore) UpdateLedger(_ context.Context, fn func(domain.LedgerState, bool) (domain.LedgerState, error)) (domain.LedgerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.state.Clone(), m.found)
	if err != nil {
		return domain.LedgerState{}, err
	}
	m.state, m.found = next.Clone(), true
	return next, nil
}

func newLedger(t *testing.T) *risk.Ledger {
	t.Helper()
	store := &memLedgerStore{state: domain.LedgerState{Day: "2026-10-16"}, found: true}
	l, err := risk.Open(context.Background(), store, risk.Config{
		TotalBudgetUSD:    decimal.NewFromInt(25),
		MaxPerTradeUSD:    decimal.NewFromInt(10),
		DailyLossLimitUSD: decimal.NewFromInt(10),
		MinPositionUSD:    decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	l.SetClock(func() time.Time { return testNow })
	return l
}

// --- stores ---

type memOrderStore struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	archived map[string]bool
}

func newOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]domain.Order), archived: make(map[string]bool)}
}

func (m *memOrderStore) SaveOrder(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrderStore) GetOrder(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOrderStore) list(keep func(domain.Order) bool) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memOrderStore) ListActiveOrders(context.Context) ([]domain.Order, error) {
	return m.list(func(o domain.Order) bool { return !o.Status.Terminal() }), nil
}

func (m *memOrderStore) ListTerminalOrders(_ context.Context, before time.Time) ([]domain.Order, error) {
	return m.list(func(o domain.Order) bool {
		return o.Status.Terminal() && !m.archived[o.ID] && o.UpdatedAt.Before(before)
	}), nil
}

func (m *memOrderStore) MarkArchived(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.archived[id] = true
	}
	return nil
}

type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) UpsertPosition(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.TokenID] = p
	return nil
}

func (m *memPositionStore) GetPosition(_ context.Context, tokenID string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[tokenID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositionStore) ListPositions(context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPositionStore) DeletePosition(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, tokenID)
	return nil
}

// --- venue and signer ---

type fakeVenue struct {
	mu         sync.Mutex
	postErrs   []error
	postResult domain.VenueOrder
	onPost     func(ctx context.Context, attempt int)
	payloads   []domain.SignedOrder
	orders     map[string]domain.VenueOrder
	getErr     error
	cancelled  []string
	cancelAll  bool
}

func (f *fakeVenue) PostOrder(ctx context.Context, s domain.SignedOrder, _ domain.OrderKind) (domain.VenueOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt := len(f.payloads)
	f.payloads = append(f.payloads, s)
	if f.onPost != nil {
		f.onPost(ctx, attempt)
	}
	if ctx.Err() != nil {
		return domain.VenueOrder{}, ctx.Err()
	}
	if len(f.postErrs) > 0 {
		err := f.postErrs[0]
		f.postErrs = f.postErrs[1:]
		if err != nil {
			return domain.VenueOrder{}, err
		}
	}
	r := f.postResult
	if r.VenueOrderID == "" {
		r.VenueOrderID = "0xvenue"
	}
	return r, nil
}

func (f *fakeVenue) GetOrder(_ context.Context, id string) (domain.VenueOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.VenueOrder{}, f.getErr
	}
	v, ok := f.orders[id]
	if !ok {
		return domain.VenueOrder{}, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeVenue) OpenOrders(context.Context) ([]domain.VenueOrder, error) { return nil, nil }

func (f *fakeVenue) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if v, ok := f.orders[id]; ok {
		v.Status = domain.OrderCancelled
		f.orders[id] = v
	}
	return nil
}

func (f *fakeVenue) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelAll = true
	for id, v := range f.orders {
		if !v.Status.Terminal() {
			v.Status = domain.OrderCancelled
			f.orders[id] = v
		}
	}
	return nil
}

func (f *fakeVenue) Balance(context.Context) (float64, error) { return 100, nil }

type fakeSigner struct {
	calls int
	err   error
}

func (f *fakeSigner) Sign(o domain.Order) (domain.SignedOrder, error) {
	f.calls++
	if f.err != nil {
		return domain.SignedOrder{}, f.err
	}
	return domain.SignedOrder{Salt: "42", TokenID: o.TokenID, Side: o.Action, Signature: "0xsig"}, nil
}

func (f *fakeSigner) SignatureType() domain.SignatureType { return domain.SignatureEOA }
func (f *fakeSigner) Account() string { return "0xaccount" }

type fakeArchiver struct {
	batches [][]domain.Order
	err     error
}

func (f *fakeArchiver) ArchiveOrders(_ context.Context, orders []domain.Order) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, orders)
	return nil
}
