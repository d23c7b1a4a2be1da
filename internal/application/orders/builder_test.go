package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

func newTestBuilder() *Builder {
	b := NewBuilder(BuilderConfig{}, domain.SignaturePolyProxy)
	b.now = func() time.Time { return testNow }
	return b
}

func TestBuild_Limit(t *testing.T) {
	o, err := newTestBuilder().Build(Intent{
		MarketID: "0xm",
		TokenID:  "123456",
		Side:     domain.SideNo,
		Kind:     domain.OrderLimit,
		PriceUSD: 0.567,
		SizeUSD:  10,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, domain.ActionBuy, o.Action)
	assert.Equal(t, domain.SideNo, o.Side)
	assert.Equal(t, 0.57, o.PriceUSD)
	assert.Equal(t, domain.SignaturePolyProxy, o.SignatureType)
	assert.Equal(t, testNow, o.CreatedAt)
}

func TestBuild_PriceClampedToTick(t *testing.T) {
	b := newTestBuilder()
	tests := []struct {
		in, want float64
	}{
		{0.001, 0.01},
		{0.004, 0.01},
		{0.426, 0.43},
		{0.994, 0.99},
		{0.9999, 0.99},
	}
	for _, tt := range tests {
		o, err := b.Build(Intent{TokenID: "1", PriceUSD: tt.in, SizeUSD: 5})
		require.NoError(t, err)
		assert.Equal(t, tt.want, o.PriceUSD, "price %v", tt.in)
	}
}

func TestBuild_MarketUsesWorstPrice(t *testing.T) {
	b := newTestBuilder()

	buy, err := b.Build(Intent{TokenID: "1", Kind: domain.OrderMarket, Action: domain.ActionBuy, SizeUSD: 5})
	require.NoError(t, err)
	assert.Equal(t, 0.99, buy.PriceUSD)

	sell, err := b.Build(Intent{TokenID: "1", Kind: domain.OrderMarket, Action: domain.ActionSell, SizeUSD: 5})
	require.NoError(t, err)
	assert.Equal(t, 0.01, sell.PriceUSD)
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   Intent
	}{
		{"empty token", Intent{PriceUSD: 0.5, SizeUSD: 10}},
		{"non numeric token", Intent{TokenID: "abc", PriceUSD: 0.5, SizeUSD: 10}},
		{"bad hex token", Intent{TokenID: "0xzz", PriceUSD: 0.5, SizeUSD: 10}},
		{"below minimum size", Intent{TokenID: "1", PriceUSD: 0.5, SizeUSD: 4.99}},
		{"price zero", Intent{TokenID: "1", PriceUSD: 0, SizeUSD: 10}},
		{"price one", Intent{TokenID: "1", PriceUSD: 1, SizeUSD: 10}},
		{"unknown action", Intent{TokenID: "1", Action: "HOLD", PriceUSD: 0.5, SizeUSD: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestBuilder().Build(tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestBuild_HexToken(t *testing.T) {
	_, err := newTestBuilder().Build(Intent{TokenID: "0xABCdef01", PriceUSD: 0.5, SizeUSD: 5})
	assert.NoError(t, err)
}

func TestIntentFromVerdict(t *testing.T) {
	m := domain.Market{ID: "0xm", Question: "Q?", TokenIDYes: "1", TokenIDNo: "2", PriceYes: 0.6, NegRisk: true, EndDate: testNow.Add(time.Hour)}
	v := domain.EdgeVerdict{MarketID: "0xm", Side: domain.SideNo, TokenID: "2", EntryPrice: 0.4, TradeApproved: true}

	in := IntentFromVerdict(v, m, 10, domain.OrderLimit)
	assert.Equal(t, "2", in.TokenID)
	assert.Equal(t, 0.4, in.PriceUSD)
	assert.Equal(t, domain.ActionBuy, in.Action)
	assert.True(t, in.NegRisk)
	assert.Equal(t, m.EndDate, in.ResolvesAt)
}
