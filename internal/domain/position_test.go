package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPnLPct(t *testing.T) {
	assert.InDelta(t, 0.175, PnLPct(0.40, 0.47), 1e-9)
	assert.InDelta(t, -0.24, PnLPct(0.50, 0.38), 1e-9)
	assert.Equal(t, 0.0, PnLPct(0, 0.5))
}

func TestHeldTokenPrice(t *testing.T) {
	assert.InDelta(t, 0.3, HeldTokenPrice(SideNo, 0.7), 1e-9)
	assert.InDelta(t, 0.7, HeldTokenPrice(SideYes, 0.7), 1e-9)
}

func TestPosition_ApplyFillAverages(t *testing.T) {
	var p Position
	p.ApplyFill(0.40, 10) // 25 shares
	p.ApplyFill(0.50, 10) // 20 shares
	assert.InDelta(t, 20.0, p.SizeUSD, 1e-9)
	assert.InDelta(t, 45.0, p.Shares, 1e-9)
	assert.InDelta(t, 20.0/45.0, p.EntryPriceUSD, 1e-9)
}

func TestPosition_Reprice(t *testing.T) {
	p := Position{EntryPriceUSD: 0.40, Shares: 25, SizeUSD: 10}
	now := time.Now()
	p.Reprice(0.47, now)
	assert.InDelta(t, 0.175, p.UnrealizedPnLPct, 1e-9)
	assert.InDelta(t, 11.75, p.ValueUSD(), 1e-9)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, OrderFilled.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.True(t, OrderRejected.Terminal())
	assert.False(t, OrderOpen.Terminal())
	assert.False(t, OrderPartiallyFilled.Terminal())
	assert.False(t, OrderPending.Terminal())
}

func TestSignatureType_String(t *testing.T) {
	assert.Equal(t, "EOA", SignatureEOA.String())
	assert.Equal(t, "POLY_PROXY", SignaturePolyProxy.String())
	assert.Equal(t, "GNOSIS_SAFE", SignatureGnosisSafe.String())
	assert.False(t, SignatureType(7).Valid())
}
