package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var scoringNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func scoredMarket(price, vol24h, volTotal, liquidity float64, days float64) Market {
	return Market{
		ID:             "0xmarket",
		Question:       "Will X happen?",
		TokenIDYes:     "111",
		TokenIDNo:      "222",
		PriceYes:       price,
		Volume24hUSD:   vol24h,
		VolumeTotalUSD: volTotal,
		LiquidityUSD:   liquidity,
		EndDate:        scoringNow.Add(time.Duration(days * 24 * float64(time.Hour))),
		Active:         true,
	}
}

// --- Uncertainty ---

func TestUncertaintyScore_MaxAtHalf(t *testing.T) {
	assert.InDelta(t, 30.0, UncertaintyScore(0.5, 0.4), 1e-9)
}

func TestUncertaintyScore_ZeroOutsideBand(t *testing.T) {
	for _, p := range []float64{0, 0.05, 0.10, 0.90, 0.95, 1} {
		assert.InDelta(t, 0.0, UncertaintyScore(p, 0.4), 1e-9, "price %.2f", p)
	}
}

func TestUncertaintyScore_PeakIsMaximum(t *testing.T) {
	peak := UncertaintyScore(0.5, 0.4)
	for p := 0.0; p <= 1.0; p += 0.01 {
		assert.LessOrEqual(t, UncertaintyScore(p, 0.4), peak)
	}
}

func TestUncertaintyScore_Linear(t *testing.T) {
	// 0.425 is 0.075 away from 0.5: 30 * (1 - 0.075/0.4) = 24.375
	assert.InDelta(t, 24.375, UncertaintyScore(0.425, 0.4), 1e-9)
	assert.InDelta(t, UncertaintyScore(0.3, 0.4), UncertaintyScore(0.7, 0.4), 1e-9)
}

// --- Volume ---

func TestVolumeScore_SaturatesAtReference(t *testing.T) {
	assert.InDelta(t, 25.0, VolumeScore(1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 25.0, VolumeScore(2_900_000, 1_000_000), 1e-9)
}

func TestVolumeScore_Logarithmic(t *testing.T) {
	// log10(1001)/log10(1000001) ≈ 0.5 → 12.5
	assert.InDelta(t, 12.5, VolumeScore(1000, 1_000_000), 0.01)
	assert.Equal(t, 0.0, VolumeScore(0, 1_000_000))
}

// --- Liquidity ---

func TestLiquidityScore(t *testing.T) {
	assert.InDelta(t, 15.0, LiquidityScore(500_000, 1000, 50_000), 1e-9)
	assert.InDelta(t, 7.5, LiquidityScore(25_000, 1000, 50_000), 1e-9)
	assert.Equal(t, 0.0, LiquidityScore(999, 1000, 50_000), "below hard minimum")
}

// --- Activity ---

func TestActivityScore(t *testing.T) {
	assert.InDelta(t, 10.0, ActivityScore(20_000, 100_000, 0.10), 1e-9)
	assert.InDelta(t, 5.0, ActivityScore(5_000, 100_000, 0.10), 1e-9)
	assert.Equal(t, 0.0, ActivityScore(0, 100_000, 0.10))
}

func TestActivityScore_TotalBelow24hIsTreatedAsRatioOne(t *testing.T) {
	assert.InDelta(t, 10.0, ActivityScore(5_000, 0, 0.10), 1e-9)
}

// --- Timing ---

func TestTimingScoreDays(t *testing.T) {
	cfg := DefaultScoringConfig()
	cases := []struct {
		days float64
		want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 10},
		{1, 20},
		{20, 20},
		{30, 20},
		{37.5, 10},
		{45, 0},
		{90, 0},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, TimingScoreDays(c.days, cfg), 1e-9, "days=%v", c.days)
	}
}

func TestTimingScore_NoEndDate(t *testing.T) {
	m := scoredMarket(0.5, 1000, 1000, 1000, 10)
	m.EndDate = time.Time{}
	assert.Equal(t, 0.0, TimingScore(m, scoringNow, DefaultScoringConfig()))
}

// --- Score ---

func TestScore_HighConvictionMarket(t *testing.T) {
	m := scoredMarket(0.425, 2_900_000, 0, 500_000, 20)
	opp := Score(m, scoringNow, DefaultScoringConfig())

	assert.GreaterOrEqual(t, opp.Score, 90)
	assert.InDelta(t, 24.375, opp.Subscores.Uncertainty, 1e-9)
	assert.InDelta(t, 25.0, opp.Subscores.Volume, 1e-9)
	assert.InDelta(t, 15.0, opp.Subscores.Liquidity, 1e-9)
	assert.InDelta(t, 20.0, opp.Subscores.Timing, 1e-9)
	assert.Equal(t, m, opp.Market)
	assert.Equal(t, scoringNow, opp.ScannedAt)
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	cfg := DefaultScoringConfig()
	prices := []float64{0, 0.01, 0.1, 0.25, 0.5, 0.75, 0.99, 1}
	volumes := []float64{0, 1, 1e3, 1e6, 1e9}
	days := []float64{-5, 0, 0.2, 3, 31, 44, 400}
	for _, p := range prices {
		for _, v := range volumes {
			for _, d := range days {
				opp := Score(scoredMarket(p, v, v*3, v, d), scoringNow, cfg)
				assert.GreaterOrEqual(t, opp.Score, 0)
				assert.LessOrEqual(t, opp.Score, 100)
				assert.False(t, math.IsNaN(opp.Subscores.Total()))
			}
		}
	}
}

func TestScore_MaxPossibleIsHundred(t *testing.T) {
	m := scoredMarket(0.5, 5_000_000, 5_000_000, 1_000_000, 10)
	assert.Equal(t, 100, Score(m, scoringNow, DefaultScoringConfig()).Score)
}
