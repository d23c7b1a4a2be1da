package domain

import (
	"math"
	"time"
)

// Sub-score caps. They add up to 100.
const (
	MaxUncertaintyScore = 30.0
	MaxVolumeScore      = 25.0
	MaxLiquidityScore   = 15.0
	MaxActivityScore    = 10.0
	MaxTimingScore      = 20.0
)

// ScoringConfig holds the tunable curve parameters of the scoring engine.
type ScoringConfig struct {
	ReferenceVolumeUSD float64 // 24h volume at which the volume score saturates
	LiquidityCeiling   float64 // liquidity at which the liquidity score saturates
	MinLiquidityUSD    float64 // below this the liquidity score is 0
	ActivityRatio      float64 // vol24h/total ratio at which the activity score saturates
	UncertaintyBand    float64 // distance from 0.5 at which uncertainty reaches 0
	TimingFullMinDays  float64
	TimingFullMaxDays  float64
	TimingZeroMaxDays  float64
}

// DefaultScoringConfig returns the default curve parameters.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ReferenceVolumeUSD: 1_000_000,
		LiquidityCeiling:   50_000,
		MinLiquidityUSD:    1_000,
		ActivityRatio:      0.10,
		UncertaintyBand:    0.40,
		TimingFullMinDays:  1,
		TimingFullMaxDays:  30,
		TimingZeroMaxDays:  45,
	}
}

// Score computes the opportunity score of a market. Pure and deterministic for a given now.
func Score(m Market, now time.Time, cfg ScoringConfig) Opportunity {
	subs := Subscores{
		Uncertainty: UncertaintyScore(m.PriceYes, cfg.UncertaintyBand),
		Volume:      VolumeScore(m.Volume24hUSD, cfg.ReferenceVolumeUSD),
		Liquidity:   LiquidityScore(m.LiquidityUSD, cfg.MinLiquidityUSD, cfg.LiquidityCeiling),
		Activity:    ActivityScore(m.Volume24hUSD, m.VolumeTotalUSD, cfg.ActivityRatio),
		Timing:      TimingScore(m, now, cfg),
	}
	total := int(math.Round(subs.Total()))
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return Opportunity{Market: m, Score: total, Subscores: subs, ScannedAt: now}
}

// UncertaintyScore gives full credit at p=0.5 and decays linearly to 0 at 0.5±band.
func UncertaintyScore(price, band float64) float64 {
	if band <= 0 {
		band = 0.40
	}
	return clamp(MaxUncertaintyScore*(1-math.Abs(price-0.5)/band), MaxUncertaintyScore)
}

// VolumeScore is logarithmic in 24h volume and saturates at referenceVolume.
//
//	min(25, 25 * log10(v+1) / log10(ref+1))
func VolumeScore(volume24h, referenceVolume float64) float64 {
	if volume24h <= 0 || referenceVolume <= 0 {
		return 0
	}
	return clamp(MaxVolumeScore*math.Log10(volume24h+1)/math.Log10(referenceVolume+1), MaxVolumeScore)
}

// LiquidityScore is linear up to ceiling and 0 under the hard minimum.
func LiquidityScore(liquidity, minLiquidity, ceiling float64) float64 {
	if liquidity <= 0 || liquidity < minLiquidity || ceiling <= 0 {
		return 0
	}
	return clamp(MaxLiquidityScore*liquidity/ceiling, MaxLiquidityScore)
}

// ActivityScore rewards markets whose recent volume is a large share of their lifetime volume.
func ActivityScore(volume24h, volumeTotal, saturationRatio float64) float64 {
	if volume24h <= 0 || saturationRatio <= 0 {
		return 0
	}
	if volumeTotal < volume24h {
		volumeTotal = volume24h
	}
	ratio := volume24h / volumeTotal
	return clamp(MaxActivityScore*ratio/saturationRatio, MaxActivityScore)
}

// TimingScore gives full credit inside [fullMin, fullMax] days, ramps up from 0 days
// and tapers down to 0 at zeroMax days.
func TimingScore(m Market, now time.Time, cfg ScoringConfig) float64 {
	if m.EndDate.IsZero() || !m.EndDate.After(now) {
		return 0
	}
	return TimingScoreDays(m.EndDate.Sub(now).Hours()/24, cfg)
}

// TimingScoreDays is TimingScore on a precomputed day count.
func TimingScoreDays(days float64, cfg ScoringConfig) float64 {
	switch {
	case days <= 0 || days >= cfg.TimingZeroMaxDays:
		return 0
	case days < cfg.TimingFullMinDays:
		return clamp(MaxTimingScore*days/cfg.TimingFullMinDays, MaxTimingScore)
	case days <= cfg.TimingFullMaxDays:
		return MaxTimingScore
	default:
		span := cfg.TimingZeroMaxDays - cfg.TimingFullMaxDays
		return clamp(MaxTimingScore*(cfg.TimingZeroMaxDays-days)/span, MaxTimingScore)
	}
}

func clamp(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
