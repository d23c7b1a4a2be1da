package domain

import "time"

// Market is a normalized binary prediction market.
// A Market is a snapshot: it is rebuilt every cycle and never mutated after normalization.
type Market struct {
	ID             string // condition id
	Slug           string
	EventTitle     string
	Question       string
	Category       Category
	TokenIDYes     string
	TokenIDNo      string
	PriceYes       float64 // [0,1]
	VolumeTotalUSD float64
	Volume24hUSD   float64
	LiquidityUSD   float64
	EndDate        time.Time // zero when the venue gives no resolution date
	Active         bool
	NegRisk        bool
}

// PriceNo is the synthetic NO price implied by the YES price.
func (m Market) PriceNo() float64 {
	return 1 - m.PriceYes
}

// TokenFor returns the token id that represents the given side.
func (m Market) TokenFor(side Side) string {
	if side == SideNo {
		return m.TokenIDNo
	}
	return m.TokenIDYes
}

// PriceFor returns the entry price for buying the given side.
func (m Market) PriceFor(side Side) float64 {
	if side == SideNo {
		return m.PriceNo()
	}
	return m.PriceYes
}

// HoursToResolution returns the hours until EndDate measured from now.
// Returns 0 when there is no end date or it already passed.
func (m Market) HoursToResolution(now time.Time) float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := m.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// DaysToResolution is HoursToResolution expressed in days.
func (m Market) DaysToResolution(now time.Time) float64 {
	return m.HoursToResolution(now) / 24
}

// URL is the public page of the market.
func (m Market) URL() string {
	return "https://polymarket.com/event/" + m.Slug
}

// TruncateQuestion shortens a question for table output.
// Falls back to the market id when the question is empty.
func TruncateQuestion(question, id string, maxLen int) string {
	q := question
	if q == "" {
		if len(id) > 20 {
			q = id[:20] + "..."
		} else {
			q = id
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}

// MarketBatch is the output of normalizing a page of raw listings.
type MarketBatch struct {
	Markets []Market
	Skipped int // malformed or untradable records dropped by the normalizer
}
