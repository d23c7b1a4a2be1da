package domain

import (
	"strings"
	"time"
)

// Side is the outcome a trade is on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide accepts "yes"/"no" in any case. Anything else is YES.
func ParseSide(s string) Side {
	if strings.EqualFold(strings.TrimSpace(s), "no") {
		return SideNo
	}
	return SideYes
}

// ProbabilityEstimate is an external belief about a market resolving YES.
type ProbabilityEstimate struct {
	MarketID    string
	Probability float64 // [0,1]
	Confidence  float64 // [0,1]
	SourceCount int
	Evidence    []string
	Timestamp   time.Time
}

// Age returns how old the estimate is at now.
func (e ProbabilityEstimate) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// EdgeVerdict is the trade/no-trade decision for one market.
type EdgeVerdict struct {
	MarketID      string
	Edge          float64 // probability - priceYes
	Side          Side
	TokenID       string
	EntryPrice    float64 // priceYes for YES, 1-priceYes for NO
	Probability   float64
	Confidence    float64
	TradeApproved bool
}
