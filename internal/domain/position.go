package domain

import (
	"fmt"
	"time"
)

// Position is an open holding of one outcome token.
type Position struct {
	TokenID          string
	MarketID         string
	Question         string
	Side             Side
	EntryPriceUSD    float64 // average entry price of the held token
	SizeUSD          float64 // cost basis
	Shares           float64
	CurrentPriceUSD  float64 // price of the held token
	UnrealizedPnLPct float64
	OpenedAt         time.Time
	UpdatedAt        time.Time
	ResolvesAt       time.Time
}

// ApplyFill averages a new fill into the position.
func (p *Position) ApplyFill(priceUSD, fillUSD float64) {
	if priceUSD <= 0 || fillUSD <= 0 {
		return
	}
	p.SizeUSD += fillUSD
	p.Shares += fillUSD / priceUSD
	if p.Shares > 0 {
		p.EntryPriceUSD = p.SizeUSD / p.Shares
	}
}

// Reprice updates the current price of the held token and recomputes P&L.
func (p *Position) Reprice(tokenPrice float64, now time.Time) {
	p.CurrentPriceUSD = tokenPrice
	p.UnrealizedPnLPct = PnLPct(p.EntryPriceUSD, tokenPrice)
	p.UpdatedAt = now
}

// ValueUSD is the mark-to-market value of the position.
func (p Position) ValueUSD() float64 {
	return p.Shares * p.CurrentPriceUSD
}

// PnLPct is (current-entry)/entry. Returns 0 for a non-positive entry.
func PnLPct(entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (current - entry) / entry
}

// HeldTokenPrice converts a YES-referenced price into the price of the held side.
func HeldTokenPrice(side Side, yesPrice float64) float64 {
	if side == SideNo {
		return 1 - yesPrice
	}
	return yesPrice
}

// SignalKind classifies what the monitor noticed about a position.
type SignalKind string

const (
	SignalTakeProfit        SignalKind = "TAKE_PROFIT"
	SignalStopLossCandidate SignalKind = "STOP_LOSS_CANDIDATE"
	SignalResolvingSoon     SignalKind = "RESOLVING_SOON"
)

// Signal is raised by the monitor for the decision layer or operator. It never executes.
type Signal struct {
	Kind     SignalKind
	Position Position
	Reason   string
	RaisedAt time.Time
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s %s: %s", s.Kind, s.Position.Side, TruncateQuestion(s.Position.Question, s.Position.TokenID, 40), s.Reason)
}
