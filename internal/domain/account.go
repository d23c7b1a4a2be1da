package domain

import "time"

// AccountPosition is a holding as reported by the venue's data API.
type AccountPosition struct {
	TokenID      string
	MarketID     string
	Title        string
	Outcome      string
	Size         float64 // shares
	AvgPrice     float64
	CurrentPrice float64
	EndDate      time.Time
}

// ValueUSD is size times current price.
func (p AccountPosition) ValueUSD() float64 {
	return p.Size * p.CurrentPrice
}

// PnLUSD is the unrealized P&L at the current price.
func (p AccountPosition) PnLUSD() float64 {
	return (p.CurrentPrice - p.AvgPrice) * p.Size
}

// AccountSummary is what the account command prints.
type AccountSummary struct {
	SignerAddress string
	FunderAddress string
	SignatureType SignatureType
	BalanceUSD    float64
	Positions     []AccountPosition
	OpenOrders    []VenueOrder
	RecentTrades  []Trade
}
