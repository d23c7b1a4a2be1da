package domain

import "time"

// Trade is an executed trade reported by the data API.
type Trade struct {
	ID        string
	TokenID   string
	MarketID  string
	Title     string
	Outcome   string
	Side      string // "BUY" | "SELL"
	Price     float64
	Size      float64
	Timestamp time.Time
}

// NotionalUSD is price times size.
func (t Trade) NotionalUSD() float64 {
	return t.Price * t.Size
}
