package domain

import "time"

// Subscores breaks a total score down into its five components.
type Subscores struct {
	Uncertainty float64 // max 30
	Volume      float64 // max 25
	Liquidity   float64 // max 15
	Activity    float64 // max 10
	Timing      float64 // max 20
}

// Total is the unrounded sum of all components.
func (s Subscores) Total() float64 {
	return s.Uncertainty + s.Volume + s.Liquidity + s.Activity + s.Timing
}

// Opportunity is a scored market. Derived per cycle and discarded after ranking.
type Opportunity struct {
	Market    Market
	Score     int // [0,100]
	Subscores Subscores
	ScannedAt time.Time
}
