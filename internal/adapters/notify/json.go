package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// JSON writes machine-readable output, one document per call.
type JSON struct {
	enc *json.Encoder
}

var (
	_ ports.Notifier   = (*JSON)(nil)
	_ ports.SignalSink = (*JSON)(nil)
)

// NewJSON writes indented JSON to stdout.
func NewJSON() *JSON {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter writes indented JSON to w.
func NewJSONWriter(w io.Writer) *JSON {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSON{enc: enc}
}

type jsonOpportunity struct {
	Rank         int       `json:"rank"`
	Score        int       `json:"score"`
	MarketID     string    `json:"marketId"`
	Question     string    `json:"question"`
	Category     string    `json:"category"`
	URL          string    `json:"url"`
	PriceYes     float64   `json:"priceYes"`
	Volume24hUSD float64   `json:"volume24hUsd"`
	VolumeUSD    float64   `json:"volumeUsd"`
	LiquidityUSD float64   `json:"liquidityUsd"`
	EndDate      string    `json:"endDate,omitempty"`
	TokenIDYes   string    `json:"tokenIdYes"`
	TokenIDNo    string    `json:"tokenIdNo"`
	Subscores    subscores `json:"subscores"`
	ScannedAt    time.Time `json:"scannedAt"`
}

type subscores struct {
	Uncertainty float64 `json:"uncertainty"`
	Volume      float64 `json:"volume"`
	Liquidity   float64 `json:"liquidity"`
	Activity    float64 `json:"activity"`
	Timing      float64 `json:"timing"`
}

type jsonSignal struct {
	Kind     string    `json:"kind"`
	TokenID  string    `json:"tokenId"`
	MarketID string    `json:"marketId"`
	Question string    `json:"question"`
	Side     string    `json:"side"`
	PnLPct   float64   `json:"pnlPct"`
	Reason   string    `json:"reason"`
	RaisedAt time.Time `json:"raisedAt"`
}

// Notify writes the ranked opportunities as a JSON array.
func (j *JSON) Notify(_ context.Context, opportunities []domain.Opportunity) error {
	out := make([]jsonOpportunity, 0, len(opportunities))
	for i, o := range opportunities {
		m := o.Market
		item := jsonOpportunity{
			Rank:         i + 1,
			Score:        o.Score,
			MarketID:     m.ID,
			Question:     m.Question,
			Category:     string(m.Category),
			URL:          m.URL(),
			PriceYes:     m.PriceYes,
			Volume24hUSD: m.Volume24hUSD,
			VolumeUSD:    m.VolumeTotalUSD,
			LiquidityUSD: m.LiquidityUSD,
			TokenIDYes:   m.TokenIDYes,
			TokenIDNo:    m.TokenIDNo,
			Subscores: subscores{
				Uncertainty: o.Subscores.Uncertainty,
				Volume:      o.Subscores.Volume,
				Liquidity:   o.Subscores.Liquidity,
				Activity:    o.Subscores.Activity,
				Timing:      o.Subscores.Timing,
			},
			ScannedAt: o.ScannedAt,
		}
		if !m.EndDate.IsZero() {
			item.EndDate = m.EndDate.UTC().Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return j.Write(out)
}

// NotifySignals writes signals as a JSON array.
func (j *JSON) NotifySignals(_ context.Context, signals []domain.Signal) error {
	out := make([]jsonSignal, 0, len(signals))
	for _, s := range signals {
		out = append(out, jsonSignal{
			Kind:     string(s.Kind),
			TokenID:  s.Position.TokenID,
			MarketID: s.Position.MarketID,
			Question: s.Position.Question,
			Side:     string(s.Position.Side),
			PnLPct:   s.Position.UnrealizedPnLPct,
			Reason:   s.Reason,
			RaisedAt: s.RaisedAt,
		})
	}
	return j.Write(out)
}

// Write encodes any value. Used by commands whose output has no dedicated shape.
func (j *JSON) Write(v any) error {
	if err := j.enc.Encode(v); err != nil {
		return fmt.Errorf("notify.JSON: encode: %w", err)
	}
	return nil
}
