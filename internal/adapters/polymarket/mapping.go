package polymarket

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

var (
	errInactive      = errors.New("market inactive or closed")
	errMissingTokens = errors.New("missing token ids")
)

// endDateLayouts are the formats Gamma has been seen to use.
var endDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

// normalizeMarkets converts a page of raw listings. Records that cannot be traded
// are counted in Skipped and never fail the batch.
func normalizeMarkets(raw []gammaMarket, ev *gammaEvent) domain.MarketBatch {
	batch := domain.MarketBatch{Markets: make([]domain.Market, 0, len(raw))}
	for _, gm := range raw {
		m, err := normalizeMarket(gm, ev)
		if err != nil {
			batch.Skipped++
			continue
		}
		batch.Markets = append(batch.Markets, m)
	}
	return batch
}

// normalizeEvents flattens events into their markets, carrying the event title.
func normalizeEvents(events []gammaEvent) domain.MarketBatch {
	var batch domain.MarketBatch
	for i := range events {
		b := normalizeMarkets(events[i].Markets, &events[i])
		batch.Markets = append(batch.Markets, b.Markets...)
		batch.Skipped += b.Skipped
	}
	return batch
}

// normalizeMarket maps one Gamma listing onto domain.Market.
// ev is the enclosing event when the listing came from /events, nil otherwise.
func normalizeMarket(gm gammaMarket, ev *gammaEvent) (domain.Market, error) {
	if !gm.Active || gm.Closed {
		return domain.Market{}, errInactive
	}
	if len(gm.ClobTokenIDs) < 2 || gm.ClobTokenIDs[0] == "" || gm.ClobTokenIDs[1] == "" {
		return domain.Market{}, errMissingTokens
	}

	yes, no := yesIndex(gm.Outcomes), 1
	if yes == 1 {
		no = 0
	}

	price := 0.0
	if yes < len(gm.OutcomePrices) {
		p, err := strconv.ParseFloat(strings.TrimSpace(gm.OutcomePrices[yes]), 64)
		if err != nil || math.IsNaN(p) {
			return domain.Market{}, fmt.Errorf("outcome price %q: %w", gm.OutcomePrices[yes], domain.ErrValidation)
		}
		price = clamp01(p)
	}

	total := firstSet(gm.VolumeNum, gm.Volume)
	vol24 := nonNegative(gm.Volume24h.value)

	m := domain.Market{
		ID:             gm.ConditionID,
		Slug:           gm.Slug,
		Question:       gm.Question,
		Category:       domain.Categorize(gm.Question),
		TokenIDYes:     gm.ClobTokenIDs[yes],
		TokenIDNo:      gm.ClobTokenIDs[no],
		PriceYes:       price,
		VolumeTotalUSD: math.Max(total, vol24),
		Volume24hUSD:   vol24,
		LiquidityUSD:   firstSet(gm.LiquidityNum, gm.Liquidity),
		EndDate:        parseEndDate(gm.EndDate, gm.EndDateISO),
		Active:         true,
		NegRisk:        gm.NegRisk,
	}
	if m.ID == "" {
		m.ID = gm.ID
	}
	if ev != nil {
		m.EventTitle = ev.Title
		m.NegRisk = m.NegRisk || ev.NegRisk
		if m.EndDate.IsZero() {
			m.EndDate = parseEndDate(ev.EndDate)
		}
		if m.Slug == "" {
			m.Slug = ev.Slug
		}
	}
	return m, nil
}

// yesIndex returns the position of the "Yes" outcome, defaulting to 0.
func yesIndex(outcomes []string) int {
	for i, o := range outcomes {
		if i > 1 {
			break
		}
		if strings.EqualFold(strings.TrimSpace(o), "yes") {
			return i
		}
	}
	return 0
}

func parseEndDate(candidates ...string) time.Time {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		for _, layout := range endDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func firstSet(values ...flexFloat) float64 {
	for _, v := range values {
		if v.set {
			return nonNegative(v.value)
		}
	}
	return 0
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp01(p float64) float64 {
	return math.Min(1, math.Max(0, p))
}

// mapClobOrder converts a CLOB order into the venue view used by reconciliation.
func mapClobOrder(o clobOrder) domain.VenueOrder {
	return domain.VenueOrder{
		VenueOrderID: o.ID,
		TokenID:      o.AssetID,
		MarketID:     o.Market,
		Side:         domain.ParseSide(o.Outcome),
		Action:       domain.OrderAction(strings.ToUpper(o.Side)),
		PriceUSD:     parseFloat(o.Price),
		SizeShares:   parseFloat(o.OriginalSize),
		FilledShares: parseFloat(o.SizeMatched),
		Status:       mapOrderStatus(o.Status, parseFloat(o.OriginalSize), parseFloat(o.SizeMatched)),
		CreatedAt:    parseTimestamp(fmt.Sprint(o.CreatedAt)),
	}
}

// mapOrderStatus maps CLOB statuses (LIVE, MATCHED, CANCELED, UNMATCHED, DELAYED...)
// onto the order lifecycle.
func mapOrderStatus(status string, size, matched float64) domain.OrderStatus {
	upper := strings.ToUpper(status)
	switch {
	case strings.Contains(upper, "CANCEL"), strings.Contains(upper, "UNMATCHED"):
		// any partial fill stays recorded in FilledShares
		return domain.OrderCancelled
	case strings.Contains(upper, "INVALID"), strings.Contains(upper, "REJECT"):
		return domain.OrderRejected
	case strings.Contains(upper, "MATCHED"), strings.Contains(upper, "FILLED"):
		if size > 0 && matched+1e-9 < size {
			return domain.OrderPartiallyFilled
		}
		return domain.OrderFilled
	default:
		if matched > 0 {
			return domain.OrderPartiallyFilled
		}
		return domain.OrderOpen
	}
}

// parseUSDC converts a micro-USDC integer string ("1000000") to USDC.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return parseFloat(s)
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseTimestamp accepts unix seconds, unix millis or an ISO 8601 string.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "<nil>" {
		return time.Time{}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC()
		}
		return time.Unix(int64(n), 0).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
