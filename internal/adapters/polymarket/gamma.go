package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const (
	gammaMarketsPath = "/markets"
	gammaEventsPath  = "/events"

	gammaPageSize     = 100
	gammaDefaultLimit = 500
	gammaEventsLimit  = 200
	gammaPageWorkers  = 4
)

var _ ports.MarketProvider = (*Client)(nil)

// ListActive fetches active markets ordered by 24h volume, paging 100 at a time up to q.Limit.
// Pages are fetched concurrently; a failed page after the first is logged and skipped.
func (c *Client) ListActive(ctx context.Context, q ports.MarketQuery) (domain.MarketBatch, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = gammaDefaultLimit
	}
	pages := (limit + gammaPageSize - 1) / gammaPageSize

	results := make([][]gammaMarket, pages)
	errs := make([]error, pages)

	var g errgroup.Group
	g.SetLimit(gammaPageWorkers)
	for page := 0; page < pages; page++ {
		g.Go(func() error {
			size := min(gammaPageSize, limit-page*gammaPageSize)
			results[page], errs[page] = c.fetchMarketsPage(ctx, page*gammaPageSize, size, q.Tag)
			return nil
		})
	}
	_ = g.Wait()

	if errs[0] != nil {
		return domain.MarketBatch{}, fmt.Errorf("gamma.ListActive: page 0: %w", errs[0])
	}

	var raw []gammaMarket
	seen := make(map[string]bool)
	for page, r := range results {
		if errs[page] != nil {
			slog.Warn("gamma page failed, skipping", "page", page, "err", errs[page])
			continue
		}
		for _, gm := range r {
			key := gm.ConditionID + "|" + gm.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			raw = append(raw, gm)
		}
	}

	batch := normalizeMarkets(raw, nil)
	slog.Debug("gamma markets fetched",
		"pages", pages,
		"raw", len(raw),
		"markets", len(batch.Markets),
		"skipped", batch.Skipped,
	)
	return batch, nil
}

// Trending returns the top markets by 24h volume.
func (c *Client) Trending(ctx context.Context, limit int) (domain.MarketBatch, error) {
	return c.ListActive(ctx, ports.MarketQuery{Limit: limit})
}

// ByCategory returns the top markets of a venue tag (politics, crypto, sports...).
func (c *Client) ByCategory(ctx context.Context, tag string, limit int) (domain.MarketBatch, error) {
	return c.ListActive(ctx, ports.MarketQuery{Limit: limit, Tag: strings.ToLower(strings.TrimSpace(tag))})
}

// Search returns markets of active events whose title contains every query term.
// Gamma has no text search, so matching is done client side.
func (c *Client) Search(ctx context.Context, query string, limit int) (domain.MarketBatch, error) {
	events, err := c.fetchEvents(ctx)
	if err != nil {
		return domain.MarketBatch{}, fmt.Errorf("gamma.Search: %w", err)
	}

	terms := strings.Fields(strings.ToLower(query))
	var matched []gammaEvent
	for _, ev := range events {
		title := strings.ToLower(ev.Title)
		if containsAll(title, terms) {
			matched = append(matched, ev)
		}
	}

	batch := normalizeEvents(matched)
	if limit > 0 && len(batch.Markets) > limit {
		batch.Markets = batch.Markets[:limit]
	}
	return batch, nil
}

// Expiring returns markets of events that end inside [now+minHours, now+maxDays],
// most traded events first.
func (c *Client) Expiring(ctx context.Context, now time.Time, minHours, maxDays float64, limit int) (domain.MarketBatch, error) {
	events, err := c.fetchEvents(ctx)
	if err != nil {
		return domain.MarketBatch{}, fmt.Errorf("gamma.Expiring: %w", err)
	}

	from := now.Add(time.Duration(minHours * float64(time.Hour)))
	to := now.Add(time.Duration(maxDays * 24 * float64(time.Hour)))

	var inWindow []gammaEvent
	for _, ev := range events {
		end := parseEndDate(ev.EndDate)
		if end.IsZero() || end.Before(from) || end.After(to) {
			continue
		}
		inWindow = append(inWindow, ev)
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Volume.value > inWindow[j].Volume.value
	})

	var batch domain.MarketBatch
	for i := range inWindow {
		b := normalizeMarkets(inWindow[i].Markets, &inWindow[i])
		end := parseEndDate(inWindow[i].EndDate)
		for _, m := range b.Markets {
			// the event end date is the deadline the window was checked against
			m.EndDate = end
			batch.Markets = append(batch.Markets, m)
		}
		batch.Skipped += b.Skipped
	}
	if limit > 0 && len(batch.Markets) > limit {
		batch.Markets = batch.Markets[:limit]
	}
	return batch, nil
}

// Detail resolves a slug or id. It tries, in order: event by slug, event by id,
// market by id and market by slug.
func (c *Client) Detail(ctx context.Context, ref string) (domain.MarketBatch, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.MarketBatch{}, fmt.Errorf("gamma.Detail: empty reference: %w", domain.ErrValidation)
	}
	esc := url.PathEscape(ref)

	lookups := []func() ([]gammaEvent, []gammaMarket, error){
		func() ([]gammaEvent, []gammaMarket, error) {
			var evs []gammaEvent
			err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaEventsPath+"?slug="+url.QueryEscape(ref), &evs)
			return evs, nil, err
		},
		func() ([]gammaEvent, []gammaMarket, error) {
			var ev gammaEvent
			err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaEventsPath+"/"+esc, &ev)
			if err != nil || len(ev.Markets) == 0 {
				return nil, nil, err
			}
			return []gammaEvent{ev}, nil, nil
		},
		func() ([]gammaEvent, []gammaMarket, error) {
			var gm gammaMarket
			err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"/"+esc, &gm)
			if err != nil || gm.ConditionID == "" {
				return nil, nil, err
			}
			return nil, []gammaMarket{gm}, nil
		},
		func() ([]gammaEvent, []gammaMarket, error) {
			var gms []gammaMarket
			err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?slug="+url.QueryEscape(ref), &gms)
			return nil, gms, err
		},
	}

	for i, lookup := range lookups {
		events, markets, err := lookup()
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
				slog.Debug("gamma detail lookup missed", "ref", ref, "step", i, "err", err)
				continue
			}
			return domain.MarketBatch{}, fmt.Errorf("gamma.Detail: %w", err)
		}
		var batch domain.MarketBatch
		switch {
		case len(events) > 0:
			batch = normalizeEvents(events[:1])
		case len(markets) > 0:
			batch = normalizeMarkets(markets[:1], nil)
		default:
			continue
		}
		if len(batch.Markets) > 0 {
			return batch, nil
		}
	}
	return domain.MarketBatch{}, fmt.Errorf("gamma.Detail: %q: %w", ref, domain.ErrNotFound)
}

func (c *Client) fetchMarketsPage(ctx context.Context, offset, size int, tag string) ([]gammaMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(size))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume24hr")
	params.Set("ascending", "false")
	if tag != "" {
		params.Set("tag", tag)
	}

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) fetchEvents(ctx context.Context) ([]gammaEvent, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(gammaEventsLimit))

	var events []gammaEvent
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaEventsPath+"?"+params.Encode(), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
