package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teatimedev/polymarket-trader/internal/adapters/notify"
	"github.com/teatimedev/polymarket-trader/internal/application/scanner"
	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// parseInterleaved parses flags that may appear after positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", fs.Name(), err, errUsage)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {}
	return fs
}

// cmdScan scores and ranks active markets, or the expiring window when expiring is set.
func (a *app) cmdScan(ctx context.Context, args []string, expiring bool) error {
	fs := newFlagSet("scan")
	asJSON := fs.Bool("json", false, "machine-readable output")
	excludeSports := fs.Bool("exclude-sports", false, "drop sports markets")
	limit := fs.Int("limit", 20, "number of opportunities to print")
	category := fs.String("category", "", "comma-separated categories to keep")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}

	cfg := a.scannerConfig()
	if *category != "" {
		cfg.Filter.Categories = categories(strings.Split(*category, ","))
	}
	if *excludeSports {
		cfg.Filter.AvoidCategories = append(cfg.Filter.AvoidCategories, domain.CategorySports)
	}

	var notifier ports.Notifier = a.console
	if *asJSON {
		notifier = notify.NewJSON()
	}
	var scans ports.ScanStore
	if store, err := a.storage(); err == nil {
		scans = store
	} else {
		slog.Warn("scan history disabled", "err", err)
	}

	s := scanner.New(cfg, a.client, scans, notifier)
	scan := s.Scan
	if expiring {
		scan = s.ScanExpiring
	}
	res, err := scan(ctx)
	if err != nil {
		return err
	}
	slog.Info("scan complete",
		"fetched", res.Fetched,
		"skipped", res.Skipped,
		"excluded", res.Excluded,
		"opportunities", len(res.Opportunities),
	)
	if *limit > 0 && len(res.Opportunities) > *limit {
		res.Opportunities = res.Opportunities[:*limit]
	}
	s.Report(ctx, res)
	return nil
}

func (a *app) cmdSearch(ctx context.Context, args []string) error {
	fs := newFlagSet("search")
	limit := fs.Int("limit", 10, "max results")
	asJSON := fs.Bool("json", false, "machine-readable output")
	terms, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		return fmt.Errorf("search: query required: %w", errUsage)
	}
	query := strings.Join(terms, " ")

	batch, err := a.client.Search(ctx, query, *limit)
	if err != nil {
		return err
	}
	return a.printMarkets(fmt.Sprintf("Search: %q", query), batch.Markets, *asJSON)
}

func (a *app) cmdTrending(ctx context.Context, args []string) error {
	fs := newFlagSet("trending")
	limit := fs.Int("limit", 10, "max results")
	asJSON := fs.Bool("json", false, "machine-readable output")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}

	batch, err := a.client.Trending(ctx, *limit)
	if err != nil {
		return err
	}
	return a.printMarkets("Trending (24h volume)", batch.Markets, *asJSON)
}

func (a *app) cmdCategory(ctx context.Context, args []string) error {
	fs := newFlagSet("category")
	limit := fs.Int("limit", 10, "max results")
	asJSON := fs.Bool("json", false, "machine-readable output")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("category: exactly one tag required: %w", errUsage)
	}

	batch, err := a.client.ByCategory(ctx, pos[0], *limit)
	if err != nil {
		return err
	}
	return a.printMarkets("Category: "+pos[0], batch.Markets, *asJSON)
}

func (a *app) cmdDetail(ctx context.Context, args []string) error {
	fs := newFlagSet("detail")
	asJSON := fs.Bool("json", false, "machine-readable output")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("detail: exactly one slug or id required: %w", errUsage)
	}

	batch, err := a.client.Detail(ctx, pos[0])
	if err != nil {
		return err
	}
	if *asJSON {
		return notify.NewJSON().Write(batch.Markets)
	}
	a.console.PrintMarketDetail(batch.Markets)
	return nil
}

func (a *app) printMarkets(title string, markets []domain.Market, asJSON bool) error {
	if asJSON {
		return notify.NewJSON().Write(markets)
	}
	a.console.PrintMarkets(title, markets)
	return nil
}
