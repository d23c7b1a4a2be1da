package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/adapters/notify"
	"github.com/teatimedev/polymarket-trader/internal/application/pipeline"
	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// cmdAccount prints wallet addresses, balance, venue positions, open orders and recent trades.
// Each section is best effort; a failing source is logged and left empty.
func (a *app) cmdAccount(ctx context.Context, args []string) error {
	fs := newFlagSet("account")
	trades := fs.Int("trades", 10, "recent trades to show")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}

	ts, err := a.openTrading(ctx)
	if err != nil {
		return err
	}
	summary := domain.AccountSummary{
		SignerAddress: ts.signer.Address(),
		FunderAddress: ts.signer.Funder(),
		SignatureType: ts.signer.SignatureType(),
	}

	if summary.BalanceUSD, err = ts.venue.Balance(ctx); err != nil {
		slog.Warn("balance unavailable", "err", err)
	}
	if summary.Positions, err = a.client.Positions(ctx, summary.FunderAddress); err != nil {
		slog.Warn("positions unavailable", "err", err)
	}
	if summary.OpenOrders, err = ts.venue.OpenOrders(ctx); err != nil {
		slog.Warn("open orders unavailable", "err", err)
	}
	if summary.RecentTrades, err = a.client.Trades(ctx, summary.FunderAddress, *trades); err != nil {
		slog.Warn("trades unavailable", "err", err)
	}

	a.console.PrintAccount(summary)
	return nil
}

// cmdLedger shows or rolls over the persisted daily risk state. No keys are needed.
func (a *app) cmdLedger(ctx context.Context, args []string) error {
	fs := newFlagSet("ledger")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	action := "status"
	if len(pos) > 0 {
		action = pos[0]
	}

	store, err := a.storage()
	if err != nil {
		return err
	}
	ledger, err := a.openLedger(ctx, store)
	if err != nil {
		return err
	}

	switch action {
	case "status":
	case "rollover":
		rolled, err := ledger.DayRollover(ctx, time.Now())
		if err != nil {
			return err
		}
		if !rolled {
			fmt.Println("Ledger already on the current day")
		}
	default:
		return fmt.Errorf("ledger: unknown action %q: %w", action, errUsage)
	}
	a.console.PrintLedger(ledger.Snapshot())
	return nil
}

// cmdMonitor reprices tracked positions at the venue midpoint and prints signals.
func (a *app) cmdMonitor(ctx context.Context, args []string) error {
	fs := newFlagSet("monitor")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}

	store, err := a.storage()
	if err != nil {
		return err
	}
	res, err := a.monitor(store).Evaluate(ctx, time.Now())
	if err != nil {
		return err
	}
	a.console.PrintPositions(res.Positions)
	if res.Failed > 0 {
		slog.Warn("some positions could not be repriced", "failed", res.Failed)
	}
	return nil
}

// cmdCycle runs one full pipeline cycle. Schedule it with cron or a systemd timer.
func (a *app) cmdCycle(ctx context.Context, args []string) error {
	fs := newFlagSet("cycle")
	dryRun := fs.Bool("dry-run", false, "decide but do not submit orders")
	scanAll := fs.Bool("all", false, "scan all active markets instead of the expiring window")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}

	p, err := a.pipeline(ctx, *dryRun, *scanAll)
	if err != nil {
		return err
	}
	res, err := p.RunCycle(ctx)
	if err != nil {
		return err
	}

	a.console.PrintCycle(cycleReport(res))
	return nil
}

func cycleReport(res *pipeline.CycleResult) notify.CycleReport {
	r := notify.CycleReport{
		Scanned:    res.Scan.Fetched,
		Skipped:    res.Scan.Skipped + res.Scan.Excluded,
		Candidates: len(res.Candidates),
		Verdicts:   res.Verdicts,
		Orders:     res.Orders,
		Signals:    res.Signals,
		Ledger:     res.Ledger,
	}
	for _, d := range res.Denied {
		r.Denied = append(r.Denied, fmt.Sprintf("%s: %v", domain.TruncateQuestion(d.Question, d.MarketID, 40), d.Err))
	}
	for _, e := range res.Errors {
		r.Errors = append(r.Errors, e.Error())
	}
	if res.TradingHalted {
		r.Errors = append(r.Errors, "trading halted for this cycle")
	}
	return r
}
