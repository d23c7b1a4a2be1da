package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/teatimedev/polymarket-trader/config"
	"github.com/teatimedev/polymarket-trader/internal/adapters/archive"
	"github.com/teatimedev/polymarket-trader/internal/adapters/notify"
	"github.com/teatimedev/polymarket-trader/internal/adapters/polymarket"
	"github.com/teatimedev/polymarket-trader/internal/adapters/redislock"
	"github.com/teatimedev/polymarket-trader/internal/adapters/research"
	"github.com/teatimedev/polymarket-trader/internal/adapters/storage"
	"github.com/teatimedev/polymarket-trader/internal/application/edge"
	"github.com/teatimedev/polymarket-trader/internal/application/monitor"
	"github.com/teatimedev/polymarket-trader/internal/application/orders"
	"github.com/teatimedev/polymarket-trader/internal/application/pipeline"
	"github.com/teatimedev/polymarket-trader/internal/application/risk"
	"github.com/teatimedev/polymarket-trader/internal/application/scanner"
	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

var errUsage = errors.New("usage")

// app builds adapters lazily so read-only commands never touch keys or storage.
type app struct {
	cfg     *config.Config
	client  *polymarket.Client
	console *notify.Console
	store   *storage.SQLiteStorage
	trading *tradingStack
	closers []func() error
}

// tradingStack is everything needed to place and track orders.
type tradingStack struct {
	signer     *polymarket.Signer
	venue      *polymarket.TradingClient
	ledger     *risk.Ledger
	builder    *orders.Builder
	submitter  *orders.Submitter
	reconciler *orders.Reconciler
}

func newApp(cfg *config.Config) *app {
	client := polymarket.NewClient(polymarket.Endpoints{
		CLOB:  cfg.API.CLOBBase,
		Gamma: cfg.API.GammaBase,
		Data:  cfg.API.DataBase,
	})
	client.SetRetryPolicy(retry.Policy{MaxAttempts: cfg.Orders.MaxAttempts})
	return &app{cfg: cfg, client: client, console: notify.NewConsole()}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "scan":
		return a.cmdScan(ctx, args, false)
	case "expiring":
		return a.cmdScan(ctx, args, true)
	case "search":
		return a.cmdSearch(ctx, args)
	case "trending":
		return a.cmdTrending(ctx, args)
	case "category":
		return a.cmdCategory(ctx, args)
	case "detail":
		return a.cmdDetail(ctx, args)
	case "trade":
		return a.cmdTrade(ctx, args)
	case "orders":
		return a.cmdOrders(ctx, args)
	case "account":
		return a.cmdAccount(ctx, args)
	case "ledger":
		return a.cmdLedger(ctx, args)
	case "monitor":
		return a.cmdMonitor(ctx, args)
	case "cycle":
		return a.cmdCycle(ctx, args)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (a *app) storage() (*storage.SQLiteStorage, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.NewSQLiteStorage(a.cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage %q: %w", a.cfg.Storage.DSN, err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) scannerConfig() scanner.Config {
	s := a.cfg.Strategy
	sc := a.cfg.Scoring
	return scanner.Config{
		Filter: scanner.FilterConfig{
			MinVolumeUSD:         s.MinVolumeUSD,
			MinLiquidityUSD:      s.MinLiquidityUSD,
			MinOdds:              s.MinOdds,
			MaxOdds:              s.MaxOdds,
			Categories:           categories(s.Categories),
			AvoidCategories:      categories(s.AvoidCategories),
			MinHoursToResolution: s.MinExpiryHours,
			MaxDaysToResolution:  s.MaxExpiryDays,
		},
		Scoring: domain.ScoringConfig{
			ReferenceVolumeUSD: sc.ReferenceVolumeUSD,
			LiquidityCeiling:   sc.LiquidityCeiling,
			MinLiquidityUSD:    s.MinLiquidityUSD,
			ActivityRatio:      sc.ActivityRatio,
			UncertaintyBand:    sc.UncertaintyBand,
			TimingFullMinDays:  sc.TimingFullMinDays,
			TimingFullMaxDays:  sc.TimingFullMaxDays,
			TimingZeroMaxDays:  sc.TimingZeroMaxDays,
		},
		Workers:              sc.Workers,
		Limit:                s.ScanLimit,
		MinHoursToResolution: s.MinExpiryHours,
		MaxDaysToResolution:  s.MaxExpiryDays,
	}
}

func categories(names []string) []domain.Category {
	out := make([]domain.Category, 0, len(names))
	for _, n := range names {
		out = append(out, domain.ParseCategory(n))
	}
	return out
}

func (a *app) signer() (*polymarket.Signer, error) {
	acct := a.cfg.Account
	if acct.PrivateKey == "" {
		return nil, fmt.Errorf("POLYMARKET_PRIVATE_KEY is not set: %w", domain.ErrSigningFailure)
	}
	return polymarket.NewSigner(acct.PrivateKey, domain.SignatureType(acct.SignatureType), acct.Funder)
}

// openTrading authenticates with the CLOB and opens the ledger.
func (a *app) openTrading(ctx context.Context) (*tradingStack, error) {
	if a.trading != nil {
		return a.trading, nil
	}
	store, err := a.storage()
	if err != nil {
		return nil, err
	}
	signer, err := a.signer()
	if err != nil {
		return nil, err
	}

	auth := polymarket.NewAuthClient(a.client, signer)
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials: %w", err)
	}
	venue, err := polymarket.NewTradingClient(auth, a.cfg.API.RPCURL)
	if err != nil {
		return nil, err
	}

	ledger, err := a.openLedger(ctx, store)
	if err != nil {
		return nil, err
	}

	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}
	archiver, err := a.archiver(ctx)
	if err != nil {
		return nil, err
	}

	submitter := orders.NewSubmitter(venue, signer, ledger, store, store, locker)
	submitter.SetRetryPolicy(retry.Policy{MaxAttempts: a.cfg.Orders.MaxAttempts})

	builder := orders.NewBuilder(orders.BuilderConfig{
		Tick:       a.cfg.Orders.Tick,
		MinSizeUSD: a.cfg.Budget.MinPositionUSD,
	}, signer.SignatureType())
	reconciler := orders.NewReconciler(orders.ReconcilerConfig{
		PendingTimeout: a.cfg.Orders.PendingTimeout,
		ArchiveAfter:   a.cfg.Orders.ArchiveAfter,
	}, venue, ledger, store, store, archiver)

	a.trading = &tradingStack{
		signer:     signer,
		venue:      venue,
		ledger:     ledger,
		builder:    builder,
		submitter:  submitter,
		reconciler: reconciler,
	}
	slog.Info("authenticated with Polymarket CLOB",
		"address", signer.Address(),
		"funder", signer.Funder(),
		"signature_type", signer.SignatureType(),
	)
	return a.trading, nil
}

func (a *app) openLedger(ctx context.Context, store ports.LedgerStore) (*risk.Ledger, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	b := a.cfg.Budget
	return risk.Open(ctx, store, risk.Config{
		TotalBudgetUSD:    decimal.NewFromFloat(b.TotalUSD),
		MaxPerTradeUSD:    decimal.NewFromFloat(b.MaxPerTradeUSD),
		DailyLossLimitUSD: decimal.NewFromFloat(b.DailyLossLimitUSD),
		MinPositionUSD:    decimal.NewFromFloat(b.MinPositionUSD),
		Location:          loc,
	})
}

// locker returns the redis account lock when configured; nil means in-process only.
func (a *app) locker(ctx context.Context) (ports.AccountLocker, error) {
	r := a.cfg.Redis
	if r.Addr == "" {
		return nil, nil
	}
	rdb, err := redislock.Dial(ctx, redislock.ClientConfig{
		Addr:       r.Addr,
		Password:   r.Password,
		DB:         r.DB,
		TLSEnabled: r.TLS,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return redislock.New(rdb, r.LockTTL), nil
}

// archiver returns the S3 order archive when a bucket is configured.
func (a *app) archiver(ctx context.Context) (ports.OrderArchiver, error) {
	c := a.cfg.Archive
	if c.Bucket == "" {
		return nil, nil
	}
	arch, err := archive.New(ctx, archive.Config{
		Endpoint:       c.Endpoint,
		Region:         c.Region,
		Bucket:         c.Bucket,
		Prefix:         c.Prefix,
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		ForcePathStyle: c.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return arch, nil
}

// research returns the configured probability provider.
func (a *app) research() (ports.ProbabilityProvider, error) {
	r := a.cfg.Research
	switch {
	case r.URL != "":
		return research.NewHTTPProvider(r.URL, r.Token, r.Timeout), nil
	case r.File != "":
		fp, err := research.NewFileProvider(r.File)
		if err != nil {
			return nil, err
		}
		return fp, nil
	default:
		return nil, fmt.Errorf("research: set research.url, RESEARCH_URL or research.file: %w", domain.ErrValidation)
	}
}

func (a *app) monitor(store ports.PositionStore) *monitor.Monitor {
	m := a.cfg.Monitor
	return monitor.New(monitor.Config{
		TakeProfitPct: m.TakeProfitPct,
		StopLossPct:   m.StopLossPct,
		ResolvingSoon: m.ResolvingSoon,
		Workers:       m.Workers,
	}, a.client, store, a.console)
}

func (a *app) pipeline(ctx context.Context, dryRun, scanAll bool) (*pipeline.Pipeline, error) {
	ts, err := a.openTrading(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := a.research()
	if err != nil {
		return nil, err
	}
	s := a.cfg.Strategy
	return pipeline.New(pipeline.Config{
		Expiring:        !(scanAll || s.ScanAll),
		MaxCandidates:   s.MaxCandidates,
		DefaultSizeUSD:  s.DefaultSizeUSD,
		OrderKind:       domain.OrderKind(a.cfg.Orders.Kind),
		ResearchWorkers: a.cfg.Research.Workers,
		ResearchTimeout: a.cfg.Research.Timeout,
		DryRun:          dryRun,
	}, pipeline.Deps{
		Scanner:    scanner.New(a.scannerConfig(), a.client, a.store, nil),
		Research:   provider,
		Edge:       edge.NewEngine(edge.Config{Threshold: s.EdgeThreshold, MinConfidence: s.MinConfidence, EstimateTTL: s.EstimateTTL}),
		Ledger:     ts.ledger,
		Builder:    ts.builder,
		Submitter:  ts.submitter,
		Reconciler: ts.reconciler,
		Monitor:    a.monitor(a.store),
		Positions:  a.store,
		Orders:     a.store,
	}), nil
}

// confirm asks on stdin and reports whether the answer was "yes".
func confirm(prompt string) bool {
	fmt.Fprintf(os.Stdout, "%s (yes/no): ", prompt)
	var answer string
	if _, err := fmt.Fscanln(os.Stdin, &answer); err != nil {
		return false
	}
	return answer == "yes" || answer == "y"
}
