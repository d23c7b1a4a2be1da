package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teatimedev/polymarket-trader/config"
)

const usage = `usage: trader [-config path] [-verbose] [-format text|json] <command> [args]

market data:
  scan       [-json] [-exclude-sports] [-limit n] [-category c]   score and rank active markets
  expiring   [-json] [-limit n]                                   score markets resolving soon
  search     <query> [-limit n]
  trending   [-limit n]
  category   <tag> [-limit n]
  detail     <slug|id>

trading:
  trade      buy|sell <token_id> -size usd [-price p | -market] [-side YES|NO] [-dry-run] [-yes]
  orders     list | cancel <order_id> | cancel-all [-yes]
  account    wallet, balance, positions, open orders and recent trades
  ledger     status | rollover
  monitor    reprice tracked positions and print signals
  cycle      [-dry-run] [-all]   run one scan → edge → order → monitor cycle
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (.yaml or .toml)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(cfg)
	err = a.run(ctx, flag.Arg(0), flag.Args()[1:])
	a.close()
	if err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		slog.Error("command failed", "command", flag.Arg(0), "err", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default config file is absent,
// so read-only commands work without any setup.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return config.Parse(nil, ".yaml")
	}
	return cfg, err
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
