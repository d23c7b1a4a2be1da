package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // budget.timezone must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full trader configuration.
type Config struct {
	API      APIConfig      `yaml:"api" toml:"api"`
	Account  AccountConfig  `yaml:"account" toml:"account"`
	Budget   BudgetConfig   `yaml:"budget" toml:"budget"`
	Strategy StrategyConfig `yaml:"strategy" toml:"strategy"`
	Scoring  ScoringConfig  `yaml:"scoring" toml:"scoring"`
	Orders   OrdersConfig   `yaml:"orders" toml:"orders"`
	Monitor  MonitorConfig  `yaml:"monitor" toml:"monitor"`
	Research ResearchConfig `yaml:"research" toml:"research"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive" toml:"archive"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// APIConfig holds the venue base URLs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base" toml:"clob_base"`
	GammaBase string `yaml:"gamma_base" toml:"gamma_base"`
	DataBase  string `yaml:"data_base" toml:"data_base"`
	RPCURL    string `yaml:"rpc_url" toml:"rpc_url"` // Polygon JSON-RPC, for balances
}

// AccountConfig identifies the trading wallet. The key normally comes from the environment.
type AccountConfig struct {
	PrivateKey    string `yaml:"private_key" toml:"private_key"`
	Funder        string `yaml:"funder" toml:"funder"`                 // proxy/safe address holding funds
	SignatureType int    `yaml:"signature_type" toml:"signature_type"` // 0 EOA, 1 POLY_PROXY, 2 GNOSIS_SAFE
}

// BudgetConfig bounds daily spend and loss.
type BudgetConfig struct {
	TotalUSD          float64 `yaml:"total_usd" toml:"total_usd"`
	MaxPerTradeUSD    float64 `yaml:"max_per_trade_usd" toml:"max_per_trade_usd"`
	DailyLossLimitUSD float64 `yaml:"daily_loss_limit_usd" toml:"daily_loss_limit_usd"`
	MinPositionUSD    float64 `yaml:"min_position_usd" toml:"min_position_usd"`
	Timezone          string  `yaml:"timezone" toml:"timezone"` // IANA name defining the ledger day
}

// StrategyConfig controls candidate selection and the edge decision.
type StrategyConfig struct {
	MinVolumeUSD    float64       `yaml:"min_volume_usd" toml:"min_volume_usd"`
	MinLiquidityUSD float64       `yaml:"min_liquidity_usd" toml:"min_liquidity_usd"`
	MinOdds         float64       `yaml:"min_odds" toml:"min_odds"`
	MaxOdds         float64       `yaml:"max_odds" toml:"max_odds"`
	MaxExpiryDays   float64       `yaml:"max_expiry_days" toml:"max_expiry_days"`
	MinExpiryHours  float64       `yaml:"min_expiry_hours" toml:"min_expiry_hours"`
	MinConfidence   float64       `yaml:"min_confidence" toml:"min_confidence"`
	EdgeThreshold   float64       `yaml:"edge_threshold" toml:"edge_threshold"`
	EstimateTTL     time.Duration `yaml:"estimate_ttl" toml:"estimate_ttl"`
	Categories      []string      `yaml:"categories" toml:"categories"`
	AvoidCategories []string      `yaml:"avoid_categories" toml:"avoid_categories"`
	MaxCandidates   int           `yaml:"max_candidates" toml:"max_candidates"`
	DefaultSizeUSD  float64       `yaml:"default_size_usd" toml:"default_size_usd"`
	ScanLimit       int           `yaml:"scan_limit" toml:"scan_limit"`
	// ScanAll makes the cycle scan every active market instead of the expiring window.
	ScanAll bool `yaml:"scan_all" toml:"scan_all"`
}

// ScoringConfig tunes the sub-score curves.
type ScoringConfig struct {
	ReferenceVolumeUSD float64 `yaml:"reference_volume_usd" toml:"reference_volume_usd"`
	LiquidityCeiling   float64 `yaml:"liquidity_ceiling" toml:"liquidity_ceiling"`
	ActivityRatio      float64 `yaml:"activity_ratio" toml:"activity_ratio"`
	UncertaintyBand    float64 `yaml:"uncertainty_band" toml:"uncertainty_band"`
	TimingFullMinDays  float64 `yaml:"timing_full_min_days" toml:"timing_full_min_days"`
	TimingFullMaxDays  float64 `yaml:"timing_full_max_days" toml:"timing_full_max_days"`
	TimingZeroMaxDays  float64 `yaml:"timing_zero_max_days" toml:"timing_zero_max_days"`
	Workers            int     `yaml:"workers" toml:"workers"`
}

// OrdersConfig controls order building, submission and reconciliation.
type OrdersConfig struct {
	Tick           float64       `yaml:"tick" toml:"tick"`
	Kind           string        `yaml:"kind" toml:"kind"` // LIMIT | MARKET
	MaxAttempts    int           `yaml:"max_attempts" toml:"max_attempts"`
	PendingTimeout time.Duration `yaml:"pending_timeout" toml:"pending_timeout"`
	ArchiveAfter   time.Duration `yaml:"archive_after" toml:"archive_after"`
}

// MonitorConfig sets the position signal thresholds.
type MonitorConfig struct {
	TakeProfitPct float64       `yaml:"take_profit_pct" toml:"take_profit_pct"`
	StopLossPct   float64       `yaml:"stop_loss_pct" toml:"stop_loss_pct"`
	ResolvingSoon time.Duration `yaml:"resolving_soon" toml:"resolving_soon"`
	Workers       int           `yaml:"workers" toml:"workers"`
}

// ResearchConfig selects the probability provider: an HTTP service or a YAML file.
type ResearchConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Token   string        `yaml:"token" toml:"token"`
	File    string        `yaml:"file" toml:"file"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	Workers int           `yaml:"workers" toml:"workers"`
}

// StorageConfig controls where state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"` // SQLite file path, or ":memory:"
}

// RedisConfig enables the cross-process account lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	TLS      bool          `yaml:"tls" toml:"tls"`
	LockTTL  time.Duration `yaml:"lock_ttl" toml:"lock_ttl"`
}

// ArchiveConfig enables the S3 order archive when Bucket is set.
type ArchiveConfig struct {
	Endpoint       string `yaml:"endpoint" toml:"endpoint"`
	Region         string `yaml:"region" toml:"region"`
	Bucket         string `yaml:"bucket" toml:"bucket"`
	Prefix         string `yaml:"prefix" toml:"prefix"`
	AccessKey      string `yaml:"access_key" toml:"access_key"`
	SecretKey      string `yaml:"secret_key" toml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style" toml:"force_path_style"`
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug | info | warn | error
	Format string `yaml:"format" toml:"format"` // text | json
}

// Load reads the YAML (or TOML, by extension) file at path and the .env file if present.
// Environment variables override file values for the keys they cover.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodes data as TOML when ext is ".toml" and as YAML otherwise,
// then applies environment overrides and defaults and validates the result.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	if strings.EqualFold(ext, ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location returns the ledger timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Budget.Timezone)
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYMARKET_PRIVATE_KEY"); v != "" {
		cfg.Account.PrivateKey = v
	}
	if v := os.Getenv("POLYMARKET_FUNDER"); v != "" {
		cfg.Account.Funder = v
	}
	if v := os.Getenv("POLYMARKET_SIGNATURE_TYPE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLYMARKET_SIGNATURE_TYPE=%q: not an integer", v)
		}
		cfg.Account.SignatureType = n
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.API.RPCURL = v
	}
	if v := os.Getenv("TRADER_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RESEARCH_URL"); v != "" {
		cfg.Research.URL = v
	}
	return nil
}

// setDefaults fills every unset value.
func setDefaults(cfg *Config) {
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.RPCURL == "" {
		cfg.API.RPCURL = "https://polygon-rpc.com"
	}

	setFloat(&cfg.Budget.TotalUSD, 25)
	setFloat(&cfg.Budget.MaxPerTradeUSD, 10)
	setFloat(&cfg.Budget.DailyLossLimitUSD, 10)
	setFloat(&cfg.Budget.MinPositionUSD, 5)
	if cfg.Budget.Timezone == "" {
		cfg.Budget.Timezone = "UTC"
	}

	s := &cfg.Strategy
	setFloat(&s.MinVolumeUSD, 10_000)
	setFloat(&s.MinLiquidityUSD, 1_000)
	setFloat(&s.MinOdds, 0.10)
	setFloat(&s.MaxOdds, 0.90)
	setFloat(&s.MaxExpiryDays, 7)
	setFloat(&s.MinExpiryHours, 6)
	setFloat(&s.MinConfidence, 0.7)
	setFloat(&s.EdgeThreshold, 0.10)
	setDuration(&s.EstimateTTL, 6*time.Hour)
	setInt(&s.MaxCandidates, 10)
	setFloat(&s.DefaultSizeUSD, cfg.Budget.MinPositionUSD)
	setInt(&s.ScanLimit, 500)

	sc := &cfg.Scoring
	setFloat(&sc.ReferenceVolumeUSD, 1_000_000)
	setFloat(&sc.LiquidityCeiling, 50_000)
	setFloat(&sc.ActivityRatio, 0.10)
	setFloat(&sc.UncertaintyBand, 0.40)
	setFloat(&sc.TimingFullMinDays, 1)
	setFloat(&sc.TimingFullMaxDays, 30)
	setFloat(&sc.TimingZeroMaxDays, 45)

	setFloat(&cfg.Orders.Tick, 0.01)
	if cfg.Orders.Kind == "" {
		cfg.Orders.Kind = "LIMIT"
	}
	cfg.Orders.Kind = strings.ToUpper(cfg.Orders.Kind)
	setInt(&cfg.Orders.MaxAttempts, 4)
	setDuration(&cfg.Orders.PendingTimeout, 5*time.Minute)
	setDuration(&cfg.Orders.ArchiveAfter, 24*time.Hour)

	setFloat(&cfg.Monitor.TakeProfitPct, 0.15)
	setFloat(&cfg.Monitor.StopLossPct, -0.20)
	setDuration(&cfg.Monitor.ResolvingSoon, 24*time.Hour)
	setInt(&cfg.Monitor.Workers, 4)

	setDuration(&cfg.Research.Timeout, 60*time.Second)
	setInt(&cfg.Research.Workers, 4)

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "trader.db"
	}
	setDuration(&cfg.Redis.LockTTL, 30*time.Second)
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "archive/orders"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

// Validate checks bounds and cross-field constraints. Each problem is reported
// as "section.field: message"; all problems are joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
		}
	}

	b := c.Budget
	check(b.TotalUSD > 0, "budget.total_usd", "must be positive")
	check(b.MaxPerTradeUSD > 0 && b.MaxPerTradeUSD <= b.TotalUSD, "budget.max_per_trade_usd",
		"must be in (0, total_usd=%.2f]", b.TotalUSD)
	check(b.DailyLossLimitUSD > 0, "budget.daily_loss_limit_usd", "must be positive")
	check(b.MinPositionUSD > 0 && b.MinPositionUSD <= b.MaxPerTradeUSD, "budget.min_position_usd",
		"must be in (0, max_per_trade_usd=%.2f]", b.MaxPerTradeUSD)
	_, tzErr := c.Location()
	check(tzErr == nil, "budget.timezone", "unknown timezone %q", b.Timezone)

	s := c.Strategy
	check(s.MinOdds > 0 && s.MinOdds < s.MaxOdds && s.MaxOdds < 1, "strategy.min_odds",
		"need 0 < min_odds < max_odds < 1, got %.2f/%.2f", s.MinOdds, s.MaxOdds)
	check(s.MinVolumeUSD >= 0, "strategy.min_volume_usd", "must not be negative")
	check(s.MinLiquidityUSD >= 0, "strategy.min_liquidity_usd", "must not be negative")
	check(s.MinExpiryHours >= 0, "strategy.min_expiry_hours", "must not be negative")
	check(s.MaxExpiryDays*24 > s.MinExpiryHours, "strategy.max_expiry_days",
		"window must end after min_expiry_hours")
	check(s.MinConfidence > 0 && s.MinConfidence <= 1, "strategy.min_confidence", "must be in (0,1]")
	check(s.EdgeThreshold > 0 && s.EdgeThreshold < 1, "strategy.edge_threshold", "must be in (0,1)")
	check(s.DefaultSizeUSD >= b.MinPositionUSD && s.DefaultSizeUSD <= b.MaxPerTradeUSD,
		"strategy.default_size_usd", "must be within [%.2f, %.2f]", b.MinPositionUSD, b.MaxPerTradeUSD)
	check(s.MaxCandidates > 0, "strategy.max_candidates", "must be positive")

	sc := c.Scoring
	check(sc.ActivityRatio > 0, "scoring.activity_ratio", "must be positive")
	check(sc.UncertaintyBand > 0 && sc.UncertaintyBand <= 0.5, "scoring.uncertainty_band", "must be in (0,0.5]")
	check(sc.TimingFullMinDays < sc.TimingFullMaxDays && sc.TimingFullMaxDays <= sc.TimingZeroMaxDays,
		"scoring.timing_full_max_days", "need timing_full_min_days < timing_full_max_days <= timing_zero_max_days")

	check(c.Orders.Kind == "LIMIT" || c.Orders.Kind == "MARKET", "orders.kind", "must be LIMIT or MARKET, got %q", c.Orders.Kind)
	check(c.Orders.Tick > 0 && c.Orders.Tick < 1, "orders.tick", "must be in (0,1)")

	check(c.Monitor.TakeProfitPct > 0, "monitor.take_profit_pct", "must be positive")
	check(c.Monitor.StopLossPct < 0, "monitor.stop_loss_pct", "must be negative")

	check(c.Account.SignatureType >= 0 && c.Account.SignatureType <= 2, "account.signature_type",
		"must be 0 (EOA), 1 (POLY_PROXY) or 2 (GNOSIS_SAFE)")
	check(c.Account.SignatureType == 0 || c.Account.Funder != "", "account.funder",
		"required for proxy and safe signature types")

	check(c.Research.URL == "" || c.Research.File == "", "research.url", "set either url or file, not both")

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		check(false, "log.format", "must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
