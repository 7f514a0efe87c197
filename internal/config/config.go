// Package config defines all configuration for the grid bot. Config is
// loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via GRID_* environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Grid     GridConfig     `mapstructure:"grid"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ExchangeConfig holds the venue endpoint and the two credentials the
// HMAC query-string signing scheme needs.
type ExchangeConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// GridConfig is the default per-basket strategy configuration. Individual
// baskets may override any field at creation time; this block supplies
// the defaults a new basket is seeded with, plus the Orchestrator's
// cadence.
type GridConfig struct {
	LevelsPct           []decimal.Decimal `mapstructure:"levels_pct"`
	AllocWeights        []decimal.Decimal `mapstructure:"alloc_weights"`
	MaxGridCapitalQuote decimal.Decimal   `mapstructure:"max_grid_capital_quote"`

	TPStartPct  decimal.Decimal `mapstructure:"tp_start_pct"`
	TPStepPct   decimal.Decimal `mapstructure:"tp_step_pct"`
	TPMinPct    decimal.Decimal `mapstructure:"tp_min_pct"`
	TP2DeltaPct decimal.Decimal `mapstructure:"tp2_delta_pct"`

	TP1Share   decimal.Decimal `mapstructure:"tp1_share"`
	TP2Share   decimal.Decimal `mapstructure:"tp2_share"`
	TrailShare decimal.Decimal `mapstructure:"trail_share"`

	TrailingCallbackPct decimal.Decimal `mapstructure:"trailing_callback_pct"`

	HardStopMode string          `mapstructure:"hard_stop_mode"`
	HardStopPct  decimal.Decimal `mapstructure:"hard_stop_pct"`

	PlaceMode string `mapstructure:"place_mode"`
	KNext     int    `mapstructure:"k_next"`

	ReanchorCloseRatio decimal.Decimal `mapstructure:"reanchor_close_ratio"`
	ReanchorTimeTTLSec int64           `mapstructure:"reanchor_time_ttl_s"`

	EmergencySafetyMarginPct decimal.Decimal `mapstructure:"emergency_safety_margin_pct"`

	OrchestratorCycleSec int `mapstructure:"orchestrator_cycle_sec"`
}

// StoreConfig selects the GORM driver/dsn the State Store opens.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CycleInterval returns the Orchestrator's cadence, defaulting to 5s per
// spec.md §4.6's check_interval_seconds default.
func (c Config) CycleInterval() time.Duration {
	if c.Grid.OrchestratorCycleSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Grid.OrchestratorCycleSec) * time.Second
}

// decimalDecodeHook lets viper populate decimal.Decimal fields from the
// plain numbers or strings a YAML config file naturally contains.
func decimalDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return decimal.NewFromString(data.(string))
	case reflect.Float64:
		return decimal.NewFromFloat(data.(float64)), nil
	case reflect.Int, reflect.Int64:
		return decimal.NewFromInt(reflect.ValueOf(data).Int()), nil
	default:
		return data, nil
	}
}

var _ mapstructure.DecodeHookFuncType = decimalDecodeHook

// Load reads config from a YAML file with env var overrides.
// Sensitive fields and the dry-run toggle use GRID_*: GRID_API_KEY,
// GRID_API_SECRET, GRID_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	rejectUnknownKeys := func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decimalDecodeHook), rejectUnknownKeys); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("GRID_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("GRID_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
	if dryRun := os.Getenv("GRID_DRY_RUN"); dryRun == "true" || dryRun == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.APIKey == "" {
		return fmt.Errorf("exchange.api_key is required (set GRID_API_KEY)")
	}
	if c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange.api_secret is required (set GRID_API_SECRET)")
	}
	if len(c.Grid.LevelsPct) == 0 {
		return fmt.Errorf("grid.levels_pct must not be empty")
	}
	if len(c.Grid.LevelsPct) != len(c.Grid.AllocWeights) {
		return fmt.Errorf("grid.levels_pct has %d entries, grid.alloc_weights has %d", len(c.Grid.LevelsPct), len(c.Grid.AllocWeights))
	}
	sum := decimal.Zero
	for _, w := range c.Grid.AllocWeights {
		sum = sum.Add(w)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(1e-6)) {
		return fmt.Errorf("grid.alloc_weights must sum to 1.0 (got %s)", sum)
	}
	for _, lvl := range c.Grid.LevelsPct {
		if !lvl.IsZero() && lvl.Abs().LessThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("grid.levels_pct entry %s looks like a fraction; use percent units (e.g. -5.0, not -0.05)", lvl)
		}
	}
	if c.Grid.MaxGridCapitalQuote.IsZero() || c.Grid.MaxGridCapitalQuote.IsNegative() {
		return fmt.Errorf("grid.max_grid_capital_quote must be > 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "mysql", "":
	default:
		return fmt.Errorf("store.driver must be one of sqlite, postgres, mysql")
	}
	return nil
}
