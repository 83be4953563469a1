// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Backtest bounds the walk-forward window and the portfolio it simulates.
type Backtest struct {
	Start            string   `yaml:"start"`
	End              string   `yaml:"end"`
	Schedule         string   `yaml:"schedule"` // daily | weekly:<weekday>
	MaxOpenPositions int      `yaml:"max_open_positions"`
	Workers          int      `yaml:"workers"`
	Universe         []string `yaml:"universe"`
}

// Confirmation holds the next-bar checks a candidate must pass before entry.
type Confirmation struct {
	MaxGapPct         float64 `yaml:"max_gap_pct"`
	MinVolumeRatio    float64 `yaml:"min_volume_ratio"`
	VolumeLookback    int     `yaml:"volume_lookback"`
	BearishCloseRatio float64 `yaml:"bearish_close_ratio"`
}

// TrailStep raises the stop to lock LockFraction of the open gain once the high reaches TriggerR.
type TrailStep struct {
	TriggerR     float64 `yaml:"trigger_r"`
	LockFraction float64 `yaml:"lock_fraction"`
}

// Exits configures the shared part of the open-position exit rules.
type Exits struct {
	MinHoldingDays int         `yaml:"min_holding_days"`
	CatastrophicR  float64     `yaml:"catastrophic_r"`
	MaxHoldingDays int         `yaml:"max_holding_days"`
	Trail          []TrailStep `yaml:"trail"`
}

// Ranking tunes the expectancy ranker.
type Ranking struct {
	MinScore   float64 `yaml:"min_score"`
	ScoreScale float64 `yaml:"score_scale"`
	MaxPerScan int     `yaml:"max_per_scan"`
}

// Filters are pre-trade gates applied to signals before they are priced. A zero MinLiquidityUSD
// or an empty RegimeIndex disables the corresponding gate.
type Filters struct {
	MinLiquidityUSD   float64  `yaml:"min_liquidity_usd"`
	LiquidityLookback int      `yaml:"liquidity_lookback"`
	RegimeIndex       string   `yaml:"regime_index"`
	RegimeMA          int      `yaml:"regime_ma"`
	RegimeGated       []string `yaml:"regime_gated_strategies"`
}

// ExitRule describes a strategy-specific signal exit.
type ExitRule struct {
	Kind      string  `yaml:"kind"` // rsi_cross_above | close_below_sma | close_below_ema
	Period    int     `yaml:"period"`
	Threshold float64 `yaml:"threshold"`
	Label     string  `yaml:"label"`
}

// Strategy carries the calibrated, per-strategy risk and ranking parameters.
type Strategy struct {
	Name           string   `yaml:"name"`
	Priority       int      `yaml:"priority"`
	StopATRMult    float64  `yaml:"stop_atr_mult"`
	RewardMult     float64  `yaml:"reward_mult"`
	ScoreLow       float64  `yaml:"score_low"`
	ScoreHigh      float64  `yaml:"score_high"`
	WinRate        float64  `yaml:"win_rate"`
	AvgWinR        float64  `yaml:"avg_win_r"`
	AvgLossR       float64  `yaml:"avg_loss_r"`
	MaxHoldingDays int      `yaml:"max_holding_days"`
	Exit           ExitRule `yaml:"exit"`
}

// Tracker selects the position tracker backend.
type Tracker struct {
	Backend        string `yaml:"backend"` // memory | file | postgres | redis
	Path           string `yaml:"path"`
	DSN            string `yaml:"dsn"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisDB        int    `yaml:"redis_db"`
	KeyPrefix      string `yaml:"key_prefix"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms"`
}

// Data points at the local price history.
type Data struct {
	Dir string `yaml:"dir"`
}

// Paper captures simulated account settings used for position sizing.
type Paper struct {
	StartingCapital float64 `yaml:"starting_capital"`
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
}

// Ledger names the optional result exports.
type Ledger struct {
	JSONLPath string `yaml:"jsonl_path"`
	CSVPath   string `yaml:"csv_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App          App          `yaml:"app"`
	Backtest     Backtest     `yaml:"backtest"`
	Confirmation Confirmation `yaml:"confirmation"`
	Exits        Exits        `yaml:"exits"`
	Ranking      Ranking      `yaml:"ranking"`
	Filters      Filters      `yaml:"filters"`
	Strategies   []Strategy   `yaml:"strategies"`
	Tracker      Tracker      `yaml:"tracker"`
	Data         Data         `yaml:"data"`
	Paper        Paper        `yaml:"paper"`
	Ledger       Ledger       `yaml:"ledger"`
}

// Environment variables that override store endpoints.
const (
	EnvTrackerDSN = "STOCKALERT_TRACKER_DSN"
	EnvRedisAddr  = "STOCKALERT_REDIS_ADDR"
)

// Load reads a YAML file from disk on top of Default and applies environment overrides.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv loads .env (best-effort) and lets the environment override store endpoints.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()
	if v := os.Getenv(EnvTrackerDSN); v != "" {
		c.Tracker.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Tracker.RedisAddr = v
	}
}

// Validate rejects configurations the simulator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backtest.MaxOpenPositions <= 0 {
		errs = append(errs, errors.New("backtest.max_open_positions must be positive"))
	}
	if c.Confirmation.MaxGapPct < 0 {
		errs = append(errs, errors.New("confirmation.max_gap_pct must not be negative"))
	}
	if c.Exits.MaxHoldingDays <= 0 {
		errs = append(errs, errors.New("exits.max_holding_days must be positive"))
	}
	if c.Filters.MinLiquidityUSD < 0 {
		errs = append(errs, errors.New("filters.min_liquidity_usd must not be negative"))
	}
	if c.Filters.MinLiquidityUSD > 0 && c.Filters.LiquidityLookback <= 0 {
		errs = append(errs, errors.New("filters.liquidity_lookback must be positive when the liquidity floor is set"))
	}
	if c.Filters.RegimeIndex != "" && c.Filters.RegimeMA <= 0 {
		errs = append(errs, errors.New("filters.regime_ma must be positive when a regime index is set"))
	}
	if len(c.Strategies) == 0 {
		errs = append(errs, errors.New("at least one strategy is required"))
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Name == "" {
			errs = append(errs, errors.New("strategy without name"))
			continue
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("strategy %q listed twice", s.Name))
		}
		seen[s.Name] = struct{}{}
		if s.ScoreHigh <= s.ScoreLow {
			errs = append(errs, fmt.Errorf("strategy %q: score_high must exceed score_low", s.Name))
		}
		if s.StopATRMult <= 0 || s.RewardMult <= 0 {
			errs = append(errs, fmt.Errorf("strategy %q: multipliers must be positive", s.Name))
		}
		if s.WinRate < 0 || s.WinRate > 1 {
			errs = append(errs, fmt.Errorf("strategy %q: win_rate must be within [0,1]", s.Name))
		}
	}
	return errors.Join(errs...)
}
