package config

// Strategy names shipped with the reference scanners.
const (
	StrategyEMACrossover  = "EMA Crossover"
	StrategyHigh52        = "52-Week High"
	StrategyMeanReversion = "Mean Reversion"
)

// Default returns the calibrated configuration used when a YAML file leaves fields unset.
func Default() *Config {
	return &Config{
		App: App{
			Name:      "stockalert",
			Env:       "backtest",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Backtest: Backtest{
			Schedule:         "daily",
			MaxOpenPositions: 10,
			Workers:          4,
		},
		Confirmation: Confirmation{
			MaxGapPct:         3,
			MinVolumeRatio:    0.8,
			VolumeLookback:    20,
			BearishCloseRatio: 0.99,
		},
		Exits: Exits{
			MinHoldingDays: 3,
			CatastrophicR:  1.5,
			MaxHoldingDays: 45,
			Trail: []TrailStep{
				{TriggerR: 1.0, LockFraction: 0},
				{TriggerR: 2.0, LockFraction: 0.5},
				{TriggerR: 3.0, LockFraction: 0.6},
			},
		},
		Ranking: Ranking{
			MinScore:   0.5,
			ScoreScale: 10,
			MaxPerScan: 3,
		},
		Filters: Filters{
			LiquidityLookback: 20,
			RegimeMA:          200,
			RegimeGated:       []string{StrategyHigh52},
		},
		Strategies: []Strategy{
			{
				Name:        StrategyHigh52,
				Priority:    4,
				StopATRMult: 1.5,
				RewardMult:  2,
				ScoreLow:    6,
				ScoreHigh:   12,
				WinRate:     0.32,
				AvgWinR:     2.0,
				AvgLossR:    -1.0,
				Exit:        ExitRule{Kind: "close_below_sma", Period: 10, Label: "MA10Break"},
			},
			{
				Name:        StrategyEMACrossover,
				Priority:    3,
				StopATRMult: 1.5,
				RewardMult:  2,
				ScoreLow:    5,
				ScoreHigh:   18,
				WinRate:     0.40,
				AvgWinR:     1.8,
				AvgLossR:    -1.0,
				Exit:        ExitRule{Kind: "close_below_ema", Period: 20, Label: "EMA20Break"},
			},
			{
				Name:           StrategyMeanReversion,
				Priority:       1,
				StopATRMult:    2.5,
				RewardMult:     1.5,
				ScoreLow:       40,
				ScoreHigh:      100,
				WinRate:        0.60,
				AvgWinR:        1.2,
				AvgLossR:       -1.0,
				MaxHoldingDays: 20,
				Exit:           ExitRule{Kind: "rsi_cross_above", Period: 14, Threshold: 55, Label: "RSIRecovered"},
			},
		},
		Tracker: Tracker{
			Backend:        "memory",
			Path:           "data/open_positions.json",
			KeyPrefix:      "stockalert:",
			QueryTimeoutMs: 5000,
		},
		Data: Data{Dir: "data/history"},
		Paper: Paper{
			StartingCapital: 100000,
			RiskPerTradePct: 1.0,
		},
	}
}
