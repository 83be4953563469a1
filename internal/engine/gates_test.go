package engine

import (
	"context"
	"errors"
	"testing"

	"stockalert-go/internal/config"
	"stockalert-go/internal/ledger"
	"stockalert-go/internal/market"
	"stockalert-go/internal/signal"
	"stockalert-go/internal/strategy"
)

// indexBars moves the index close by step points a day from 200.
func indexBars(n int, step float64) []signal.Bar {
	bars := make([]signal.Bar, n)
	for i := range bars {
		c := 200 + step*float64(i)
		bars[i] = signal.Bar{Date: day(i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1e6}
	}
	return bars
}

func regimeConfig() config.Config {
	cfg := testConfig(20, 20)
	breakout := cfg.Strategies[0]
	breakout.Name = "Breakout"
	cfg.Strategies = append(cfg.Strategies, breakout)
	cfg.Filters.RegimeIndex = "IDX"
	cfg.Filters.RegimeMA = 10
	cfg.Filters.RegimeGated = []string{"Breakout"}
	return cfg
}

func regimeSignals() strategy.Static {
	return strategy.Static{
		{Ticker: "A", Strategy: "Breakout", AsOf: day(20), RawScore: 5},
		{Ticker: "B", Strategy: "Test", AsOf: day(20), RawScore: 5},
	}
}

func closedTickers(results []ledger.TradeResult) []string {
	var out []string
	for _, r := range results {
		if r.Outcome == ledger.OutcomeClosed {
			out = append(out, r.Ticker)
		}
	}
	return out
}

func TestBearishRegimePausesGatedStrategies(t *testing.T) {
	store, err := market.NewMemoryStore(map[string][]signal.Bar{
		"A": flatBars(40), "B": flatBars(40), "IDX": indexBars(40, -1),
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	report, err := newEngine(t, regimeConfig(), store, regimeSignals()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Ticker != "B" {
		t.Fatalf("expected only the ungated strategy to trade, got %+v", report.Results)
	}
}

func TestBullishRegimeAdmitsGatedStrategies(t *testing.T) {
	store, err := market.NewMemoryStore(map[string][]signal.Bar{
		"A": flatBars(40), "B": flatBars(40), "IDX": indexBars(40, 1),
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	report, err := newEngine(t, regimeConfig(), store, regimeSignals()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := closedTickers(report.Results); len(got) != 2 {
		t.Fatalf("expected both tickers to trade, got %v", got)
	}
}

func TestShortIndexHistoryCountsAsBullish(t *testing.T) {
	store, err := market.NewMemoryStore(map[string][]signal.Bar{
		"A": flatBars(40), "B": flatBars(40), "IDX": indexBars(40, -1),
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	cfg := regimeConfig()
	cfg.Filters.RegimeMA = 50
	report, err := newEngine(t, cfg, store, regimeSignals()).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := closedTickers(report.Results); len(got) != 2 {
		t.Fatalf("expected both tickers to trade, got %v", got)
	}
}

func TestMissingRegimeIndexAbortsRun(t *testing.T) {
	_, err := newEngine(t, regimeConfig(), storeFor(t, []string{"A", "B"}, 40), regimeSignals()).Run(context.Background())
	var dataErr *market.DataError
	if !errors.As(err, &dataErr) || dataErr.Ticker != "IDX" || !errors.Is(err, market.ErrNoHistory) {
		t.Fatalf("expected missing index data error, got %v", err)
	}
}

func TestLiquidityFloor(t *testing.T) {
	tickers := []string{"A"}
	cfg := testConfig(20, 20)
	cfg.Filters.MinLiquidityUSD = 200_000
	report, err := newEngine(t, cfg, storeFor(t, tickers, 40), dailySignals(tickers, 20, 20)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Results) != 0 {
		t.Fatalf("illiquid ticker should be dropped, got %+v", report.Results)
	}

	cfg.Filters.MinLiquidityUSD = 100_000
	report, err = newEngine(t, cfg, storeFor(t, tickers, 40), dailySignals(tickers, 20, 20)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := closedTickers(report.Results); len(got) != 1 {
		t.Fatalf("ticker at the floor should trade, got %+v", report.Results)
	}
}

func TestLiquidityNeedsFullLookback(t *testing.T) {
	e := newEngine(t, testConfig(20, 20), storeFor(t, []string{"A"}, 40), strategy.Static{})
	e.cfg.Filters.MinLiquidityUSD = 1
	e.cfg.Filters.LiquidityLookback = 20
	err := e.liquid(signal.Signal{Ticker: "A"}, flatBars(19))
	if dropReason(err) != "insufficient_history" {
		t.Fatalf("expected insufficient history, got %v", err)
	}
	if err := e.liquid(signal.Signal{Ticker: "A"}, flatBars(20)); err != nil {
		t.Fatalf("expected liquid, got %v", err)
	}
}
