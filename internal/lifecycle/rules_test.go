package lifecycle

import (
	"testing"
	"time"

	"stockalert-go/internal/config"
	"stockalert-go/internal/indicators"
	"stockalert-go/internal/signal"
)

func closesSeries(closes ...float64) *indicators.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]signal.Bar, len(closes))
	for i, c := range closes {
		bars[i] = signal.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return indicators.NewSeries(bars)
}

func TestRSICrossAbove(t *testing.T) {
	rule := RSICrossAbove{Period: 2, Threshold: 55, Label: "RSIRecovered"}
	s := closesSeries(10, 9, 8, 7, 9)
	if _, ok := rule.EvaluateExit(s.At(3), Position{}); ok {
		t.Fatalf("no cross expected while RSI stays at 0")
	}
	reason, ok := rule.EvaluateExit(s.At(4), Position{})
	if !ok || reason != "RSIRecovered" {
		t.Fatalf("expected cross above 55, got %q %v", reason, ok)
	}
	if _, ok := rule.EvaluateExit(s.At(1), Position{}); ok {
		t.Fatalf("warm-up bars must not fire")
	}
}

func TestCloseBelowAverages(t *testing.T) {
	s := closesSeries(10, 11, 12, 9)
	if _, ok := (CloseBelowSMA{Period: 3, Label: "x"}).EvaluateExit(s.At(3), Position{}); !ok {
		t.Fatalf("close 9 should be below SMA3")
	}
	if _, ok := (CloseBelowSMA{Period: 3, Label: "x"}).EvaluateExit(s.At(2), Position{}); ok {
		t.Fatalf("close 12 should be above SMA3")
	}
	if _, ok := (CloseBelowEMA{Period: 2, Label: "x"}).EvaluateExit(s.At(3), Position{}); !ok {
		t.Fatalf("close 9 should be below EMA2")
	}
}

func TestBuildRulesDefaults(t *testing.T) {
	rules, err := BuildRules(config.Default().StrategyTable())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected a rule per default strategy, got %d", len(rules))
	}
	if _, ok := rules[config.StrategyMeanReversion].(RSICrossAbove); !ok {
		t.Fatalf("mean reversion should use RSI cross, got %T", rules[config.StrategyMeanReversion])
	}
	rule, err := NewExitRule(config.ExitRule{Kind: KindCloseBelowEMA, Period: 20})
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	if rule.(CloseBelowEMA).Label != "EMA20Break" {
		t.Fatalf("expected default label")
	}
	if rule, err := NewExitRule(config.ExitRule{}); rule != nil || err != nil {
		t.Fatalf("empty kind should yield no rule")
	}
}
