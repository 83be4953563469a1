package lifecycle

import (
	"errors"
	"fmt"

	"stockalert-go/internal/config"
	"stockalert-go/internal/indicators"
	"stockalert-go/internal/signal"
)

// ErrUnknownExitRule is returned for an unrecognised exit kind.
var ErrUnknownExitRule = errors.New("unknown exit rule")

// Exit rule kinds accepted in configuration.
const (
	KindRSICrossAbove = "rsi_cross_above"
	KindCloseBelowSMA = "close_below_sma"
	KindCloseBelowEMA = "close_below_ema"
)

// ExitRule is a strategy-specific exit evaluated on each bar after the warm-up window.
type ExitRule interface {
	EvaluateExit(snap indicators.Snapshot, pos Position) (signal.ExitReason, bool)
}

// RSICrossAbove exits when RSI(Period) crosses up through Threshold.
type RSICrossAbove struct {
	Period    int
	Threshold float64
	Label     signal.ExitReason
}

func (r RSICrossAbove) EvaluateExit(snap indicators.Snapshot, _ Position) (signal.ExitReason, bool) {
	prev, ok := snap.PrevRSI(r.Period)
	if !ok {
		return "", false
	}
	cur, ok := snap.RSI(r.Period)
	if !ok {
		return "", false
	}
	if prev < r.Threshold && cur >= r.Threshold {
		return r.Label, true
	}
	return "", false
}

// CloseBelowSMA exits on a close under the Period simple average.
type CloseBelowSMA struct {
	Period int
	Label  signal.ExitReason
}

func (r CloseBelowSMA) EvaluateExit(snap indicators.Snapshot, _ Position) (signal.ExitReason, bool) {
	ma, ok := snap.SMA(r.Period)
	if ok && snap.Bar().Close < ma {
		return r.Label, true
	}
	return "", false
}

// CloseBelowEMA exits on a close under the Period exponential average.
type CloseBelowEMA struct {
	Period int
	Label  signal.ExitReason
}

func (r CloseBelowEMA) EvaluateExit(snap indicators.Snapshot, _ Position) (signal.ExitReason, bool) {
	ma, ok := snap.EMA(r.Period)
	if ok && snap.Bar().Close < ma {
		return r.Label, true
	}
	return "", false
}

// NewExitRule builds a rule from configuration. An empty kind yields a nil rule.
func NewExitRule(cfg config.ExitRule) (ExitRule, error) {
	if cfg.Kind == "" {
		return nil, nil
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("exit rule %s: period must be positive", cfg.Kind)
	}
	label := signal.ExitReason(cfg.Label)
	switch cfg.Kind {
	case KindRSICrossAbove:
		if label == "" {
			label = "RSICrossAbove"
		}
		return RSICrossAbove{Period: cfg.Period, Threshold: cfg.Threshold, Label: label}, nil
	case KindCloseBelowSMA:
		if label == "" {
			label = signal.ExitReason(fmt.Sprintf("SMA%dBreak", cfg.Period))
		}
		return CloseBelowSMA{Period: cfg.Period, Label: label}, nil
	case KindCloseBelowEMA:
		if label == "" {
			label = signal.ExitReason(fmt.Sprintf("EMA%dBreak", cfg.Period))
		}
		return CloseBelowEMA{Period: cfg.Period, Label: label}, nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Kind, ErrUnknownExitRule)
}

// Rules maps strategy name to its exit rule.
type Rules map[string]ExitRule

// BuildRules constructs the exit rule table for every configured strategy.
func BuildRules(table config.StrategyTable) (Rules, error) {
	rules := make(Rules)
	for _, name := range table.Names() {
		params, _ := table.Lookup(name)
		rule, err := NewExitRule(params.Exit)
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", name, err)
		}
		if rule != nil {
			rules[name] = rule
		}
	}
	return rules, nil
}
