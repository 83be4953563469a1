// Package risk prices signals into candidates with an ATR stop and an R-multiple target.
package risk

import (
	"errors"
	"fmt"

	"stockalert-go/internal/config"
	"stockalert-go/internal/indicators"
	"stockalert-go/internal/signal"
)

// ATRPeriod is the true range window used for stops.
const ATRPeriod = 14

var (
	ErrInsufficientHistory  = errors.New("insufficient history for ATR")
	ErrDegenerateVolatility = errors.New("non-positive ATR")
	ErrUnknownStrategy      = errors.New("unknown strategy")
)

// Calculator converts signals into candidates using per-strategy multipliers.
type Calculator struct {
	strategies config.StrategyTable
}

// NewCalculator binds the calculator to a strategy table.
func NewCalculator(strategies config.StrategyTable) Calculator {
	return Calculator{strategies: strategies}
}

// Candidate prices sig against history, which must end on the signal date.
func (c Calculator) Candidate(sig signal.Signal, history []signal.Bar) (signal.Candidate, error) {
	params, ok := c.strategies.Lookup(sig.Strategy)
	if !ok {
		return signal.Candidate{}, fmt.Errorf("%s %q: %w", sig.Ticker, sig.Strategy, ErrUnknownStrategy)
	}
	atr, ok := indicators.ATR(history, ATRPeriod)
	if !ok {
		return signal.Candidate{}, fmt.Errorf("%s: %d bars: %w", sig.Ticker, len(history), ErrInsufficientHistory)
	}
	if atr <= 0 {
		return signal.Candidate{}, fmt.Errorf("%s: %w", sig.Ticker, ErrDegenerateVolatility)
	}
	return Price(sig, history[len(history)-1].Close, atr, params), nil
}

// Price derives stop and target from an entry and ATR.
func Price(sig signal.Signal, entry, atr float64, params config.Strategy) signal.Candidate {
	stop := entry - params.StopATRMult*atr
	risk := entry - stop
	return signal.Candidate{
		Signal:       sig,
		EntryPrice:   entry,
		StopPrice:    stop,
		TargetPrice:  entry + params.RewardMult*risk,
		RiskPerShare: risk,
		ATR:          atr,
	}
}
