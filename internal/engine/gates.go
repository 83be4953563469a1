package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockalert-go/internal/indicators"
	"stockalert-go/internal/market"
	"stockalert-go/internal/risk"
	"stockalert-go/internal/signal"
)

var (
	ErrIlliquid      = errors.New("average dollar volume below floor")
	ErrBearishRegime = errors.New("strategy paused in bearish regime")
)

// liquid checks the mean close*volume of the last LiquidityLookback bars against the floor.
func (e *Engine) liquid(s signal.Signal, history []signal.Bar) error {
	f := e.cfg.Filters
	if f.MinLiquidityUSD <= 0 {
		return nil
	}
	if len(history) < f.LiquidityLookback {
		return fmt.Errorf("%s: %d bars for liquidity: %w", s.Ticker, len(history), risk.ErrInsufficientHistory)
	}
	var sum float64
	for _, b := range history[len(history)-f.LiquidityLookback:] {
		sum += b.Close * b.Volume
	}
	avg := sum / float64(f.LiquidityLookback)
	if avg < f.MinLiquidityUSD {
		return fmt.Errorf("%s: %.0f < %.0f: %w", s.Ticker, avg, f.MinLiquidityUSD, ErrIlliquid)
	}
	return nil
}

// bearish reports whether the regime index closed below its moving average on d. Too little index
// history counts as bullish.
func (e *Engine) bearish(ctx context.Context, d time.Time) (bool, error) {
	f := e.cfg.Filters
	if f.RegimeIndex == "" {
		return false, nil
	}
	bars, err := e.store.Bars(ctx, f.RegimeIndex, d)
	if errors.Is(err, market.ErrNoHistory) {
		return false, nil
	}
	if err != nil {
		return false, dataError(f.RegimeIndex, d, err)
	}
	if len(bars) < f.RegimeMA {
		return false, nil
	}
	ma := indicators.Mean(indicators.Closes(bars), f.RegimeMA)
	return bars[len(bars)-1].Close < ma, nil
}

func (e *Engine) gated(strategy string) bool {
	for _, name := range e.cfg.Filters.RegimeGated {
		if name == strategy {
			return true
		}
	}
	return false
}

// checkRegimeIndex fails the run when a configured index has no series at all.
func (e *Engine) checkRegimeIndex(ctx context.Context) error {
	index := e.cfg.Filters.RegimeIndex
	if index == "" {
		return nil
	}
	tickers, err := e.store.Tickers(ctx)
	if err != nil {
		return dataError("", time.Time{}, err)
	}
	for _, t := range tickers {
		if strings.EqualFold(t, index) {
			return nil
		}
	}
	return &market.DataError{Ticker: index, Err: market.ErrNoHistory}
}
