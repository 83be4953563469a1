// Package strategy supplies the signals a walk-forward run evaluates.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/config"
	"stockalert-go/internal/indicators"
	"stockalert-go/internal/market"
	"stockalert-go/internal/signal"
)

// Provider returns the signals generated as of a session date.
type Provider interface {
	Signals(ctx context.Context, asOf time.Time) ([]signal.Signal, error)
}

// Universe runs scanners over every ticker in a price history store.
type Universe struct {
	store    market.Store
	scanners []Scanner
	tickers  []string
	log      zerolog.Logger
}

// Option customises a Universe.
type Option func(*Universe)

// WithTickers restricts scanning to the given symbols.
func WithTickers(tickers []string) Option {
	return func(u *Universe) { u.tickers = append([]string(nil), tickers...) }
}

// WithScanners replaces the scanners built from the strategy table.
func WithScanners(scanners ...Scanner) Option {
	return func(u *Universe) { u.scanners = scanners }
}

// NewUniverse builds a scanner for every configured strategy that has one.
func NewUniverse(store market.Store, strategies config.StrategyTable, log zerolog.Logger, opts ...Option) *Universe {
	u := &Universe{store: store, log: log.With().Str("component", "scanner").Logger()}
	for _, name := range strategies.Names() {
		sc, ok := Build(name)
		if !ok {
			u.log.Warn().Str("strategy", name).Msg("no scanner registered")
			continue
		}
		u.scanners = append(u.scanners, sc)
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Signals implements Provider. Tickers without a bar on asOf are skipped.
func (u *Universe) Signals(ctx context.Context, asOf time.Time) ([]signal.Signal, error) {
	tickers := u.tickers
	if len(tickers) == 0 {
		var err error
		if tickers, err = u.store.Tickers(ctx); err != nil {
			return nil, fmt.Errorf("list tickers: %w", err)
		}
	}
	asOf = signal.Day(asOf)

	var out []signal.Signal
	for _, ticker := range tickers {
		bars, err := u.store.Bars(ctx, ticker, asOf)
		if errors.Is(err, market.ErrNoHistory) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !bars[len(bars)-1].Date.Equal(asOf) {
			continue
		}
		series := indicators.NewSeries(bars)
		for _, sc := range u.scanners {
			if sig, ok := sc.Scan(ticker, bars, series); ok {
				out = append(out, sig)
			}
		}
	}
	return out, nil
}

// Static replays a fixed signal list, returning those dated on the requested session.
type Static []signal.Signal

// Signals implements Provider.
func (s Static) Signals(_ context.Context, asOf time.Time) ([]signal.Signal, error) {
	asOf = signal.Day(asOf)
	var out []signal.Signal
	for _, sig := range s {
		if signal.Day(sig.AsOf).Equal(asOf) {
			out = append(out, sig)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}
