// Package market serves read-only daily price history partitioned strictly around an as-of date.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stockalert-go/internal/signal"
)

// ErrNoHistory marks a ticker/date with no usable bars.
var ErrNoHistory = errors.New("no price history")

// DataError attributes a failure to the price history store.
type DataError struct {
	Ticker string
	Date   time.Time
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("price history %s as of %s: %v", e.Ticker, e.Date.Format(signal.DateLayout), e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Store is the price history contract used by the simulator.
type Store interface {
	// Bars returns bars dated on or before asOf, oldest first.
	Bars(ctx context.Context, ticker string, asOf time.Time) ([]signal.Bar, error)
	// BarsAfter returns bars dated strictly after after, oldest first.
	BarsAfter(ctx context.Context, ticker string, after time.Time) ([]signal.Bar, error)
	// Calendar lists every session date present in the store.
	Calendar(ctx context.Context) ([]time.Time, error)
	// Tickers lists the symbols with history, sorted.
	Tickers(ctx context.Context) ([]string, error)
}

// MemoryStore keeps validated series in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	series   map[string][]signal.Bar
	tickers  []string
	calendar []time.Time
}

// NewMemoryStore validates and indexes the supplied series. Bars are copied and sorted by date.
func NewMemoryStore(series map[string][]signal.Bar) (*MemoryStore, error) {
	s := &MemoryStore{series: make(map[string][]signal.Bar, len(series))}
	for ticker, bars := range series {
		if err := s.put(ticker, bars); err != nil {
			return nil, err
		}
	}
	s.reindex()
	return s, nil
}

// Put replaces the series for one ticker.
func (s *MemoryStore) Put(ticker string, bars []signal.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(ticker, bars); err != nil {
		return err
	}
	s.reindex()
	return nil
}

func normalizeTicker(ticker string) string { return strings.ToUpper(strings.TrimSpace(ticker)) }

func (s *MemoryStore) put(ticker string, bars []signal.Bar) error {
	ticker = normalizeTicker(ticker)
	if ticker == "" {
		return errors.New("empty ticker")
	}
	clean := make([]signal.Bar, len(bars))
	for i, b := range bars {
		b.Date = signal.Day(b.Date)
		if err := b.Validate(); err != nil {
			return &DataError{Ticker: ticker, Date: b.Date, Err: err}
		}
		clean[i] = b
	}
	sort.Slice(clean, func(i, j int) bool { return clean[i].Date.Before(clean[j].Date) })
	for i := 1; i < len(clean); i++ {
		if clean[i].Date.Equal(clean[i-1].Date) {
			return &DataError{Ticker: ticker, Date: clean[i].Date, Err: errors.New("duplicate session")}
		}
	}
	s.series[ticker] = clean
	return nil
}

func (s *MemoryStore) reindex() {
	s.tickers = s.tickers[:0]
	days := make(map[time.Time]struct{})
	for ticker, bars := range s.series {
		s.tickers = append(s.tickers, ticker)
		for _, b := range bars {
			days[b.Date] = struct{}{}
		}
	}
	sort.Strings(s.tickers)
	s.calendar = s.calendar[:0]
	for d := range days {
		s.calendar = append(s.calendar, d)
	}
	sort.Slice(s.calendar, func(i, j int) bool { return s.calendar[i].Before(s.calendar[j]) })
}

// Bars implements Store.
func (s *MemoryStore) Bars(ctx context.Context, ticker string, asOf time.Time) ([]signal.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticker = normalizeTicker(ticker)
	asOf = signal.Day(asOf)
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars, ok := s.series[ticker]
	if !ok {
		return nil, &DataError{Ticker: ticker, Date: asOf, Err: ErrNoHistory}
	}
	n := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(asOf) })
	if n == 0 {
		return nil, &DataError{Ticker: ticker, Date: asOf, Err: ErrNoHistory}
	}
	out := make([]signal.Bar, n)
	copy(out, bars[:n])
	return out, nil
}

// BarsAfter implements Store. An empty result is not an error.
func (s *MemoryStore) BarsAfter(ctx context.Context, ticker string, after time.Time) ([]signal.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticker = normalizeTicker(ticker)
	after = signal.Day(after)
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars, ok := s.series[ticker]
	if !ok {
		return nil, &DataError{Ticker: ticker, Date: after, Err: ErrNoHistory}
	}
	start := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(after) })
	out := make([]signal.Bar, len(bars)-start)
	copy(out, bars[start:])
	return out, nil
}

// Calendar implements Store.
func (s *MemoryStore) Calendar(ctx context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]time.Time, len(s.calendar))
	copy(out, s.calendar)
	return out, ctx.Err()
}

// Tickers implements Store.
func (s *MemoryStore) Tickers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out, ctx.Err()
}

// NextSession returns the first calendar date after d.
func NextSession(calendar []time.Time, d time.Time) (time.Time, bool) {
	i := sort.Search(len(calendar), func(i int) bool { return calendar[i].After(d) })
	if i == len(calendar) {
		return time.Time{}, false
	}
	return calendar[i], true
}
