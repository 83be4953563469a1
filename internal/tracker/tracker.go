// Package tracker records which tickers hold an open position on any session date.
package tracker

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

var (
	ErrDuplicatePosition = errors.New("ticker already has a position on that date")
	ErrNotFound          = errors.New("no open position")
	ErrStopLowered       = errors.New("stop may only be raised")
	ErrInvalidPosition   = errors.New("invalid position")
)

// Position is one committed trade. A zero ExitDate means the exit is not yet known.
type Position struct {
	Ticker      string
	Strategy    string
	EntryDate   time.Time
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	ExitDate    time.Time
}

// OpenOn reports whether the position is held on d: EntryDate <= d < ExitDate. A position that
// exits on its entry day is held on that day only.
func (p Position) OpenOn(d time.Time) bool {
	if d.Before(p.EntryDate) {
		return false
	}
	if p.ExitDate.IsZero() || d.Before(p.ExitDate) {
		return true
	}
	return p.ExitDate.Equal(p.EntryDate) && d.Equal(p.EntryDate)
}

// Closed reports whether an exit date has been assigned.
func (p Position) Closed() bool { return !p.ExitDate.IsZero() }

// overlaps treats both ranges as inclusive so an exit day cannot double as an entry day.
func (p Position) overlaps(o Position) bool {
	if !p.ExitDate.IsZero() && o.EntryDate.After(p.ExitDate) {
		return false
	}
	if !o.ExitDate.IsZero() && p.EntryDate.After(o.ExitDate) {
		return false
	}
	return true
}

func (p Position) validate() error {
	switch {
	case strings.TrimSpace(p.Ticker) == "":
		return fmt.Errorf("%w: empty ticker", ErrInvalidPosition)
	case p.EntryDate.IsZero():
		return fmt.Errorf("%w: %s has no entry date", ErrInvalidPosition, p.Ticker)
	case p.Closed() && p.ExitDate.Before(p.EntryDate):
		return fmt.Errorf("%w: %s exits before it enters", ErrInvalidPosition, p.Ticker)
	}
	return nil
}

func normalize(p Position) Position {
	p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
	p.EntryDate = signal.Day(p.EntryDate)
	if !p.ExitDate.IsZero() {
		p.ExitDate = signal.Day(p.ExitDate)
	}
	return p
}

// Tracker is the position book used by the engine and the live position tools.
type Tracker interface {
	IsOpen(ctx context.Context, ticker string, asOf time.Time) (bool, error)
	Register(ctx context.Context, p Position) error
	CountOpen(ctx context.Context, asOf time.Time) (int, error)
	Positions(ctx context.Context) ([]Position, error)
	RaiseStop(ctx context.Context, ticker string, asOf time.Time, stop float64) error
	Close(ctx context.Context, ticker string, exitDate time.Time) error
}

// book holds positions per ticker in entry order. It does no locking.
type book struct {
	byTicker map[string][]Position
}

func newBook() book { return book{byTicker: make(map[string][]Position)} }

func (b *book) isOpen(ticker string, asOf time.Time) bool {
	for _, p := range b.byTicker[ticker] {
		if p.OpenOn(asOf) {
			return true
		}
	}
	return false
}

func (b *book) countOpen(asOf time.Time) int {
	n := 0
	for _, positions := range b.byTicker {
		for _, p := range positions {
			if p.OpenOn(asOf) {
				n++
				break
			}
		}
	}
	return n
}

func (b *book) check(p Position) error {
	if err := p.validate(); err != nil {
		return err
	}
	for _, existing := range b.byTicker[p.Ticker] {
		if existing.overlaps(p) {
			return fmt.Errorf("%s on %s: %w", p.Ticker, p.EntryDate.Format(signal.DateLayout), ErrDuplicatePosition)
		}
	}
	return nil
}

func (b *book) insert(p Position) {
	list := append(b.byTicker[p.Ticker], p)
	sort.Slice(list, func(i, j int) bool { return list[i].EntryDate.Before(list[j].EntryDate) })
	b.byTicker[p.Ticker] = list
}

// replace swaps the position sharing p's ticker and entry date.
func (b *book) replace(p Position) {
	list := b.byTicker[p.Ticker]
	for i := range list {
		if list[i].EntryDate.Equal(p.EntryDate) {
			list[i] = p
			return
		}
	}
}

func (b *book) all() []Position {
	var out []Position
	for _, list := range b.byTicker {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

func (b *book) raisedStop(ticker string, asOf time.Time, stop float64) (Position, error) {
	for _, p := range b.byTicker[ticker] {
		if !p.OpenOn(asOf) {
			continue
		}
		if stop < p.StopPrice {
			return Position{}, fmt.Errorf("%s: %.4f below %.4f: %w", ticker, stop, p.StopPrice, ErrStopLowered)
		}
		p.StopPrice = stop
		return p, nil
	}
	return Position{}, fmt.Errorf("%s on %s: %w", ticker, asOf.Format(signal.DateLayout), ErrNotFound)
}

func (b *book) closed(ticker string, exitDate time.Time) (Position, error) {
	list := b.byTicker[ticker]
	for i := len(list) - 1; i >= 0; i-- {
		p := list[i]
		if p.Closed() {
			continue
		}
		if exitDate.Before(p.EntryDate) {
			return Position{}, fmt.Errorf("%w: %s exits before it enters", ErrInvalidPosition, ticker)
		}
		p.ExitDate = exitDate
		return p, nil
	}
	return Position{}, fmt.Errorf("%s: %w", ticker, ErrNotFound)
}

// Memory is the in-process tracker used by backtests.
type Memory struct {
	mu   sync.RWMutex
	book book
}

// NewMemory creates an empty tracker.
func NewMemory() *Memory {
	return &Memory{book: newBook()}
}

// IsOpen implements Tracker.
func (m *Memory) IsOpen(_ context.Context, ticker string, asOf time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.isOpen(strings.ToUpper(ticker), signal.Day(asOf)), nil
}

// Register implements Tracker.
func (m *Memory) Register(_ context.Context, p Position) error {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.book.check(p); err != nil {
		return err
	}
	m.book.insert(p)
	return nil
}

// CountOpen implements Tracker.
func (m *Memory) CountOpen(_ context.Context, asOf time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.countOpen(signal.Day(asOf)), nil
}

// Positions implements Tracker.
func (m *Memory) Positions(context.Context) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.all(), nil
}

// RaiseStop implements Tracker.
func (m *Memory) RaiseStop(_ context.Context, ticker string, asOf time.Time, stop float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.book.raisedStop(strings.ToUpper(ticker), signal.Day(asOf), stop)
	if err != nil {
		return err
	}
	m.book.replace(p)
	return nil
}

// Close implements Tracker.
func (m *Memory) Close(_ context.Context, ticker string, exitDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.book.closed(strings.ToUpper(ticker), signal.Day(exitDate))
	if err != nil {
		return err
	}
	m.book.replace(p)
	return nil
}
