package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/signal"
)

// Store persists positions keyed by ticker and entry date.
type Store interface {
	Load(ctx context.Context) ([]Position, error)
	Upsert(ctx context.Context, p Position) error
	Close() error
}

// Persistent is a write-through tracker: every mutation reaches the store before the in-memory book.
type Persistent struct {
	mu    sync.RWMutex
	book  book
	store Store
	log   zerolog.Logger
}

// NewPersistent loads the existing book from store.
func NewPersistent(ctx context.Context, store Store, log zerolog.Logger) (*Persistent, error) {
	positions, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	p := &Persistent{book: newBook(), store: store, log: log.With().Str("component", "tracker").Logger()}
	for _, pos := range positions {
		p.book.insert(normalize(pos))
	}
	p.log.Info().Int("positions", len(positions)).Msg("position book loaded")
	return p, nil
}

// IsOpen implements Tracker.
func (p *Persistent) IsOpen(_ context.Context, ticker string, asOf time.Time) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.book.isOpen(strings.ToUpper(ticker), signal.Day(asOf)), nil
}

// Register implements Tracker.
func (p *Persistent) Register(ctx context.Context, pos Position) error {
	pos = normalize(pos)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.book.check(pos); err != nil {
		return err
	}
	if err := p.store.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("persist position: %w", err)
	}
	p.book.insert(pos)
	return nil
}

// CountOpen implements Tracker.
func (p *Persistent) CountOpen(_ context.Context, asOf time.Time) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.book.countOpen(signal.Day(asOf)), nil
}

// Positions implements Tracker.
func (p *Persistent) Positions(context.Context) ([]Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.book.all(), nil
}

// RaiseStop implements Tracker.
func (p *Persistent) RaiseStop(ctx context.Context, ticker string, asOf time.Time, stop float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, err := p.book.raisedStop(strings.ToUpper(ticker), signal.Day(asOf), stop)
	if err != nil {
		return err
	}
	return p.write(ctx, pos)
}

// Close implements Tracker.
func (p *Persistent) Close(ctx context.Context, ticker string, exitDate time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, err := p.book.closed(strings.ToUpper(ticker), signal.Day(exitDate))
	if err != nil {
		return err
	}
	return p.write(ctx, pos)
}

func (p *Persistent) write(ctx context.Context, pos Position) error {
	if err := p.store.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("persist position: %w", err)
	}
	p.book.replace(pos)
	return nil
}

// Shutdown releases the underlying store.
func (p *Persistent) Shutdown() error { return p.store.Close() }
