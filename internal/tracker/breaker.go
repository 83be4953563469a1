package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breaker trips after consecutive store failures and fails fast with gobreaker.ErrOpenState until
// the cool-down elapses.
type Breaker struct {
	store Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps store. failures is the consecutive failure count that opens the circuit.
func NewBreaker(name string, store Store, failures uint32, coolDown time.Duration, log zerolog.Logger) *Breaker {
	if failures == 0 {
		failures = 3
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     coolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("store", name).Str("from", from.String()).Str("to", to.String()).Msg("store circuit changed state")
		},
	}
	return &Breaker{store: store, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Load implements Store.
func (b *Breaker) Load(ctx context.Context) ([]Position, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.store.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Position), nil
}

// Upsert implements Store.
func (b *Breaker) Upsert(ctx context.Context, p Position) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.store.Upsert(ctx, p)
	})
	return err
}

// Close implements Store.
func (b *Breaker) Close() error { return b.store.Close() }

// State reports the circuit state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
