// Package ledger keeps the append-only record of every resolved candidate in a run.
package ledger

import (
	"sync"
	"time"

	"stockalert-go/internal/signal"
)

// Outcome classifies a ledger entry.
type Outcome string

const (
	OutcomeClosed     Outcome = "closed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeUnselected Outcome = "unselected"
)

// TradeResult is one immutable ledger entry. EntryDate and ExitDate are zero when the candidate
// never became a position.
type TradeResult struct {
	Ticker      string            `json:"ticker"`
	Strategy    string            `json:"strategy"`
	SignalDate  time.Time         `json:"signal_date"`
	EntryDate   time.Time         `json:"entry_date"`
	EntryPrice  float64           `json:"entry_price,omitempty"`
	ExitDate    time.Time         `json:"exit_date"`
	ExitPrice   float64           `json:"exit_price,omitempty"`
	ExitReason  signal.ExitReason `json:"exit_reason"`
	RMultiple   float64           `json:"r_multiple"`
	PnL         float64           `json:"pnl"`
	Shares      int               `json:"shares"`
	HoldingDays int               `json:"holding_days"`
	Outcome     Outcome           `json:"outcome"`
	Score       float64           `json:"score"`
	Detail      string            `json:"detail,omitempty"`
}

// Recorder receives each result as it is appended.
type Recorder interface {
	Record(TradeResult)
}

// Ledger stores results in append order.
type Ledger struct {
	mu      sync.Mutex
	results []TradeResult
	sinks   []Recorder
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int, sinks ...Recorder) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{results: make([]TradeResult, 0, capacity), sinks: sinks}
}

// Append adds a result and forwards it to every sink.
func (l *Ledger) Append(r TradeResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	for _, s := range l.sinks {
		s.Record(r)
	}
}

// Snapshot returns a copy of the recorded results.
func (l *Ledger) Snapshot() []TradeResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TradeResult, len(l.results))
	copy(out, l.results)
	return out
}

// Len reports the number of results.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

// Closed filters results to completed trades.
func Closed(results []TradeResult) []TradeResult {
	var out []TradeResult
	for _, r := range results {
		if r.Outcome == OutcomeClosed {
			out = append(out, r)
		}
	}
	return out
}
