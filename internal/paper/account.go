// Package paper sizes simulated trades and accumulates their realized profit and loss.
package paper

import (
	"errors"
	"sync"
)

// Account sizes positions with fixed-fractional risk and books realized PnL.
type Account struct {
	mu              sync.Mutex
	startingCapital float64
	riskPct         float64
	realizedPnL     float64
	trades          int
	byTicker        map[string]float64
}

// Snapshot is a copy of the account state.
type Snapshot struct {
	StartingCapital float64            `json:"starting_capital"`
	RealizedPnL     float64            `json:"realized_pnl"`
	Equity          float64            `json:"equity"`
	Trades          int                `json:"trades"`
	ByTicker        map[string]float64 `json:"by_ticker"`
}

// NewAccount constructs an account risking riskPct percent of startingCapital per trade.
func NewAccount(startingCapital, riskPct float64) *Account {
	return &Account{
		startingCapital: startingCapital,
		riskPct:         riskPct,
		byTicker:        make(map[string]float64),
	}
}

// StartingCapital returns the bankroll sizing is computed from.
func (a *Account) StartingCapital() float64 { return a.startingCapital }

// Shares returns floor(capital x risk% / riskPerShare), never less than one.
func (a *Account) Shares(riskPerShare float64) int {
	if riskPerShare <= 0 {
		return 1
	}
	n := int(a.startingCapital * a.riskPct / 100 / riskPerShare)
	if n < 1 {
		return 1
	}
	return n
}

// Book records a closed trade and returns its PnL.
func (a *Account) Book(ticker string, shares int, entry, exit float64) (float64, error) {
	if shares <= 0 {
		return 0, errors.New("quantity must be positive")
	}
	if entry <= 0 || exit <= 0 {
		return 0, errors.New("price must be positive")
	}
	pnl := float64(shares) * (exit - entry)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.realizedPnL += pnl
	a.trades++
	a.byTicker[ticker] += pnl
	return pnl, nil
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

// Snapshot returns a copy of balances.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	byTicker := make(map[string]float64, len(a.byTicker))
	for k, v := range a.byTicker {
		byTicker[k] = v
	}
	return Snapshot{
		StartingCapital: a.startingCapital,
		RealizedPnL:     a.realizedPnL,
		Equity:          a.startingCapital + a.realizedPnL,
		Trades:          a.trades,
		ByTicker:        byTicker,
	}
}
