// Package lifecycle resolves a candidate into a confirmed trade and walks it forward to an exit.
package lifecycle

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/config"
	"stockalert-go/internal/indicators"
	"stockalert-go/internal/signal"
)

// State of a candidate trade.
type State int

const (
	PendingConfirmation State = iota
	Open
	Closed
	Rejected
)

func (s State) String() string {
	switch s {
	case PendingConfirmation:
		return "pending"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Position is the open trade handed to exit rules.
type Position struct {
	Ticker      string
	Strategy    string
	EntryDate   time.Time
	EntryPrice  float64
	InitialStop float64
	Stop        float64
	Target      float64
	HighWater   float64
	HoldingDays int
}

// Risk is the initial per-share risk.
func (p Position) Risk() float64 { return p.EntryPrice - p.InitialStop }

// StopChange records one ratchet step.
type StopChange struct {
	Date time.Time
	Stop float64
}

// Outcome is the resolved state of one candidate.
type Outcome struct {
	State       State
	Reason      signal.ExitReason
	Detail      string
	EntryDate   time.Time
	EntryPrice  float64
	ExitDate    time.Time
	ExitPrice   float64
	InitialStop float64
	FinalStop   float64
	Target      float64
	HoldingDays int
	RMultiple   float64
	StopHistory []StopChange
}

// Confirmed reports whether the candidate ever became a position.
func (o Outcome) Confirmed() bool { return o.State == Open || o.State == Closed }

// Simulator runs the confirmation and exit state machine. It holds no per-trade state and is safe for concurrent use.
type Simulator struct {
	confirm    config.Confirmation
	exits      config.Exits
	trail      []config.TrailStep
	strategies config.StrategyTable
	rules      Rules
	log        zerolog.Logger
}

// NewSimulator validates the exit rule table and captures the trading parameters.
func NewSimulator(cfg config.Config, log zerolog.Logger) (*Simulator, error) {
	table := cfg.StrategyTable()
	rules, err := BuildRules(table)
	if err != nil {
		return nil, fmt.Errorf("build exit rules: %w", err)
	}
	trail := append([]config.TrailStep(nil), cfg.Exits.Trail...)
	sort.Slice(trail, func(i, j int) bool { return trail[i].TriggerR < trail[j].TriggerR })
	return &Simulator{
		confirm:    cfg.Confirmation,
		exits:      cfg.Exits,
		trail:      trail,
		strategies: table,
		rules:      rules,
		log:        log.With().Str("component", "lifecycle").Logger(),
	}, nil
}

// Run confirms c on the first forward bar and evaluates exits on the bars after it.
// history ends on the signal date; forward starts strictly after it.
func (s *Simulator) Run(c signal.Candidate, history, forward []signal.Bar) Outcome {
	out := Outcome{
		State:       PendingConfirmation,
		InitialStop: c.StopPrice,
		FinalStop:   c.StopPrice,
		Target:      c.TargetPrice,
	}
	if len(forward) == 0 {
		return s.reject(c, out, "no confirmation bar")
	}
	if reason := s.confirmation(c, history, forward[0]); reason != "" {
		return s.reject(c, out, reason)
	}

	entry := forward[0]
	pos := Position{
		Ticker:      c.Ticker,
		Strategy:    c.Strategy,
		EntryDate:   entry.Date,
		EntryPrice:  entry.Open,
		InitialStop: c.StopPrice,
		Stop:        c.StopPrice,
		Target:      c.TargetPrice,
		HighWater:   entry.Open,
	}
	out.State = Open
	out.EntryDate = pos.EntryDate
	out.EntryPrice = pos.EntryPrice

	maxDays := s.exits.MaxHoldingDays
	if params, ok := s.strategies.Lookup(c.Strategy); ok && params.MaxHoldingDays > 0 {
		maxDays = params.MaxHoldingDays
	}
	rule := s.rules[c.Strategy]

	series := indicators.NewSeries(joinBars(history, forward))
	offset := len(history)
	risk := pos.Risk()

	for i := 1; i < len(forward); i++ {
		bar := forward[i]
		pos.HoldingDays = i
		pos.HighWater = math.Max(pos.HighWater, bar.High)

		if i < s.exits.MinHoldingDays {
			if (pos.EntryPrice-bar.Low)/risk >= s.exits.CatastrophicR {
				return s.close(out, pos, bar.Date, pos.Stop, signal.CatastrophicLoss)
			}
			continue
		}
		if bar.Low <= pos.Stop {
			return s.close(out, pos, bar.Date, pos.Stop, signal.StopLoss)
		}
		if bar.High >= pos.Target {
			return s.close(out, pos, bar.Date, pos.Target, signal.Target)
		}
		if rule != nil {
			if reason, ok := rule.EvaluateExit(series.At(offset+i), pos); ok {
				return s.close(out, pos, bar.Date, bar.Close, reason)
			}
		}
		if stop, ok := s.ratchet(pos); ok {
			pos.Stop = stop
			out.StopHistory = append(out.StopHistory, StopChange{Date: bar.Date, Stop: stop})
		}
		if i >= maxDays {
			return s.close(out, pos, bar.Date, bar.Close, signal.MaxDays)
		}
	}

	last := forward[len(forward)-1]
	return s.close(out, pos, last.Date, last.Close, signal.EndOfData)
}

func (s *Simulator) confirmation(c signal.Candidate, history []signal.Bar, bar signal.Bar) string {
	gap := math.Abs(bar.Open-c.EntryPrice) / c.EntryPrice * 100
	if gap > s.confirm.MaxGapPct {
		return fmt.Sprintf("gap %.2f%% exceeds %.2f%%", gap, s.confirm.MaxGapPct)
	}
	if ref, ok := c.TrendRef(); ok && bar.Close <= ref {
		return fmt.Sprintf("close %.2f not above trend reference %.2f", bar.Close, ref)
	}
	if bar.Close < s.confirm.BearishCloseRatio*bar.Open {
		return "bearish confirmation bar"
	}
	if s.confirm.VolumeLookback > 0 && len(history) > 0 {
		n := min(s.confirm.VolumeLookback, len(history))
		avg := indicators.Mean(indicators.Volumes(history), n)
		if avg > 0 && bar.Volume < s.confirm.MinVolumeRatio*avg {
			return fmt.Sprintf("volume %.0f below %.2fx average %.0f", bar.Volume, s.confirm.MinVolumeRatio, avg)
		}
	}
	if bar.Open <= c.StopPrice {
		return "entry at or below stop"
	}
	return ""
}

// ratchet returns the locked stop for the highest trail step reached, if it improves on the current stop.
func (s *Simulator) ratchet(pos Position) (float64, bool) {
	gain := pos.HighWater - pos.EntryPrice
	gainR := gain / pos.Risk()
	best := -1
	for i, step := range s.trail {
		if step.TriggerR <= gainR {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	stop := pos.EntryPrice + s.trail[best].LockFraction*gain
	if stop <= pos.Stop {
		return 0, false
	}
	return stop, true
}

func (s *Simulator) reject(c signal.Candidate, out Outcome, detail string) Outcome {
	out.State = Rejected
	out.Reason = signal.ConfirmationRejected
	out.Detail = detail
	s.log.Debug().Str("ticker", c.Ticker).Str("strategy", c.Strategy).Str("detail", detail).Msg("confirmation rejected")
	return out
}

func (s *Simulator) close(out Outcome, pos Position, date time.Time, price float64, reason signal.ExitReason) Outcome {
	out.State = Closed
	out.Reason = reason
	out.ExitDate = date
	out.ExitPrice = price
	out.FinalStop = pos.Stop
	out.HoldingDays = pos.HoldingDays
	out.RMultiple = (price - pos.EntryPrice) / pos.Risk()
	s.log.Debug().
		Str("ticker", pos.Ticker).
		Str("strategy", pos.Strategy).
		Str("reason", string(reason)).
		Float64("r", out.RMultiple).
		Int("days", out.HoldingDays).
		Msg("position closed")
	return out
}

func joinBars(history, forward []signal.Bar) []signal.Bar {
	all := make([]signal.Bar, 0, len(history)+len(forward))
	all = append(all, history...)
	return append(all, forward...)
}
