// Package signal standardizes payloads shared between the data, strategy, and simulation layers.
package signal

import (
	"fmt"
	"time"
)

// PayloadTrendRef is the payload key holding the trend reference a scanner used to fire.
const PayloadTrendRef = "trend_ref"

// Bar models one daily OHLCV observation.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate reports malformed price data.
func (b Bar) Validate() error {
	switch {
	case b.Date.IsZero():
		return fmt.Errorf("bar has no date")
	case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
		return fmt.Errorf("bar %s has non-positive price", b.Date.Format(DateLayout))
	case b.High < b.Low:
		return fmt.Errorf("bar %s has high below low", b.Date.Format(DateLayout))
	case b.Volume < 0:
		return fmt.Errorf("bar %s has negative volume", b.Date.Format(DateLayout))
	}
	return nil
}

// Signal expresses a long setup produced by a strategy as of a given session.
type Signal struct {
	Ticker   string
	Strategy string
	AsOf     time.Time
	RawScore float64
	Payload  map[string]float64
}

// TrendRef returns the trend reference carried in the payload, if any.
func (s Signal) TrendRef() (float64, bool) {
	if s.Payload == nil {
		return 0, false
	}
	v, ok := s.Payload[PayloadTrendRef]
	return v, ok
}

// Candidate is a signal priced for risk. It is computed once and never mutated.
type Candidate struct {
	Signal
	EntryPrice   float64 // signal-day close
	StopPrice    float64
	TargetPrice  float64
	RiskPerShare float64
	ATR          float64
}

// ExitReason labels how a candidate was resolved.
type ExitReason string

const (
	CatastrophicLoss     ExitReason = "CatastrophicLoss"
	StopLoss             ExitReason = "StopLoss"
	Target               ExitReason = "Target"
	MaxDays              ExitReason = "MaxDays"
	EndOfData            ExitReason = "EndOfData"
	ConfirmationRejected ExitReason = "ConfirmationRejected"
	DuplicatePosition    ExitReason = "DuplicatePosition"
	Unselected           ExitReason = "Unselected"
)

// DateLayout is the canonical session date format.
const DateLayout = "2006-01-02"

// Day truncates t to a UTC session date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD session date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
