package tracker

import (
	"encoding/json"
	"fmt"

	"stockalert-go/internal/signal"
)

// record is the persisted layout shared by the file and Redis stores.
type record struct {
	Ticker      string  `json:"ticker"`
	EntryDate   string  `json:"entry_date"`
	EntryPrice  float64 `json:"entry_price"`
	Strategy    string  `json:"strategy"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
	ExitDate    string  `json:"exit_date,omitempty"`
}

func toRecord(p Position) record {
	r := record{
		Ticker:      p.Ticker,
		EntryDate:   p.EntryDate.Format(signal.DateLayout),
		EntryPrice:  p.EntryPrice,
		Strategy:    p.Strategy,
		StopPrice:   p.StopPrice,
		TargetPrice: p.TargetPrice,
	}
	if p.Closed() {
		r.ExitDate = p.ExitDate.Format(signal.DateLayout)
	}
	return r
}

func (r record) position() (Position, error) {
	entry, err := signal.ParseDay(r.EntryDate)
	if err != nil {
		return Position{}, fmt.Errorf("%s entry: %w", r.Ticker, err)
	}
	p := Position{
		Ticker:      r.Ticker,
		Strategy:    r.Strategy,
		EntryDate:   entry,
		EntryPrice:  r.EntryPrice,
		StopPrice:   r.StopPrice,
		TargetPrice: r.TargetPrice,
	}
	if r.ExitDate != "" {
		if p.ExitDate, err = signal.ParseDay(r.ExitDate); err != nil {
			return Position{}, fmt.Errorf("%s exit: %w", r.Ticker, err)
		}
	}
	return p, nil
}

// key identifies a position within a store.
func key(p Position) string {
	return p.Ticker + "|" + p.EntryDate.Format(signal.DateLayout)
}

func encodeRecord(p Position) (string, error) {
	data, err := json.Marshal(toRecord(p))
	if err != nil {
		return "", fmt.Errorf("encode position: %w", err)
	}
	return string(data), nil
}

func decodeRecord(data string) (Position, error) {
	var r record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return Position{}, fmt.Errorf("decode position: %w", err)
	}
	return r.position()
}
