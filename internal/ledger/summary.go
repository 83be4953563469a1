package ledger

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
)

// Bucket aggregates closed trades for one slice of the ledger.
type Bucket struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	TotalR  float64 `json:"total_r"`
	AvgR    float64 `json:"avg_r"`
	WinRate float64 `json:"win_rate"`
	PnL     float64 `json:"pnl"`
}

func (b *Bucket) add(r TradeResult) {
	b.Trades++
	if r.RMultiple > 0 {
		b.Wins++
	}
	b.TotalR += r.RMultiple
	b.PnL += r.PnL
}

func (b *Bucket) finish() {
	if b.Trades == 0 {
		return
	}
	b.AvgR = b.TotalR / float64(b.Trades)
	b.WinRate = float64(b.Wins) / float64(b.Trades)
}

// Summary is the run-level performance report.
type Summary struct {
	Bucket
	Losses         int                `json:"losses"`
	AvgWinR        float64            `json:"avg_win_r"`
	AvgLossR       float64            `json:"avg_loss_r"`
	Expectancy     float64            `json:"expectancy"`
	AvgHoldingDays float64            `json:"avg_holding_days"`
	Rejected       int                `json:"rejected"`
	Duplicates     int                `json:"duplicates"`
	Unselected     int                `json:"unselected"`
	ByStrategy     map[string]*Bucket `json:"by_strategy"`
	ByReason       map[string]*Bucket `json:"by_reason"`
	ByYear         map[int]*Bucket    `json:"by_year"`
}

// Summarize aggregates closed trades and counts the other outcomes.
func Summarize(results []TradeResult) Summary {
	s := Summary{
		ByStrategy: make(map[string]*Bucket),
		ByReason:   make(map[string]*Bucket),
		ByYear:     make(map[int]*Bucket),
	}
	var winR, lossR float64
	var days int
	for _, r := range results {
		switch r.Outcome {
		case OutcomeRejected:
			s.Rejected++
			continue
		case OutcomeDuplicate:
			s.Duplicates++
			continue
		case OutcomeUnselected:
			s.Unselected++
			continue
		}
		s.add(r)
		bucket(s.ByStrategy, r.Strategy).add(r)
		bucket(s.ByReason, string(r.ExitReason)).add(r)
		year, ok := s.ByYear[r.ExitDate.Year()]
		if !ok {
			year = &Bucket{}
			s.ByYear[r.ExitDate.Year()] = year
		}
		year.add(r)
		days += r.HoldingDays
		if r.RMultiple > 0 {
			winR += r.RMultiple
		} else {
			lossR += r.RMultiple
		}
	}
	s.finish()
	s.Losses = s.Trades - s.Wins
	if s.Wins > 0 {
		s.AvgWinR = winR / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossR = lossR / float64(s.Losses)
	}
	if s.Trades > 0 {
		s.AvgHoldingDays = float64(days) / float64(s.Trades)
		s.Expectancy = s.WinRate*s.AvgWinR - (1-s.WinRate)*math.Abs(s.AvgLossR)
	}
	for _, b := range s.ByStrategy {
		b.finish()
	}
	for _, b := range s.ByReason {
		b.finish()
	}
	for _, b := range s.ByYear {
		b.finish()
	}
	return s
}

func bucket(m map[string]*Bucket, k string) *Bucket {
	b, ok := m[k]
	if !ok {
		b = &Bucket{}
		m[k] = b
	}
	return b
}

// Render prints the summary as aligned text tables.
func (s Summary) Render(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "trades\t%d\n", s.Trades)
	fmt.Fprintf(w, "win rate\t%.1f%%\n", s.WinRate*100)
	fmt.Fprintf(w, "avg R\t%.2f\n", s.AvgR)
	fmt.Fprintf(w, "expectancy\t%.2f\n", s.Expectancy)
	fmt.Fprintf(w, "total pnl\t%.2f\n", s.PnL)
	fmt.Fprintf(w, "avg holding days\t%.1f\n", s.AvgHoldingDays)
	fmt.Fprintf(w, "rejected / duplicate / unselected\t%d / %d / %d\n", s.Rejected, s.Duplicates, s.Unselected)

	renderSection(w, "strategy", s.ByStrategy)
	renderSection(w, "exit reason", s.ByReason)
	years := make(map[string]*Bucket, len(s.ByYear))
	for y, b := range s.ByYear {
		years[fmt.Sprint(y)] = b
	}
	renderSection(w, "year", years)
	return w.Flush()
}

func renderSection(w io.Writer, title string, m map[string]*Bucket) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n%s\ttrades\twin rate\tavg R\tpnl\n", title)
	for _, k := range keys {
		b := m[k]
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f\t%.2f\n", k, b.Trades, b.WinRate*100, b.AvgR, b.PnL)
	}
}
