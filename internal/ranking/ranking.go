// Package ranking scores candidates by expectancy and picks the ones a scan date can admit.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/config"
	"stockalert-go/internal/signal"
)

// OpenBook is the slice of the position tracker the ranker reads.
type OpenBook interface {
	IsOpen(ctx context.Context, ticker string, asOf time.Time) (bool, error)
	CountOpen(ctx context.Context, asOf time.Time) (int, error)
}

// Scored is a candidate with its ranking inputs attached.
type Scored struct {
	signal.Candidate
	Priority   int
	Quality    float64
	Expectancy float64
	Score      float64
}

// Selection partitions one scan date's candidates.
type Selection struct {
	Admitted    []Scored
	Unselected  []Scored
	SkippedOpen []Scored
	Deduped     []Scored
	BelowMin    []Scored
}

// Ranker applies score, floor, dedupe, sort and capacity in that order.
type Ranker struct {
	cfg        config.Ranking
	strategies config.StrategyTable
	log        zerolog.Logger
}

// NewRanker captures the ranking parameters and strategy table.
func NewRanker(cfg config.Ranking, strategies config.StrategyTable, log zerolog.Logger) *Ranker {
	return &Ranker{cfg: cfg, strategies: strategies, log: log.With().Str("component", "ranker").Logger()}
}

// Score computes quality x expectancy x scale for one candidate.
func (r *Ranker) Score(c signal.Candidate) (Scored, error) {
	params, ok := r.strategies.Lookup(c.Strategy)
	if !ok {
		return Scored{Candidate: c}, fmt.Errorf("score %s: unknown strategy %q", c.Ticker, c.Strategy)
	}
	s := Scored{
		Candidate:  c,
		Priority:   params.Priority,
		Quality:    quality(c.RawScore, params.ScoreLow, params.ScoreHigh),
		Expectancy: params.Expectancy(),
	}
	s.Score = s.Quality * s.Expectancy * r.cfg.ScoreScale
	return s, nil
}

func quality(raw, lo, hi float64) float64 {
	if hi <= lo {
		if raw < lo {
			return 0
		}
		return 1
	}
	q := (raw - lo) / (hi - lo)
	switch {
	case q < 0:
		return 0
	case q > 1:
		return 1
	}
	return q
}

// Rank selects up to min(MaxPerScan, maxOpen-CountOpen) candidates for asOf.
func (r *Ranker) Rank(ctx context.Context, asOf time.Time, candidates []signal.Candidate, book OpenBook, maxOpen int) (Selection, error) {
	var sel Selection

	var scored []Scored
	for _, c := range candidates {
		s, err := r.Score(c)
		if err != nil || s.Score < r.cfg.MinScore {
			sel.BelowMin = append(sel.BelowMin, s)
			continue
		}
		scored = append(scored, s)
	}

	best := make(map[string]int, len(scored))
	var unique []Scored
	for _, s := range scored {
		i, seen := best[s.Ticker]
		if !seen {
			best[s.Ticker] = len(unique)
			unique = append(unique, s)
			continue
		}
		if outranks(s, unique[i]) {
			sel.Deduped = append(sel.Deduped, unique[i])
			unique[i] = s
		} else {
			sel.Deduped = append(sel.Deduped, s)
		}
	}

	sort.SliceStable(unique, func(i, j int) bool {
		a, b := unique[i], unique[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Strategy < b.Strategy
	})

	open, err := book.CountOpen(ctx, asOf)
	if err != nil {
		return Selection{}, fmt.Errorf("count open positions: %w", err)
	}
	slots := maxOpen - open
	if r.cfg.MaxPerScan > 0 && r.cfg.MaxPerScan < slots {
		slots = r.cfg.MaxPerScan
	}

	for _, s := range unique {
		held, err := book.IsOpen(ctx, s.Ticker, asOf)
		if err != nil {
			return Selection{}, fmt.Errorf("check open %s: %w", s.Ticker, err)
		}
		switch {
		case held:
			sel.SkippedOpen = append(sel.SkippedOpen, s)
		case len(sel.Admitted) < slots:
			sel.Admitted = append(sel.Admitted, s)
		default:
			sel.Unselected = append(sel.Unselected, s)
		}
	}

	r.log.Debug().
		Str("date", asOf.Format(signal.DateLayout)).
		Int("admitted", len(sel.Admitted)).
		Int("unselected", len(sel.Unselected)).
		Int("skipped_open", len(sel.SkippedOpen)).
		Int("deduped", len(sel.Deduped)).
		Int("below_min", len(sel.BelowMin)).
		Msg("ranked candidates")
	return sel, nil
}

// outranks reports whether a should replace b for the same ticker.
func outranks(a, b Scored) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Strategy < b.Strategy
}
