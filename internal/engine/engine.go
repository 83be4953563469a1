// Package engine drives the walk-forward simulation one scan date at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stockalert-go/internal/config"
	"stockalert-go/internal/ledger"
	"stockalert-go/internal/lifecycle"
	"stockalert-go/internal/market"
	"stockalert-go/internal/metrics"
	"stockalert-go/internal/paper"
	"stockalert-go/internal/ranking"
	"stockalert-go/internal/risk"
	"stockalert-go/internal/signal"
	"stockalert-go/internal/strategy"
	"stockalert-go/internal/tracker"
)

// Report is the outcome of one Run.
type Report struct {
	RunID     string
	ScanDates []time.Time
	Skipped   []time.Time
	Results   []ledger.TradeResult
	Account   paper.Snapshot
}

// Engine wires the provider, store, ranker, simulator, tracker and ledger for one run.
type Engine struct {
	cfg      config.Config
	store    market.Store
	provider strategy.Provider
	tracker  tracker.Tracker
	ledger   *ledger.Ledger
	account  *paper.Account
	calc     risk.Calculator
	ranker   *ranking.Ranker
	sim      *lifecycle.Simulator
	runID    string
	workers  int
	start    time.Time
	end      time.Time
	log      zerolog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithTracker replaces the default in-memory tracker.
func WithTracker(t tracker.Tracker) Option { return func(e *Engine) { e.tracker = t } }

// WithLedger replaces the default ledger, e.g. to attach recorders.
func WithLedger(l *ledger.Ledger) Option { return func(e *Engine) { e.ledger = l } }

// WithRunID fixes the run identifier.
func WithRunID(id string) Option { return func(e *Engine) { e.runID = id } }

// New validates cfg and builds an engine.
func New(cfg config.Config, store market.Store, provider strategy.Provider, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	sim, err := lifecycle.NewSimulator(cfg, log)
	if err != nil {
		return nil, err
	}
	table := cfg.StrategyTable()
	e := &Engine{
		cfg:      cfg,
		store:    store,
		provider: provider,
		tracker:  tracker.NewMemory(),
		ledger:   ledger.NewLedger(0),
		account:  paper.NewAccount(cfg.Paper.StartingCapital, cfg.Paper.RiskPerTradePct),
		calc:     risk.NewCalculator(table),
		ranker:   ranking.NewRanker(cfg.Ranking, table, log),
		sim:      sim,
		workers:  cfg.Backtest.Workers,
		log:      log.With().Str("component", "engine").Logger(),
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if cfg.Backtest.Start != "" {
		if e.start, err = signal.ParseDay(cfg.Backtest.Start); err != nil {
			return nil, fmt.Errorf("backtest.start: %w", err)
		}
	}
	if cfg.Backtest.End != "" {
		if e.end, err = signal.ParseDay(cfg.Backtest.End); err != nil {
			return nil, fmt.Errorf("backtest.end: %w", err)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	return e, nil
}

// RunID identifies this engine's run.
func (e *Engine) RunID() string { return e.runID }

// Run walks every scheduled scan date in order. Provider and store failures abort the run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	calendar, err := e.store.Calendar(ctx)
	if err != nil {
		return nil, dataError("", time.Time{}, err)
	}
	dates, err := ScanDates(calendar, e.start, e.end, e.cfg.Backtest.Schedule)
	if err != nil {
		return nil, err
	}
	if err := e.checkRegimeIndex(ctx); err != nil {
		return nil, err
	}
	report := &Report{RunID: e.runID, ScanDates: dates}
	e.log.Info().Str("run_id", e.runID).Int("scan_dates", len(dates)).Int("workers", e.workers).Msg("backtest started")

	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, skipped, err := e.scan(ctx, d, calendar)
		if err != nil {
			return nil, err
		}
		if skipped {
			report.Skipped = append(report.Skipped, d)
		}
		report.Results = append(report.Results, results...)
	}
	report.Account = e.account.Snapshot()
	e.log.Info().
		Str("run_id", e.runID).
		Int("results", len(report.Results)).
		Int("skipped", len(report.Skipped)).
		Float64("pnl", report.Account.RealizedPnL).
		Msg("backtest finished")
	return report, nil
}

type job struct {
	scored  ranking.Scored
	history []signal.Bar
	forward []signal.Bar
	detail  string
}

func (e *Engine) scan(ctx context.Context, d time.Time, calendar []time.Time) ([]ledger.TradeResult, bool, error) {
	log := e.log.With().Str("date", d.Format(signal.DateLayout)).Logger()

	open, err := e.tracker.CountOpen(ctx, d)
	if err != nil {
		return nil, false, fmt.Errorf("count open positions: %w", err)
	}
	metrics.OpenPositions.Set(float64(open))
	if open >= e.cfg.Backtest.MaxOpenPositions {
		metrics.ScanDatesTotal.WithLabelValues("skipped_capacity").Inc()
		log.Debug().Int("open", open).Msg("portfolio full, scan skipped")
		return nil, true, nil
	}
	metrics.ScanDatesTotal.WithLabelValues("scanned").Inc()

	signals, err := e.provider.Signals(ctx, d)
	if err != nil {
		return nil, false, fmt.Errorf("signals as of %s: %w", d.Format(signal.DateLayout), err)
	}
	signals = e.current(signals, d, log)

	bearish, err := e.bearish(ctx, d)
	if err != nil {
		return nil, false, err
	}
	if bearish {
		log.Debug().Str("index", e.cfg.Filters.RegimeIndex).Msg("bearish regime, gated strategies paused")
	}

	candidates, histories, err := e.candidates(ctx, d, signals, bearish, log)
	if err != nil {
		return nil, false, err
	}

	sel, err := e.ranker.Rank(ctx, d, candidates, e.tracker, e.cfg.Backtest.MaxOpenPositions)
	if err != nil {
		return nil, false, err
	}
	metrics.CandidatesDropped.WithLabelValues("below_min").Add(float64(len(sel.BelowMin)))
	metrics.CandidatesDropped.WithLabelValues("deduped").Add(float64(len(sel.Deduped)))
	metrics.CandidatesDropped.WithLabelValues("already_open").Add(float64(len(sel.SkippedOpen)))

	jobs, err := e.jobs(ctx, d, calendar, sel.Admitted, histories)
	if err != nil {
		return nil, false, err
	}
	outcomes, err := e.simulate(ctx, jobs)
	if err != nil {
		return nil, false, err
	}

	results := make([]ledger.TradeResult, 0, len(jobs)+len(sel.Unselected))
	for i, j := range jobs {
		res, err := e.resolve(ctx, d, j, outcomes[i])
		if err != nil {
			return nil, false, err
		}
		metrics.ExitsTotal.WithLabelValues(res.Strategy, string(res.ExitReason)).Inc()
		e.ledger.Append(res)
		results = append(results, res)
	}
	for _, s := range sel.Unselected {
		res := ledger.TradeResult{
			Ticker:     s.Ticker,
			Strategy:   s.Strategy,
			SignalDate: d,
			ExitReason: signal.Unselected,
			Outcome:    ledger.OutcomeUnselected,
			Score:      s.Score,
			Detail:     "portfolio capacity reached",
		}
		e.ledger.Append(res)
		results = append(results, res)
	}
	return results, false, nil
}

// current drops look-ahead signals and orders the rest by ticker and strategy.
func (e *Engine) current(signals []signal.Signal, d time.Time, log zerolog.Logger) []signal.Signal {
	out := signals[:0:0]
	for _, s := range signals {
		if signal.Day(s.AsOf).After(d) {
			metrics.CandidatesDropped.WithLabelValues("lookahead").Inc()
			log.Warn().Str("ticker", s.Ticker).Time("as_of", s.AsOf).Msg("signal dated after scan date discarded")
			continue
		}
		metrics.SignalsTotal.WithLabelValues(s.Strategy).Inc()
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// candidates applies the regime and liquidity gates and prices the surviving signals.
func (e *Engine) candidates(ctx context.Context, d time.Time, signals []signal.Signal, bearish bool, log zerolog.Logger) ([]signal.Candidate, map[string][]signal.Bar, error) {
	histories := make(map[string][]signal.Bar)
	var out []signal.Candidate
	for _, s := range signals {
		if bearish && e.gated(s.Strategy) {
			metrics.CandidatesDropped.WithLabelValues(dropReason(ErrBearishRegime)).Inc()
			log.Debug().Str("ticker", s.Ticker).Str("strategy", s.Strategy).Msg("signal dropped in bearish regime")
			continue
		}
		history, ok := histories[s.Ticker]
		if !ok {
			var err error
			if history, err = e.store.Bars(ctx, s.Ticker, d); err != nil {
				return nil, nil, dataError(s.Ticker, d, err)
			}
			histories[s.Ticker] = history
		}
		if err := e.liquid(s, history); err != nil {
			metrics.CandidatesDropped.WithLabelValues(dropReason(err)).Inc()
			log.Debug().Err(err).Str("ticker", s.Ticker).Str("strategy", s.Strategy).Msg("signal dropped")
			continue
		}
		c, err := e.calc.Candidate(s, history)
		if err != nil {
			metrics.CandidatesDropped.WithLabelValues(dropReason(err)).Inc()
			log.Debug().Err(err).Str("ticker", s.Ticker).Str("strategy", s.Strategy).Msg("signal dropped")
			continue
		}
		out = append(out, c)
	}
	return out, histories, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, risk.ErrDegenerateVolatility):
		return "degenerate_volatility"
	case errors.Is(err, risk.ErrUnknownStrategy):
		return "unknown_strategy"
	case errors.Is(err, ErrIlliquid):
		return "illiquid"
	case errors.Is(err, ErrBearishRegime):
		return "bearish_regime"
	}
	return "risk"
}

// jobs fetches forward bars for each admitted candidate. A first forward bar that is not the
// next calendar session leaves the job without forward data and a rejection detail.
func (e *Engine) jobs(ctx context.Context, d time.Time, calendar []time.Time, admitted []ranking.Scored, histories map[string][]signal.Bar) ([]job, error) {
	next, hasNext := market.NextSession(calendar, d)
	jobs := make([]job, len(admitted))
	for i, s := range admitted {
		metrics.AdmissionsTotal.WithLabelValues(s.Strategy).Inc()
		forward, err := e.store.BarsAfter(ctx, s.Ticker, d)
		if err != nil {
			return nil, dataError(s.Ticker, d, err)
		}
		j := job{scored: s, history: histories[s.Ticker], forward: forward}
		if len(forward) > 0 && (!hasNext || !forward[0].Date.Equal(next)) {
			j.forward = nil
			j.detail = fmt.Sprintf("no bar on next session, first forward bar %s", forward[0].Date.Format(signal.DateLayout))
		}
		jobs[i] = j
	}
	return jobs, nil
}

func (e *Engine) simulate(ctx context.Context, jobs []job) ([]lifecycle.Outcome, error) {
	outcomes := make([]lifecycle.Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.sim.Run(jobs[i].scored.Candidate, jobs[i].history, jobs[i].forward)
			if jobs[i].detail != "" {
				outcomes[i].Detail = jobs[i].detail
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Engine) resolve(ctx context.Context, d time.Time, j job, out lifecycle.Outcome) (ledger.TradeResult, error) {
	s := j.scored
	res := ledger.TradeResult{
		Ticker:     s.Ticker,
		Strategy:   s.Strategy,
		SignalDate: d,
		Score:      s.Score,
		ExitReason: out.Reason,
		Detail:     out.Detail,
	}
	if !out.Confirmed() {
		res.Outcome = ledger.OutcomeRejected
		return res, nil
	}
	res.EntryDate = out.EntryDate
	res.EntryPrice = out.EntryPrice

	pos := tracker.Position{
		Ticker:      s.Ticker,
		Strategy:    s.Strategy,
		EntryDate:   out.EntryDate,
		EntryPrice:  out.EntryPrice,
		StopPrice:   out.FinalStop,
		TargetPrice: out.Target,
		ExitDate:    out.ExitDate,
	}
	err := e.tracker.Register(ctx, pos)
	if errors.Is(err, tracker.ErrDuplicatePosition) {
		res.Outcome = ledger.OutcomeDuplicate
		res.ExitReason = signal.DuplicatePosition
		res.Detail = err.Error()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("register position: %w", err)
	}

	shares := e.account.Shares(out.EntryPrice - out.InitialStop)
	pnl, err := e.account.Book(s.Ticker, shares, out.EntryPrice, out.ExitPrice)
	if err != nil {
		return res, fmt.Errorf("book trade: %w", err)
	}
	res.Outcome = ledger.OutcomeClosed
	res.ExitDate = out.ExitDate
	res.ExitPrice = out.ExitPrice
	res.RMultiple = out.RMultiple
	res.HoldingDays = out.HoldingDays
	res.Shares = shares
	res.PnL = pnl
	return res, nil
}

func dataError(ticker string, d time.Time, err error) error {
	var de *market.DataError
	if errors.As(err, &de) {
		return err
	}
	return &market.DataError{Ticker: ticker, Date: d, Err: err}
}
