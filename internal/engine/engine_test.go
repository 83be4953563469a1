package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/config"
	"stockalert-go/internal/ledger"
	"stockalert-go/internal/market"
	"stockalert-go/internal/signal"
	"stockalert-go/internal/strategy"
	"stockalert-go/internal/tracker"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return day0.AddDate(0, 0, i) }

func flatBars(n int) []signal.Bar {
	bars := make([]signal.Bar, n)
	for i := range bars {
		bars[i] = signal.Bar{Date: day(i), Open: 100, High: 102.5, Low: 97.5, Close: 100, Volume: 1000}
	}
	return bars
}

func testConfig(start, end int) config.Config {
	cfg := *config.Default()
	cfg.Strategies = []config.Strategy{{
		Name: "Test", Priority: 1, StopATRMult: 2, RewardMult: 2,
		ScoreLow: 0, ScoreHigh: 10, WinRate: 0.5, AvgWinR: 2, AvgLossR: -1,
	}}
	cfg.Exits.MaxHoldingDays = 5
	cfg.Ranking.MaxPerScan = 0
	cfg.Backtest.Workers = 4
	cfg.Backtest.Start = day(start).Format(signal.DateLayout)
	if end > 0 {
		cfg.Backtest.End = day(end).Format(signal.DateLayout)
	}
	return cfg
}

func storeFor(t *testing.T, tickers []string, n int) *market.MemoryStore {
	t.Helper()
	series := make(map[string][]signal.Bar, len(tickers))
	for _, tk := range tickers {
		series[tk] = flatBars(n)
	}
	store, err := market.NewMemoryStore(series)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return store
}

func dailySignals(tickers []string, from, to int) strategy.Static {
	var out strategy.Static
	for d := from; d <= to; d++ {
		for _, tk := range tickers {
			out = append(out, signal.Signal{Ticker: tk, Strategy: "Test", AsOf: day(d), RawScore: 5})
		}
	}
	return out
}

func newEngine(t *testing.T, cfg config.Config, store market.Store, provider strategy.Provider, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, store, provider, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestCapacityNeverExceeded(t *testing.T) {
	tickers := []string{"A", "B", "C", "D", "E"}
	cfg := testConfig(20, 50)
	cfg.Backtest.MaxOpenPositions = 2
	book := tracker.NewMemory()
	e := newEngine(t, cfg, storeFor(t, tickers, 60), dailySignals(tickers, 20, 50), WithTracker(book))

	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Skipped) == 0 {
		t.Fatalf("expected capacity-skipped scan dates")
	}
	positions, _ := book.Positions(context.Background())
	if len(positions) == 0 {
		t.Fatalf("expected trades")
	}
	for i := 0; i < 60; i++ {
		n, _ := book.CountOpen(context.Background(), day(i))
		if n > 2 {
			t.Fatalf("day %d: %d positions open", i, n)
		}
	}
	for i := 1; i < len(positions); i++ {
		a, b := positions[i-1], positions[i]
		if a.Ticker == b.Ticker && !b.EntryDate.After(a.ExitDate) {
			t.Fatalf("overlapping positions for %s", a.Ticker)
		}
	}

	var closed, unselected int
	for _, r := range report.Results {
		switch r.Outcome {
		case ledger.OutcomeClosed:
			closed++
			if r.ExitReason != signal.MaxDays || r.HoldingDays != 5 || !r.EntryDate.Equal(r.SignalDate.AddDate(0, 0, 1)) {
				t.Fatalf("unexpected closed trade %+v", r)
			}
			if r.Shares != 100 || r.PnL != 0 {
				t.Fatalf("unexpected sizing %+v", r)
			}
		case ledger.OutcomeUnselected:
			unselected++
		}
	}
	if closed != len(positions) || unselected == 0 {
		t.Fatalf("closed %d positions %d unselected %d", closed, len(positions), unselected)
	}
	if report.Account.Trades != closed {
		t.Fatalf("account booked %d trades, ledger has %d", report.Account.Trades, closed)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	tickers := []string{"A", "B", "C", "D"}
	run := func() *Report {
		cfg := testConfig(20, 40)
		cfg.Backtest.MaxOpenPositions = 3
		e := newEngine(t, cfg, storeFor(t, tickers, 50), dailySignals(tickers, 20, 40), WithRunID("fixed"))
		report, err := e.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return report
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first.Results, second.Results) {
		t.Fatalf("results differ between identical runs")
	}
	if first.RunID != "fixed" {
		t.Fatalf("run id option ignored")
	}
}

type providerFunc func(context.Context, time.Time) ([]signal.Signal, error)

func (f providerFunc) Signals(ctx context.Context, asOf time.Time) ([]signal.Signal, error) {
	return f(ctx, asOf)
}

func TestLookAheadSignalsDiscarded(t *testing.T) {
	provider := providerFunc(func(_ context.Context, asOf time.Time) ([]signal.Signal, error) {
		return []signal.Signal{
			{Ticker: "A", Strategy: "Test", AsOf: asOf.AddDate(0, 0, 1), RawScore: 9},
			{Ticker: "B", Strategy: "Test", AsOf: asOf, RawScore: 5},
		}, nil
	})
	e := newEngine(t, testConfig(20, 20), storeFor(t, []string{"A", "B"}, 40), provider)
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Ticker != "B" {
		t.Fatalf("expected only B, got %+v", report.Results)
	}
}

func TestProviderErrorAborts(t *testing.T) {
	boom := errors.New("feed down")
	provider := providerFunc(func(context.Context, time.Time) ([]signal.Signal, error) { return nil, boom })
	_, err := newEngine(t, testConfig(20, 20), storeFor(t, []string{"A"}, 40), provider).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

type brokenStore struct {
	*market.MemoryStore
	ticker string
}

func (b brokenStore) Bars(ctx context.Context, ticker string, asOf time.Time) ([]signal.Bar, error) {
	if ticker == b.ticker {
		return nil, errors.New("corrupt file")
	}
	return b.MemoryStore.Bars(ctx, ticker, asOf)
}

func TestStoreErrorAttributed(t *testing.T) {
	store := brokenStore{MemoryStore: storeFor(t, []string{"A", "BAD"}, 40), ticker: "BAD"}
	e := newEngine(t, testConfig(20, 20), store, dailySignals([]string{"A", "BAD"}, 20, 20))
	_, err := e.Run(context.Background())
	var dataErr *market.DataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected *market.DataError, got %v", err)
	}
	if dataErr.Ticker != "BAD" || !dataErr.Date.Equal(day(20)) {
		t.Fatalf("wrong attribution %+v", dataErr)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	book := tracker.NewMemory()
	seed := tracker.Position{Ticker: "A", Strategy: "Test", EntryDate: day(22), EntryPrice: 100, StopPrice: 90}
	if err := book.Register(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := newEngine(t, testConfig(20, 20), storeFor(t, []string{"A"}, 40), dailySignals([]string{"A"}, 20, 20), WithTracker(book))
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Outcome != ledger.OutcomeDuplicate || report.Results[0].ExitReason != signal.DuplicatePosition {
		t.Fatalf("expected duplicate result, got %+v", report.Results)
	}
	if report.Account.Trades != 0 {
		t.Fatalf("duplicate must not be booked")
	}
}

func TestUnselectedRecordedWhenNearlyFull(t *testing.T) {
	ctx := context.Background()
	book := tracker.NewMemory()
	for i := 1; i <= 8; i++ {
		p := tracker.Position{Ticker: "OPEN" + string(rune('0'+i)), Strategy: "Test", EntryDate: day(10), EntryPrice: 100, StopPrice: 90}
		if err := book.Register(ctx, p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	tickers := []string{"A", "B", "C", "D", "E"}
	var sigs strategy.Static
	for i, tk := range tickers {
		sigs = append(sigs, signal.Signal{Ticker: tk, Strategy: "Test", AsOf: day(20), RawScore: float64(10 - i)})
	}
	cfg := testConfig(20, 20)
	cfg.Backtest.MaxOpenPositions = 10
	e := newEngine(t, cfg, storeFor(t, tickers, 40), sigs, WithTracker(book))
	report, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var admitted, unselected []string
	for _, r := range report.Results {
		switch r.Outcome {
		case ledger.OutcomeClosed:
			admitted = append(admitted, r.Ticker)
		case ledger.OutcomeUnselected:
			unselected = append(unselected, r.Ticker)
			if r.ExitReason != signal.Unselected {
				t.Fatalf("unselected entry should carry the Unselected reason")
			}
		default:
			t.Fatalf("unexpected outcome %+v", r)
		}
	}
	if strings.Join(admitted, ",") != "A,B" || strings.Join(unselected, ",") != "C,D,E" {
		t.Fatalf("admitted %v unselected %v", admitted, unselected)
	}
}

func TestMissingNextSessionRejected(t *testing.T) {
	gap := flatBars(40)
	gap = append(gap[:21:21], gap[22:]...)
	store, err := market.NewMemoryStore(map[string][]signal.Bar{"GAP": gap, "FULL": flatBars(40)})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	book := tracker.NewMemory()
	e := newEngine(t, testConfig(20, 20), store, dailySignals([]string{"GAP"}, 20, 20), WithTracker(book))
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Outcome != ledger.OutcomeRejected {
		t.Fatalf("expected rejection, got %+v", report.Results)
	}
	if !strings.Contains(report.Results[0].Detail, "next session") {
		t.Fatalf("unexpected detail %q", report.Results[0].Detail)
	}
	if positions, _ := book.Positions(context.Background()); len(positions) != 0 {
		t.Fatalf("rejected candidate must not touch the tracker")
	}
}

func TestEntryOnFinalBarCountsAsOpen(t *testing.T) {
	ctx := context.Background()
	book := tracker.NewMemory()
	e := newEngine(t, testConfig(28, 28), storeFor(t, []string{"A"}, 30), dailySignals([]string{"A"}, 28, 28), WithTracker(book))
	if open, _ := book.IsOpen(ctx, "A", day(29)); open {
		t.Fatalf("open before the run")
	}
	report, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected one result, got %+v", report.Results)
	}
	r := report.Results[0]
	if r.Outcome != ledger.OutcomeClosed || r.ExitReason != signal.EndOfData || !r.EntryDate.Equal(day(29)) || !r.ExitDate.Equal(day(29)) {
		t.Fatalf("unexpected result %+v", r)
	}
	if open, _ := book.IsOpen(ctx, "A", day(29)); !open {
		t.Fatalf("position entered on the final bar should be open on its entry date")
	}
	if n, _ := book.CountOpen(ctx, day(29)); n != 1 {
		t.Fatalf("expected 1 open on the final bar, got %d", n)
	}
}

func TestRejectedConfirmationLeavesTrackerUntouched(t *testing.T) {
	bars := flatBars(40)
	bars[21].Open = 104
	bars[21].High = 106
	bars[21].Close = 105
	store, err := market.NewMemoryStore(map[string][]signal.Bar{"A": bars})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	book := tracker.NewMemory()
	e := newEngine(t, testConfig(20, 20), store, dailySignals([]string{"A"}, 20, 20), WithTracker(book))
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Results[0].ExitReason != signal.ConfirmationRejected {
		t.Fatalf("expected confirmation rejection, got %+v", report.Results[0])
	}
	if open, _ := book.IsOpen(context.Background(), "A", day(21)); open {
		t.Fatalf("tracker should be unaffected")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(20, 0)
	cfg.Backtest.Start = "yesterday"
	if _, err := New(cfg, storeFor(t, []string{"A"}, 5), strategy.Static{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected start date error")
	}
	cfg = testConfig(20, 0)
	cfg.Backtest.MaxOpenPositions = 0
	if _, err := New(cfg, storeFor(t, []string{"A"}, 5), strategy.Static{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected validation error")
	}
}
