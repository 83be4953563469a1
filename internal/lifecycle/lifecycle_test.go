package lifecycle

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/config"
	"stockalert-go/internal/signal"
)

var signalDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type ohlc struct{ o, h, l, c float64 }

func testConfig(strategy config.Strategy) config.Config {
	cfg := *config.Default()
	cfg.Strategies = []config.Strategy{strategy}
	return cfg
}

func testStrategy() config.Strategy {
	return config.Strategy{Name: "Test", StopATRMult: 2, RewardMult: 2, ScoreHigh: 1}
}

func newSim(t *testing.T, cfg config.Config) *Simulator {
	t.Helper()
	sim, err := NewSimulator(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return sim
}

func history(n int) []signal.Bar {
	bars := make([]signal.Bar, n)
	for i := range bars {
		bars[i] = signal.Bar{
			Date:  signalDate.AddDate(0, 0, i-n+1),
			Open:  100, High: 102.5, Low: 97.5, Close: 100, Volume: 1000,
		}
	}
	return bars
}

func forward(rows ...ohlc) []signal.Bar {
	bars := make([]signal.Bar, len(rows))
	for i, r := range rows {
		bars[i] = signal.Bar{
			Date: signalDate.AddDate(0, 0, i+1),
			Open: r.o, High: r.h, Low: r.l, Close: r.c, Volume: 1000,
		}
	}
	return bars
}

func candidate() signal.Candidate {
	return signal.Candidate{
		Signal:       signal.Signal{Ticker: "AAA", Strategy: "Test", AsOf: signalDate},
		EntryPrice:   100,
		StopPrice:    90,
		TargetPrice:  120,
		RiskPerShare: 10,
		ATR:          5,
	}
}

var confirmBar = ohlc{100, 101, 99.5, 100.5}

func TestTargetExit(t *testing.T) {
	sim := newSim(t, testConfig(testStrategy()))
	out := sim.Run(candidate(), history(20), forward(
		confirmBar,
		ohlc{100.5, 102, 98, 101},
		ohlc{101, 103, 99, 102},
		ohlc{102, 121, 101, 119},
	))
	if out.State != Closed || out.Reason != signal.Target {
		t.Fatalf("expected target exit, got %v %s (%s)", out.State, out.Reason, out.Detail)
	}
	if out.ExitPrice != 120 || out.RMultiple != 2 || out.HoldingDays != 3 {
		t.Fatalf("unexpected exit %+v", out)
	}
	if !out.EntryDate.Equal(signalDate.AddDate(0, 0, 1)) || out.EntryPrice != 100 {
		t.Fatalf("entry should be the confirmation bar open, got %v %v", out.EntryDate, out.EntryPrice)
	}
}

func TestCatastrophicLossDuringWarmup(t *testing.T) {
	sim := newSim(t, testConfig(testStrategy()))
	out := sim.Run(candidate(), history(20), forward(
		confirmBar,
		ohlc{99, 100, 85, 88},
	))
	if out.Reason != signal.CatastrophicLoss || out.ExitPrice != 90 || out.HoldingDays != 1 {
		t.Fatalf("expected catastrophic exit at stop, got %+v", out)
	}
	if out.RMultiple != -1 {
		t.Fatalf("expected -1R, got %v", out.RMultiple)
	}
}

func TestWarmupSuppressesStop(t *testing.T) {
	sim := newSim(t, testConfig(testStrategy()))
	out := sim.Run(candidate(), history(20), forward(
		confirmBar,
		ohlc{99, 100, 89, 92},
		ohlc{92, 125, 91, 110},
		ohlc{110, 121, 105, 119},
	))
	if out.Reason != signal.Target || out.HoldingDays != 3 {
		t.Fatalf("warm-up should suppress stop and target, got %+v", out)
	}
	if len(out.StopHistory) != 0 {
		t.Fatalf("ratchet must not run during warm-up, got %v", out.StopHistory)
	}
}

func TestGapRejected(t *testing.T) {
	sim := newSim(t, testConfig(testStrategy()))
	out := sim.Run(candidate(), history(20), forward(ohlc{104, 106, 103, 105}))
	if out.State != Rejected || out.Reason != signal.ConfirmationRejected {
		t.Fatalf("expected rejection, got %+v", out)
	}
	if !strings.Contains(out.Detail, "gap") || out.Confirmed() {
		t.Fatalf("unexpected detail %q", out.Detail)
	}
}

func TestConfirmationChecks(t *testing.T) {
	cases := []struct {
		name   string
		cand   func() signal.Candidate
		bar    ohlc
		volume float64
		detail string
	}{
		{"no bar", candidate, ohlc{}, 0, "no confirmation bar"},
		{"trend", func() signal.Candidate {
			c := candidate()
			c.Payload = map[string]float64{signal.PayloadTrendRef: 101}
			return c
		}, confirmBar, 1000, "trend reference"},
		{"bearish", candidate, ohlc{100, 100.5, 98, 98.5}, 1000, "bearish"},
		{"volume", candidate, confirmBar, 700, "volume"},
		{"below stop", func() signal.Candidate {
			c := candidate()
			c.StopPrice = 98
			return c
		}, ohlc{97.5, 98.5, 97, 97.6}, 1000, "below stop"},
	}
	sim := newSim(t, testConfig(testStrategy()))
	for _, tc := range cases {
		var fwd []signal.Bar
		if tc.bar != (ohlc{}) {
			fwd = forward(tc.bar)
			fwd[0].Volume = tc.volume
		}
		out := sim.Run(tc.cand(), history(20), fwd)
		if out.State != Rejected {
			t.Fatalf("%s: expected rejection, got %+v", tc.name, out)
		}
		if !strings.Contains(out.Detail, tc.detail) {
			t.Fatalf("%s: detail %q does not mention %q", tc.name, out.Detail, tc.detail)
		}
	}
}

func TestStopWinsSameBarTie(t *testing.T) {
	sim := newSim(t, testConfig(testStrategy()))
	out := sim.Run(candidate(), history(20), forward(
		confirmBar,
		ohlc{100.5, 102, 98, 101},
		ohlc{101, 103, 99, 102},
		ohlc{102, 121, 89, 100},
	))
	if out.Reason != signal.StopLoss || out.ExitPrice != 90 {
		t.Fatalf("expected stop to win the tie, got %+v", out)
	}
}

func TestTrailingRatchet(t *testing.T) {
	strat := testStrategy()
	strat.RewardMult = 4
	sim := newSim(t, testConfig(strat))
	c := candidate()
	c.TargetPrice = 140
	out := sim.Run(c, history(20), forward(
		confirmBar,
		ohlc{100.5, 102, 98, 101},
		ohlc{101, 103, 99, 102},
		ohlc{102, 115, 101, 114},
		ohlc{114, 125, 114, 124},
		ohlc{124, 124, 113, 114},
		ohlc{114, 115, 112, 113},
	))
	if out.Reason != signal.StopLoss || out.ExitPrice != 112.5 {
		t.Fatalf("expected ratcheted stop exit at 112.5, got %+v", out)
	}
	if len(out.StopHistory) != 2 || out.StopHistory[0].Stop != 100 || out.StopHistory[1].Stop != 112.5 {
		t.Fatalf("unexpected stop history %+v", out.StopHistory)
	}
	for i := 1; i < len(out.StopHistory); i++ {
		if out.StopHistory[i].Stop <= out.StopHistory[i-1].Stop {
			t.Fatalf("stop lowered: %+v", out.StopHistory)
		}
	}
	if out.InitialStop != 90 || out.FinalStop != 112.5 {
		t.Fatalf("unexpected stops %v -> %v", out.InitialStop, out.FinalStop)
	}
	if math.Abs(out.RMultiple-1.25) > 1e-9 {
		t.Fatalf("R should use initial risk, got %v", out.RMultiple)
	}
}

func flatForward(days int) []signal.Bar {
	rows := make([]ohlc, days+1)
	rows[0] = confirmBar
	for i := 1; i <= days; i++ {
		rows[i] = ohlc{100.5, 101, 99.5, 100.5}
	}
	return forward(rows...)
}

func TestMaxDays(t *testing.T) {
	cfg := testConfig(testStrategy())
	cfg.Exits.MaxHoldingDays = 5
	out := newSim(t, cfg).Run(candidate(), history(20), flatForward(10))
	if out.Reason != signal.MaxDays || out.HoldingDays != 5 || out.ExitPrice != 100.5 {
		t.Fatalf("expected MaxDays on day 5, got %+v", out)
	}

	strat := testStrategy()
	strat.MaxHoldingDays = 4
	out = newSim(t, testConfig(strat)).Run(candidate(), history(20), flatForward(10))
	if out.Reason != signal.MaxDays || out.HoldingDays != 4 {
		t.Fatalf("strategy override should win, got %+v", out)
	}
}

func TestEndOfData(t *testing.T) {
	sim := newSim(t, testConfig(testStrategy()))
	out := sim.Run(candidate(), history(20), flatForward(2))
	if out.Reason != signal.EndOfData || out.HoldingDays != 2 || out.ExitPrice != 100.5 {
		t.Fatalf("expected EndOfData at last close, got %+v", out)
	}
	out = sim.Run(candidate(), history(20), flatForward(0))
	if out.Reason != signal.EndOfData || out.HoldingDays != 0 || out.State != Closed {
		t.Fatalf("confirmation-only series should close at end of data, got %+v", out)
	}
}

func TestStrategyExitRule(t *testing.T) {
	strat := testStrategy()
	strat.Exit = config.ExitRule{Kind: KindCloseBelowSMA, Period: 3, Label: "MA3Break"}
	sim := newSim(t, testConfig(strat))
	out := sim.Run(candidate(), history(20), forward(
		confirmBar,
		ohlc{100.5, 102, 99, 101},
		ohlc{101, 103, 100, 102},
		ohlc{102, 101, 94, 95},
	))
	if out.Reason != "MA3Break" || out.ExitPrice != 95 || out.HoldingDays != 3 {
		t.Fatalf("expected strategy exit at close, got %+v", out)
	}
	if math.Abs(out.RMultiple+0.5) > 1e-9 {
		t.Fatalf("expected -0.5R, got %v", out.RMultiple)
	}
}

func TestNewSimulatorRejectsUnknownRule(t *testing.T) {
	strat := testStrategy()
	strat.Exit = config.ExitRule{Kind: "moon_phase", Period: 1}
	if _, err := NewSimulator(testConfig(strat), zerolog.Nop()); err == nil {
		t.Fatalf("expected unknown rule error")
	}
}

func TestStateString(t *testing.T) {
	if Rejected.String() != "rejected" || Open.String() != "open" {
		t.Fatalf("unexpected state names")
	}
}
