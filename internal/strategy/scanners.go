package strategy

import (
	"math"
	"strings"

	"stockalert-go/internal/config"
	"stockalert-go/internal/indicators"
	"stockalert-go/internal/signal"
)

// Scanner inspects one ticker's history as of its last bar and reports a setup.
type Scanner interface {
	Name() string
	Scan(ticker string, bars []signal.Bar, series *indicators.Series) (signal.Signal, bool)
}

// volumeRatio compares the last bar's volume with the average of the lookback bars before it.
func volumeRatio(bars []signal.Bar, lookback int) float64 {
	n := len(bars)
	if n < 2 {
		return 1
	}
	prior := indicators.Volumes(bars[:n-1])
	avg := indicators.Mean(prior, min(lookback, len(prior)))
	if math.IsNaN(avg) || avg <= 0 {
		return 1
	}
	return bars[n-1].Volume / avg
}

// EMACrossover fires when the fast EMA has crossed above the slow EMA within the last few bars.
type EMACrossover struct {
	Fast, Slow int
	Within     int
}

// NewEMACrossover uses EMA20 over EMA50 crossed within three bars.
func NewEMACrossover() *EMACrossover { return &EMACrossover{Fast: 20, Slow: 50, Within: 3} }

func (e *EMACrossover) Name() string { return config.StrategyEMACrossover }

func (e *EMACrossover) Scan(ticker string, bars []signal.Bar, series *indicators.Series) (signal.Signal, bool) {
	n := len(bars)
	if n <= e.Slow+e.Within {
		return signal.Signal{}, false
	}
	last := series.At(n - 1)
	fast, ok1 := last.EMA(e.Fast)
	slow, ok2 := last.EMA(e.Slow)
	if !ok1 || !ok2 || fast <= slow || bars[n-1].Close <= slow {
		return signal.Signal{}, false
	}
	crossed := false
	for i := n - 1; i >= n-e.Within; i-- {
		pf, _ := series.At(i - 1).EMA(e.Fast)
		ps, _ := series.At(i - 1).EMA(e.Slow)
		cf, _ := series.At(i).EMA(e.Fast)
		cs, _ := series.At(i).EMA(e.Slow)
		if pf <= ps && cf > cs {
			crossed = true
			break
		}
	}
	if !crossed {
		return signal.Signal{}, false
	}
	pctAbove := (bars[n-1].Close - slow) / slow * 100
	raw := 10*math.Min(volumeRatio(bars, 20), 1.5) + math.Min(pctAbove, 3)
	return signal.Signal{
		Ticker:   ticker,
		Strategy: e.Name(),
		AsOf:     bars[n-1].Date,
		RawScore: raw,
		Payload: map[string]float64{
			signal.PayloadTrendRef: slow,
			"ema_fast":             fast,
			"pct_above_slow":       pctAbove,
		},
	}, true
}

// High52 fires on a close at or above the highest high of the prior lookback bars.
type High52 struct {
	Lookback int
	TrendMA  int
}

// NewHigh52 uses a 252-session window and SMA50 as the trend reference.
func NewHigh52() *High52 { return &High52{Lookback: 252, TrendMA: 50} }

func (h *High52) Name() string { return config.StrategyHigh52 }

func (h *High52) Scan(ticker string, bars []signal.Bar, series *indicators.Series) (signal.Signal, bool) {
	n := len(bars)
	if n <= h.Lookback {
		return signal.Signal{}, false
	}
	var prior float64
	for _, b := range bars[n-1-h.Lookback : n-1] {
		prior = math.Max(prior, b.High)
	}
	last := bars[n-1]
	if last.Close < prior {
		return signal.Signal{}, false
	}
	ma, ok := series.At(n - 1).SMA(h.TrendMA)
	if !ok || last.Close <= ma {
		return signal.Signal{}, false
	}
	vr := volumeRatio(bars, 20)
	return signal.Signal{
		Ticker:   ticker,
		Strategy: h.Name(),
		AsOf:     last.Date,
		RawScore: 4 + 4*math.Min(vr, 2),
		Payload: map[string]float64{
			signal.PayloadTrendRef: ma,
			"prior_high":           prior,
			"volume_ratio":         vr,
		},
	}, true
}

// MeanReversion fires when RSI is oversold while price holds above a long average.
type MeanReversion struct {
	RSIPeriod int
	Oversold  float64
	LongMA    int
}

// NewMeanReversion uses RSI14 under 30 above SMA200.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{RSIPeriod: 14, Oversold: 30, LongMA: 200}
}

func (m *MeanReversion) Name() string { return config.StrategyMeanReversion }

func (m *MeanReversion) Scan(ticker string, bars []signal.Bar, series *indicators.Series) (signal.Signal, bool) {
	n := len(bars)
	if n < m.LongMA {
		return signal.Signal{}, false
	}
	snap := series.At(n - 1)
	rsi, ok := snap.RSI(m.RSIPeriod)
	if !ok || rsi >= m.Oversold {
		return signal.Signal{}, false
	}
	ma, ok := snap.SMA(m.LongMA)
	if !ok || bars[n-1].Close <= ma {
		return signal.Signal{}, false
	}
	return signal.Signal{
		Ticker:   ticker,
		Strategy: m.Name(),
		AsOf:     bars[n-1].Date,
		RawScore: 100 - 2*rsi,
		Payload: map[string]float64{
			signal.PayloadTrendRef: ma,
			"rsi":                  rsi,
		},
	}, true
}

// Build returns the scanner registered under a strategy name.
func Build(name string) (Scanner, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case strings.ToLower(config.StrategyEMACrossover), "ema_crossover":
		return NewEMACrossover(), true
	case strings.ToLower(config.StrategyHigh52), "high_52w":
		return NewHigh52(), true
	case strings.ToLower(config.StrategyMeanReversion), "mean_reversion":
		return NewMeanReversion(), true
	}
	return nil, false
}
