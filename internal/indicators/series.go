package indicators

import (
	"math"

	"stockalert-go/internal/signal"
)

// TrueRange of bars[i]; the first bar has no prior close and uses high minus low.
func TrueRange(bars []signal.Bar, i int) float64 {
	b := bars[i]
	tr := b.High - b.Low
	if i == 0 {
		return tr
	}
	prev := bars[i-1].Close
	return math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
}

// ATR averages the last p true ranges. ok is false when fewer than p bars exist.
func ATR(bars []signal.Bar, p int) (atr float64, ok bool) {
	if p <= 0 || len(bars) < p {
		return 0, false
	}
	var sum float64
	for i := len(bars) - p; i < len(bars); i++ {
		sum += TrueRange(bars, i)
	}
	return sum / float64(p), true
}

// Closes extracts close prices.
func Closes(bars []signal.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts volumes.
func Volumes(bars []signal.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Series lazily caches indicator lines over one bar slice. It is not safe for concurrent use.
type Series struct {
	bars   []signal.Bar
	closes []float64
	sma    map[int][]float64
	ema    map[int][]float64
	rsi    map[int][]float64
}

// NewSeries wraps bars without copying them.
func NewSeries(bars []signal.Bar) *Series {
	return &Series{
		bars:   bars,
		closes: Closes(bars),
		sma:    make(map[int][]float64),
		ema:    make(map[int][]float64),
		rsi:    make(map[int][]float64),
	}
}

// Len reports the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// At returns the indicator view for bar i.
func (s *Series) At(i int) Snapshot { return Snapshot{series: s, idx: i} }

func (s *Series) line(cache map[int][]float64, p int, fn func([]float64, int) []float64) []float64 {
	if line, ok := cache[p]; ok {
		return line
	}
	line := fn(s.closes, p)
	cache[p] = line
	return line
}

// Snapshot is the indicator state as of one bar's close.
type Snapshot struct {
	series *Series
	idx    int
}

// Bar returns the bar the snapshot is anchored on.
func (s Snapshot) Bar() signal.Bar { return s.series.bars[s.idx] }

// SMA returns the p-period simple average at this bar.
func (s Snapshot) SMA(p int) (float64, bool) {
	return valueAt(s.series.line(s.series.sma, p, SMA), s.idx)
}

// EMA returns the p-period exponential average at this bar.
func (s Snapshot) EMA(p int) (float64, bool) {
	return valueAt(s.series.line(s.series.ema, p, EMA), s.idx)
}

// RSI returns the p-period RSI at this bar.
func (s Snapshot) RSI(p int) (float64, bool) {
	return valueAt(s.series.line(s.series.rsi, p, RSI), s.idx)
}

// PrevRSI returns the p-period RSI one bar earlier.
func (s Snapshot) PrevRSI(p int) (float64, bool) {
	return valueAt(s.series.line(s.series.rsi, p, RSI), s.idx-1)
}

func valueAt(line []float64, i int) (float64, bool) {
	if i < 0 || i >= len(line) || math.IsNaN(line[i]) {
		return 0, false
	}
	return line[i], true
}
