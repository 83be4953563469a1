// Package indicators computes the rolling price statistics scanners and exit rules read.
package indicators

import "math"

// SMA over the last p points; aligned to input length with NaNs for warmup.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= p {
			sum -= x[i-p]
		}
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(p)
	}
	return out
}

// EMA with smoothing 2/(p+1), seeded with the SMA of the first p points.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(x) < p {
		return out
	}
	k := 2.0 / float64(p+1)
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI uses Wilder smoothing; the first value lands at index p.
func RSI(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(x) <= p {
		return out
	}
	var gain, loss float64
	for i := 1; i <= p; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(p)
	loss /= float64(p)
	out[p] = rsiValue(gain, loss)
	for i := p + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		gain = (gain*float64(p-1) + up) / float64(p)
		loss = (loss*float64(p-1) + down) / float64(p)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// Mean of the last n points of x, or NaN when x is shorter than n.
func Mean(x []float64, n int) float64 {
	if n <= 0 || len(x) < n {
		return math.NaN()
	}
	var sum float64
	for _, v := range x[len(x)-n:] {
		sum += v
	}
	return sum / float64(n)
}
