package calculator

import (
	"math"
	"time"

	"OptionSentinel/internal/model"
)

// VWAPSeries computes the daily-anchored VWAP for every bar: cumulative
// sum(typical*volume)/sum(volume) restarting at each session date. Bars with
// no accumulated volume yet yield NaN.
func VWAPSeries(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	var pv, vol float64
	var curY, curD int
	var curM time.Month
	for i, b := range bars {
		y, m, d := b.Time.Date()
		if i == 0 || y != curY || m != curM || d != curD {
			curY, curM, curD = y, m, d
			pv, vol = 0, 0
		}
		pv += b.Typical() * b.Volume
		vol += b.Volume
		if vol == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = pv / vol
	}
	return out
}

// PopulationStdev computes the biased (ddof=0) standard deviation. The
// population formula is a deliberate reproduction requirement, not sample
// stdev. Fewer than two values is treated as undefined.
func PopulationStdev(vals []float64) (float64, bool) {
	if len(vals) < 2 {
		return 0, false
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals))), true
}
