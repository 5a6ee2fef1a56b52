package model

import (
	"sort"
	"time"
)

// Bar represents a single candlestick bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Typical returns the typical price used for VWAP weighting.
func (b Bar) Typical() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// BarSeries holds an ordered, timestamp-indexed bar sequence for one
// instrument. Appending a bar whose timestamp already exists overwrites the
// stored bar in place (live bar updates from the gateway).
type BarSeries struct {
	bars  []Bar
	index map[int64]int
}

// NewBarSeries creates an empty series.
func NewBarSeries() *BarSeries {
	return &BarSeries{index: make(map[int64]int)}
}

// Upsert inserts the bar, replacing any existing bar with the same timestamp.
// Out-of-order inserts are placed at their sorted position.
func (s *BarSeries) Upsert(b Bar) {
	key := b.Time.Unix()
	if i, ok := s.index[key]; ok {
		s.bars[i] = b
		return
	}
	if n := len(s.bars); n == 0 || !b.Time.Before(s.bars[n-1].Time) {
		s.index[key] = len(s.bars)
		s.bars = append(s.bars, b)
		return
	}
	i := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Time.After(b.Time) })
	s.bars = append(s.bars, Bar{})
	copy(s.bars[i+1:], s.bars[i:])
	s.bars[i] = b
	for j := i; j < len(s.bars); j++ {
		s.index[s.bars[j].Time.Unix()] = j
	}
}

// Len returns the number of bars in the series.
func (s *BarSeries) Len() int { return len(s.bars) }

// Bars returns the ordered bar slice. Callers must not mutate it.
func (s *BarSeries) Bars() []Bar { return s.bars }

// Last returns the most recent bar.
func (s *BarSeries) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Day returns the bars whose timestamp falls on the given calendar date in
// the bar's own location.
func (s *BarSeries) Day(date time.Time) []Bar {
	y, m, d := date.Date()
	var out []Bar
	for _, b := range s.bars {
		by, bm, bd := b.Time.Date()
		if by == y && bm == m && bd == d {
			out = append(out, b)
		}
	}
	return out
}

// Days returns the distinct session dates present in the series, in order.
func (s *BarSeries) Days() []time.Time {
	var days []time.Time
	var last time.Time
	for _, b := range s.bars {
		y, m, d := b.Time.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, b.Time.Location())
		if last.IsZero() || !day.Equal(last) {
			days = append(days, day)
			last = day
		}
	}
	return days
}

// BandSnapshot is the derived VWAP band state as of the latest bar. It is
// recomputed every polling cycle and never persisted. Valid is false when
// there were too few observations to compute a band for the latest minute;
// signal generation treats that as "no signal".
type BandSnapshot struct {
	VWAP  float64
	Stdev float64
	Upper float64
	Lower float64
	Valid bool
}
