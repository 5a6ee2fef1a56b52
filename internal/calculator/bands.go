package calculator

import (
	"errors"
	"math"
	"time"

	"OptionSentinel/internal/model"
)

// Method selects the band stdev algorithm.
type Method string

const (
	// MethodLibrary computes a windowed population stdev over the close
	// series, the canned technical-analysis style calculation.
	MethodLibrary Method = "library"
	// MethodCustom walks minute-by-minute within each session day and takes
	// the population stdev of VWAP values observed from the open up to the
	// current minute.
	MethodCustom Method = "custom"
)

// DefaultWindow is the close-price window for the library method.
const DefaultWindow = 30

// Session minute bounds for the custom walk. Bands stay undefined outside
// 09:31-16:00; bars past 16:00 only get a value if data actually exists there.
var (
	sessionFirstMinute = clock{9, 31}
	sessionLastMinute  = clock{16, 0}
)

type clock struct{ hour, min int }

func (c clock) before(h, m int) bool { return h < c.hour || (h == c.hour && m < c.min) }
func (c clock) after(h, m int) bool  { return h > c.hour || (h == c.hour && m > c.min) }

// BandPoint is one minute's band state from the custom walk.
type BandPoint struct {
	Time  time.Time
	VWAP  float64
	Stdev float64
	Upper float64
	Lower float64
	Valid bool
}

// Calculator derives VWAP band snapshots from a bar series.
type Calculator struct {
	Method     Method
	Multiplier float64
	Window     int // library method only; DefaultWindow when zero
}

// ParseMethod validates a configured method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodLibrary, MethodCustom:
		return Method(s), nil
	}
	return "", errors.New("calc method must be library or custom")
}

// Snapshot computes the band state as of the latest bar in the series. An
// invalid snapshot (not enough observations, NaN vwap, minute outside the
// session walk) carries Valid=false and must be treated as "no signal".
func (c Calculator) Snapshot(s *model.BarSeries) model.BandSnapshot {
	last, ok := s.Last()
	if !ok {
		return model.BandSnapshot{}
	}
	bars := s.Bars()
	vwaps := VWAPSeries(bars)
	vwap := vwaps[len(vwaps)-1]
	if math.IsNaN(vwap) {
		return model.BandSnapshot{}
	}

	var stdev float64
	var valid bool
	switch c.Method {
	case MethodLibrary:
		stdev, valid = c.libraryStdev(bars)
	default:
		stdev, valid = c.customStdev(bars, vwaps, last.Time)
	}
	if !valid || math.IsNaN(stdev) {
		return model.BandSnapshot{VWAP: vwap}
	}
	return model.BandSnapshot{
		VWAP:  vwap,
		Stdev: stdev,
		Upper: vwap + c.Multiplier*stdev,
		Lower: vwap - c.Multiplier*stdev,
		Valid: true,
	}
}

// libraryStdev takes the population stdev of the trailing Window closes.
func (c Calculator) libraryStdev(bars []model.Bar) (float64, bool) {
	window := c.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if len(bars) < window {
		return 0, false
	}
	closes := make([]float64, window)
	for i, b := range bars[len(bars)-window:] {
		closes[i] = b.Close
	}
	return PopulationStdev(closes)
}

// customStdev restricts to the latest bar's session day and computes the
// population stdev of VWAP values at or before that bar's minute.
func (c Calculator) customStdev(bars []model.Bar, vwaps []float64, at time.Time) (float64, bool) {
	h, m, _ := at.Clock()
	if sessionFirstMinute.after(h, m) || sessionLastMinute.before(h, m) {
		return 0, false
	}
	y, mo, d := at.Date()
	var vals []float64
	for i, b := range bars {
		by, bm, bd := b.Time.Date()
		if by != y || bm != mo || bd != d {
			continue
		}
		if b.Time.After(at) {
			continue
		}
		if !math.IsNaN(vwaps[i]) {
			vals = append(vals, vwaps[i])
		}
	}
	return PopulationStdev(vals)
}

// MinuteBands runs the full custom minute walk for one session day,
// producing a band point for every minute from 09:31 through 16:00. Minutes
// with fewer than two VWAP observations stay invalid.
func (c Calculator) MinuteBands(s *model.BarSeries, date time.Time) []BandPoint {
	bars := s.Bars()
	vwaps := VWAPSeries(bars)

	y, mo, d := date.Date()
	type obs struct {
		t    time.Time
		vwap float64
	}
	var day []obs
	byMinute := make(map[int]float64)
	for i, b := range bars {
		by, bm, bd := b.Time.Date()
		if by != y || bm != mo || bd != d || math.IsNaN(vwaps[i]) {
			continue
		}
		day = append(day, obs{b.Time, vwaps[i]})
		h, m, _ := b.Time.Clock()
		byMinute[h*60+m] = vwaps[i]
	}
	if len(day) == 0 {
		return nil
	}

	loc := day[0].t.Location()
	var out []BandPoint
	cursor := time.Date(y, mo, d, sessionFirstMinute.hour, sessionFirstMinute.min, 0, 0, loc)
	end := time.Date(y, mo, d, sessionLastMinute.hour, sessionLastMinute.min, 0, 0, loc)
	for !cursor.After(end) {
		var vals []float64
		for _, o := range day {
			if !o.t.After(cursor) {
				vals = append(vals, o.vwap)
			}
		}
		p := BandPoint{Time: cursor}
		h, m, _ := cursor.Clock()
		vwap, haveBar := byMinute[h*60+m]
		if std, ok := PopulationStdev(vals); ok && haveBar {
			p.VWAP = vwap
			p.Stdev = std
			p.Upper = vwap + c.Multiplier*std
			p.Lower = vwap - c.Multiplier*std
			p.Valid = true
		}
		out = append(out, p)
		cursor = cursor.Add(time.Minute)
	}
	return out
}
