// Package signal evaluates the VWAP band entry conditions for one underlying
// and selects the option contract to trade when they are met.
package signal

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"OptionSentinel/internal/broker"
	"OptionSentinel/internal/calculator"
	"OptionSentinel/internal/model"
)

// Params configures a Generator.
type Params struct {
	Symbol   string
	Exchange string
	Currency string

	BarsReqID int // bar subscription id on the client

	Calc calculator.Calculator

	BelowVWAPPer    float64
	AboveVWAPStdPer float64
	BelowVWAPStdPer float64
	DayDownPercent  float64

	Start model.TimeOfDay
	End   model.TimeOfDay

	Location *time.Location
	Now      func() time.Time // defaults to time.Now in Location
}

// Generator polls band state against the time-window and drawdown gates once
// per cycle. It goes permanently quiet for the session (Done) once a signal
// fires or a terminal gate trips; the orchestrator may re-arm it when a trade
// ends without a forced exit.
type Generator struct {
	Params
	client broker.Client

	done      bool
	todayOpen float64
	haveOpen  bool

	verbose     bool
	nextVerbose time.Time
}

// New creates a generator. Done starts true when the symbol already hosts a
// resumed position.
func New(client broker.Client, p Params, done bool) *Generator {
	if p.Now == nil {
		loc := p.Location
		p.Now = func() time.Time { return time.Now().In(loc) }
	}
	g := &Generator{Params: p, client: client, done: done}
	if !done {
		g.logParams()
	}
	return g
}

// Done reports whether the generator has stopped producing signals for the
// session.
func (g *Generator) Done() bool { return g.done }

// Rearm re-enables signal generation after a managed trade ended without a
// forced exit.
func (g *Generator) Rearm() {
	g.done = false
	g.logParams()
}

func (g *Generator) logParams() {
	log.Printf("[DEBUG] strategy instance started, symbol: %s, start_time: %s, end_time: %s, "+
		"day down percent: %v, below_vwap_std_per: %v, below_vwap_per: %v, above_vwap_std_per: %v, "+
		"standard deviation multiplier: %v",
		g.Symbol, g.Start, g.End, g.DayDownPercent, g.BelowVWAPStdPer,
		g.BelowVWAPPer, g.AboveVWAPStdPer, g.Calc.Multiplier)
}

func (g *Generator) logVerbose(format string, args ...any) {
	if g.verbose {
		log.Printf(format, args...)
	}
}

// EntryThreshold derives the two candidate thresholds and their minimum:
// vwapBelow = vwap*(1 - belowVWAPPer/100) and
// vwapStdBelow = (vwap - multiplier*stdev)*(1 + aboveVWAPStdPer/100).
func EntryThreshold(vwap, stdev, multiplier, belowVWAPPer, aboveVWAPStdPer float64) (vwapBelow, vwapStdBelow, finalValue float64) {
	vwapBelow = vwap - (belowVWAPPer*vwap)/100
	vwapStdBelow = (vwap - multiplier*stdev) * (1 + aboveVWAPStdPer/100)
	finalValue = math.Min(vwapBelow, vwapStdBelow)
	return
}

// Poll runs one evaluation cycle. It returns a contract when the entry signal
// is confirmed and a valid strike was resolved, nil otherwise.
func (g *Generator) Poll() *model.OptionContract {
	if g.done {
		return nil
	}
	now := g.Now()
	if g.nextVerbose.IsZero() || now.After(g.nextVerbose) {
		g.nextVerbose = now.Add(60 * time.Second)
		g.verbose = true
	} else {
		g.verbose = false
	}

	series, ok := g.client.Bars(g.BarsReqID)
	if !ok || series.Len() == 0 {
		return nil
	}
	if _, ok := g.client.ContractChain(g.Symbol); !ok {
		return nil
	}

	if !g.haveOpen {
		today := series.Day(now)
		if len(today) == 0 {
			return nil
		}
		g.todayOpen = today[0].Open
		g.haveOpen = true
	}

	last, _ := series.Last()
	lastPrice := last.Close

	snap := g.Calc.Snapshot(series)
	if !snap.Valid {
		return nil
	}
	vwapBelow, vwapStdBelow, finalValue := EntryThreshold(
		snap.VWAP, snap.Stdev, g.Calc.Multiplier, g.BelowVWAPPer, g.AboveVWAPStdPer)
	g.logVerbose("[DEBUG] %s: vwap: %v, std: %v, vwap_below: %v, vwap_std_val: %v, final_value %v, last_price: %v",
		g.Symbol, snap.VWAP, snap.Stdev, vwapBelow, vwapStdBelow, finalValue, lastPrice)

	// Underlying must not be down more than dayDownPercent from today's open.
	if (lastPrice-g.todayOpen)/g.todayOpen*100 < -g.DayDownPercent {
		log.Printf("[INFO] %s: is down more than %v%% from open, stopping instance", g.Symbol, g.DayDownPercent)
		g.done = true
		return nil
	}

	// Nor more than belowVWAPStdPer below the band threshold. The vwapBelow
	// denominator matches the production behavior.
	if (lastPrice-vwapStdBelow)/vwapBelow*100 < -g.BelowVWAPStdPer {
		g.logVerbose("[DEBUG] %s: is down more than %v%% from vwap_std_below: %v, ltp: %v, cant proceed",
			g.Symbol, g.BelowVWAPStdPer, vwapStdBelow, lastPrice)
		return nil
	}

	if g.End.AfterClock(now) {
		log.Printf("[INFO] %s: current time is after %s, stopping instance", g.Symbol, g.End)
		g.done = true
		return nil
	}

	if lastPrice >= finalValue {
		g.logVerbose("[DEBUG] %s: last_price: %v is greater than final_value: %v, cant proceed",
			g.Symbol, lastPrice, finalValue)
		return nil
	}

	if g.Start.BeforeClock(now) {
		g.logVerbose("[DEBUG] %s: current time is not between %s and %s", g.Symbol, g.Start, g.End)
		return nil
	}

	g.done = true
	log.Printf("[INFO] %s: vwap: %v, vwap_std: %v, vwap_below: %v, vwap_std_val: %v, final_value %v, last_price: %v",
		g.Symbol, snap.VWAP, snap.Stdev, vwapBelow, vwapStdBelow, finalValue, lastPrice)

	contract, err := g.selectContract(now, lastPrice)
	if err != nil {
		log.Printf("[ERROR] %s: contract selection: %v", g.Symbol, err)
		return nil
	}
	return contract
}

// selectContract picks the nearest expiry at or after today, then the call
// strike nearest the last price among integer strikes, walking forward
// through the chain until the gateway accepts a contract.
func (g *Generator) selectContract(now time.Time, lastPrice float64) (*model.OptionContract, error) {
	chain, ok := g.client.ContractChain(g.Symbol)
	if !ok {
		return nil, fmt.Errorf("no contract chain for %s", g.Symbol)
	}
	expiry, err := NearestExpiry(chain, now)
	if err != nil {
		return nil, err
	}
	strikes := append([]float64(nil), chain[expiry]...)
	sort.Float64s(strikes)

	_, idx, found := SelectStrike(strikes, lastPrice)
	if !found {
		return nil, fmt.Errorf("no integer strike in chain for %s %s", g.Symbol, expiry)
	}
	log.Printf("[INFO] %s: found_strike: %v", g.Symbol, strikes[idx])

	// The gateway sometimes reports strikes it then refuses to resolve, so
	// walk forward until one validates.
	for _, strike := range strikes[idx:] {
		c := model.NewOptionContract(g.Symbol, g.Exchange, g.Currency, model.RightCall, expiry, strike)
		if g.client.ValidateContract(c) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("no valid contract found for %s %s from strike %v", g.Symbol, expiry, strikes[idx])
}

// NearestExpiry returns the earliest expiry in the chain on or after today.
func NearestExpiry(chain broker.Chain, now time.Time) (string, error) {
	today := now.Format("20060102")
	var expiries []string
	for e := range chain {
		expiries = append(expiries, e)
	}
	sort.Strings(expiries)
	for _, e := range expiries {
		if e >= today {
			return e, nil
		}
	}
	return "", fmt.Errorf("no expiry on or after %s", today)
}

// SelectStrike returns the integer strike with minimal absolute distance to
// lastPrice and its index in the sorted strike list. Fractional strikes are
// skipped for selection but keep their place in the list, so the forward
// validation walk still visits them.
func SelectStrike(strikes []float64, lastPrice float64) (strike float64, index int, ok bool) {
	best := math.Inf(1)
	for i, s := range strikes {
		if s != math.Trunc(s) {
			continue
		}
		if d := math.Abs(s - lastPrice); d < best {
			best = d
			strike = s
			index = i
			ok = true
		}
	}
	return
}
