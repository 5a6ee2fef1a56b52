// Package session drives one trading day: it wires gateway subscriptions,
// runs signal generators and trade managers on a fixed poll cadence and
// persists every lifecycle event.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"OptionSentinel/internal/broker"
	"OptionSentinel/internal/calculator"
	"OptionSentinel/internal/config"
	"OptionSentinel/internal/metrics"
	"OptionSentinel/internal/model"
	"OptionSentinel/internal/signal"
	"OptionSentinel/internal/store"
	"OptionSentinel/internal/trade"
)

const (
	defaultExchange = "SMART"
	defaultCurrency = "USD"

	defaultPollInterval = 5 * time.Second
	defaultWorkers      = 4
)

// Orchestrator owns all generators and managers for a session. Everything
// except the manager fan-out runs on the Run goroutine; events are applied
// to the store there too, so the store never sees concurrent writers from a
// single session.
type Orchestrator struct {
	cfg    *config.Config
	client broker.Client
	seq    *broker.Sequence
	store  *store.Store

	PollInterval time.Duration
	Workers      int
	Now          func() time.Time

	generators map[string]*signal.Generator
	managers   map[string]*trade.Manager

	currentLoss float64
}

// New builds an orchestrator bound to a validated config.
func New(cfg *config.Config, client broker.Client, seq *broker.Sequence, st *store.Store) *Orchestrator {
	loc := cfg.Location
	return &Orchestrator{
		cfg:          cfg,
		client:       client,
		seq:          seq,
		store:        st,
		PollInterval: defaultPollInterval,
		Workers:      defaultWorkers,
		Now:          func() time.Time { return time.Now().In(loc) },
		generators:   make(map[string]*signal.Generator),
		managers:     make(map[string]*trade.Manager),
	}
}

// Run executes one trading session until every symbol is finished for the
// day or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	now := o.Now()
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		log.Printf("[INFO] %s is a %s, skipping session", now.Format("2006-01-02"), wd)
		return nil
	}

	loss, err := o.store.ClosedPnL(o.cfg.AccountMode, now)
	if err != nil {
		return fmt.Errorf("load realized pnl: %w", err)
	}
	o.currentLoss = loss
	log.Printf("[INFO] session starting, mode: %s, symbols: %v, realized pnl today: %v",
		o.cfg.AccountMode, o.cfg.Symbols, o.currentLoss)
	if o.currentLoss <= -o.cfg.Strategy.TotalLossAmount {
		log.Printf("[WARN] realized loss %v already breaches daily limit %v, not trading today",
			o.currentLoss, o.cfg.Strategy.TotalLossAmount)
		return nil
	}

	if err := o.setup(); err != nil {
		return err
	}

	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] session interrupted: %v", ctx.Err())
			return nil
		case <-ticker.C:
		}
		if o.cycle() {
			log.Printf("[INFO] all symbols finished for the day, session over")
			return nil
		}
	}
}

// setup subscribes market data for every symbol, resumes persisted open
// trades and arms a generator per symbol.
func (o *Orchestrator) setup() error {
	st := o.cfg.Strategy
	calc := calculator.Calculator{
		Method:     o.cfg.Method,
		Multiplier: st.StandardDeviation,
		Window:     calculator.DefaultWindow,
	}

	o.client.RequestOpenOrders()
	o.client.RequestExecutions(o.seq.Next())

	open, err := o.store.OpenTrades(o.cfg.AccountMode)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	hasOpen := make(map[string]bool)
	for _, row := range open {
		hasOpen[row.Symbol] = true
	}

	for _, sym := range o.cfg.Symbols {
		stock := model.StockContract(sym, defaultExchange, defaultCurrency)
		barsID := o.seq.Next()
		if err := o.client.SubscribeBars(barsID, stock, o.cfg.Strategy.TimeFrame, o.cfg.BarDuration); err != nil {
			return fmt.Errorf("subscribe bars %s: %w", sym, err)
		}
		if err := o.client.RequestContractChain(o.seq.Next(), sym, model.SecTypeStock); err != nil {
			return fmt.Errorf("request chain %s: %w", sym, err)
		}
		o.generators[sym] = signal.New(o.client, signal.Params{
			Symbol:          sym,
			Exchange:        defaultExchange,
			Currency:        defaultCurrency,
			BarsReqID:       barsID,
			Calc:            calc,
			BelowVWAPPer:    st.BelowVWAPPer,
			AboveVWAPStdPer: st.AboveVWAPStdPer,
			BelowVWAPStdPer: st.BelowVWAPStdPer,
			DayDownPercent:  st.DayDownPercent,
			Start:           o.cfg.Start,
			End:             o.cfg.End,
			Location:        o.cfg.Location,
			Now:             o.Now,
		}, hasOpen[sym])
	}

	for _, row := range open {
		if _, known := o.generators[row.Symbol]; !known {
			log.Printf("[WARN] open trade %s on unconfigured symbol %s, leaving it alone", row.TradeID, row.Symbol)
			continue
		}
		if _, busy := o.managers[row.Symbol]; busy {
			log.Printf("[WARN] second open trade %s for %s, only the first is resumed", row.TradeID, row.Symbol)
			continue
		}
		contract := model.NewOptionContract(row.Symbol, row.Exchange, defaultCurrency, row.OptType, row.ExpiryDate, row.Strike)
		quoteID := o.seq.Next()
		if err := o.client.SubscribeQuote(quoteID, contract); err != nil {
			return fmt.Errorf("subscribe quote %s: %w", contract.Identifier(), err)
		}
		o.managers[row.Symbol] = trade.Resume(o.client, o.seq, quoteID, row, o.tradeParams())
		log.Printf("[INFO] resumed open trade %s on %s", row.TradeID, contract.Identifier())
	}
	return nil
}

func (o *Orchestrator) tradeParams() trade.Params {
	st := o.cfg.Strategy
	return trade.Params{
		TradingMode:     o.cfg.AccountMode,
		TradeSize:       st.TradeSize,
		StopLossPct:     st.StopLoss,
		TighterStopPct:  st.TighterStopLoss,
		TradeEndTime:    o.cfg.TradeEnd,
		TotalLossAmount: st.TotalLossAmount,
		CurrentLoss:     o.currentLoss,
		Now:             o.Now,
	}
}

// cycle runs one poll pass and reports whether the session is finished.
func (o *Orchestrator) cycle() bool {
	metrics.PollCycles.Inc()

	for sym, gen := range o.generators {
		if gen.Done() {
			continue
		}
		contract := gen.Poll()
		if contract == nil {
			continue
		}
		metrics.SignalsGenerated.WithLabelValues(sym).Inc()
		quoteID := o.seq.Next()
		if err := o.client.SubscribeQuote(quoteID, *contract); err != nil {
			log.Printf("[ERROR] subscribe quote %s: %v", contract.Identifier(), err)
			gen.Rearm()
			continue
		}
		o.managers[sym] = trade.NewManager(o.client, o.seq, quoteID, *contract, model.SideLong, o.tradeParams())
	}

	events := o.pollManagers()
	for _, ev := range events {
		if err := o.store.Apply(ev); err != nil {
			log.Printf("[ERROR] persist %s: %v", ev.Action(), err)
		}
	}

	var floating float64
	for sym, mgr := range o.managers {
		if !mgr.Ended() {
			floating += mgr.LivePnL()
			continue
		}
		o.client.CancelQuote(mgr.ID)
		delete(o.managers, sym)
		if loss, err := o.store.ClosedPnL(o.cfg.AccountMode, o.Now()); err == nil {
			o.currentLoss = loss
		}
		if mgr.ForcedExit() {
			log.Printf("[INFO] %s: trade ended by forced exit, %s stays quiet for the day", mgr.Identifier(), sym)
			continue
		}
		gen, ok := o.generators[sym]
		if !ok {
			continue
		}
		log.Printf("[INFO] %s: trade ended, re-arming signal generation for %s", mgr.Identifier(), sym)
		gen.Rearm()
	}
	metrics.LivePnL.Set(floating)

	if len(o.managers) > 0 {
		return false
	}
	for _, gen := range o.generators {
		if !gen.Done() {
			return false
		}
	}
	return true
}

// pollManagers fans the active managers over a bounded worker pool and
// gathers their persistence events. Each manager's events stay contiguous;
// ordering across managers is not significant.
func (o *Orchestrator) pollManagers() []store.TradeEvent {
	active := make([]*trade.Manager, 0, len(o.managers))
	for _, m := range o.managers {
		active = append(active, m)
	}
	if len(active) == 0 {
		return nil
	}

	workers := o.Workers
	if workers > len(active) {
		workers = len(active)
	}
	pending := make(chan *trade.Manager, len(active))
	results := make(chan []store.TradeEvent, len(active))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for m := range pending {
				results <- m.Poll()
			}
		}()
	}
	for _, m := range active {
		pending <- m
	}
	close(pending)
	wg.Wait()
	close(results)

	var events []store.TradeEvent
	for evs := range results {
		events = append(events, evs...)
	}
	return events
}
