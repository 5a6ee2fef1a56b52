package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"OptionSentinel/internal/broker"
	"OptionSentinel/internal/config"
	"OptionSentinel/internal/model"
	"OptionSentinel/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	// Keep the drawdown gates out of the way unless a test wants them.
	cfg.Strategy.DayDownPercent = 50
	cfg.Strategy.BelowVWAPStdPer = 50
	return cfg
}

func testOrchestrator(t *testing.T, cfg *config.Config, now time.Time) (*Orchestrator, *broker.MockClient, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trades.db"), cfg.Location)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	client := broker.NewMockClient()
	o := New(cfg, client, broker.NewSequence(1), st)
	o.Now = func() time.Time { return now }
	return o, client, st
}

// dipBars publishes today's minute tape into every subscribed bar series:
// ten flat bars then a drop below the entry thresholds.
func dipBars(client *broker.MockClient, day time.Time) {
	closes := make([]float64, 11)
	for i := range closes {
		closes[i] = 100
	}
	closes[10] = 79
	for _, s := range client.SeriesByReqID {
		for i, c := range closes {
			s.Upsert(model.Bar{
				Time: day.Add(time.Duration(i) * time.Minute),
				Open: c, High: c, Low: c, Close: c, Volume: 1000,
			})
		}
	}
}

func fptr(v float64) *float64     { return &v }
func tptr(v time.Time) *time.Time { return &v }

// recordClosedTrade persists one finished trade with the given result.
func recordClosedTrade(t *testing.T, st *store.Store, tradeID string, orderID int, entryPx, exitPx float64, exitAt time.Time) {
	t.Helper()
	entryAt := exitAt.Add(-time.Hour)
	events := []store.TradeEvent{
		store.MakeEntry{
			TradingMode: "Paper", TradeID: tradeID, Symbol: "SPY",
			SymbolType: model.SecTypeOption, Exchange: "SMART", OptType: model.RightCall,
			ExpiryDate: "20260306", Strike: 80, LotSize: 100,
			Side: model.SideLong, Instruction: model.InstructionBuy, Quantity: 5,
			EntryOrderID: orderID, EntryOrderTime: entryAt, EntryOrderStatus: model.OrderStatusOpen,
		},
		store.ConfirmEntry{
			TradeID: tradeID, Symbol: "SPY",
			EntryTime: tptr(entryAt), EntryPrice: fptr(entryPx),
			ReferencePrice: fptr(entryPx), FinalStopLoss: fptr(entryPx * 0.8),
			EntryOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionOpen,
		},
		store.ConfirmExit{
			TradeID: tradeID, Symbol: "SPY",
			ExitTime: tptr(exitAt), ExitPrice: fptr(exitPx), ExitType: model.ExitTypeStopLoss,
			ExitOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionClosed,
		},
	}
	for _, ev := range events {
		if err := st.Apply(ev); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRun_WeekendSkipsSession(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 7, 10, 0, 0, 0, cfg.Location) // Saturday
	o, client, _ := testOrchestrator(t, cfg, now)

	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(client.Placed) != 0 || len(o.generators) != 0 {
		t.Error("weekend run must not touch the gateway")
	}
}

func TestRun_DailyLossGateStopsSession(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, cfg.Location) // Monday
	o, _, st := testOrchestrator(t, cfg, now)
	// One closed trade down $700 this morning, past the $600 limit.
	recordClosedTrade(t, st, "loser", 10, 2.00, 0.60, now.Add(-10*time.Minute))

	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(o.generators) != 0 {
		t.Error("loss-gated session must not arm any generators")
	}
}

func TestCycle_SignalToClosedTrade(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, cfg.Location)
	o, client, st := testOrchestrator(t, cfg, now)
	client.Chains["SPY"] = broker.Chain{"20260306": {80}}

	if err := o.setup(); err != nil {
		t.Fatal(err)
	}
	if len(o.generators) != 1 {
		t.Fatalf("generators = %d, want 1", len(o.generators))
	}
	dipBars(client, time.Date(2026, 3, 2, 9, 31, 0, 0, cfg.Location))

	// Signal fires, a manager appears; no quote yet so nothing is placed.
	if o.cycle() {
		t.Fatal("session must not end with an active manager")
	}
	mgr, ok := o.managers["SPY"]
	if !ok {
		t.Fatal("expected a manager after the signal")
	}
	if !o.generators["SPY"].Done() {
		t.Error("generator must be quiet while its manager runs")
	}

	// Quote arrives, entry goes out and is persisted.
	client.SetQuote(mgr.ID, 2.00)
	o.cycle()
	open, err := st.OpenTrades("Paper")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open rows = %d, want the placed entry", len(open))
	}
	entryOrder, _ := client.LastPlaced()

	// Entry fills, the stop goes out.
	client.AddExecution(broker.Execution{
		OrderID: entryOrder.OrderID, Symbol: "SPY", Quantity: 5, AvgPrice: 2.00, Time: now,
	})
	o.cycle()
	stopOrder, _ := client.LastPlaced()
	if stopOrder.Order.Type != broker.OrderStop {
		t.Fatalf("resting order type = %q, want STP", stopOrder.Order.Type)
	}

	// Stop fills: trade closes, manager goes away, the symbol re-arms.
	client.SetPositions([]broker.Position{{Symbol: "SPY", Quantity: 5}})
	client.AddExecution(broker.Execution{
		OrderID: stopOrder.OrderID, Symbol: "SPY", Quantity: 5, AvgPrice: 1.60, Time: now,
	})
	o.cycle()
	if _, still := o.managers["SPY"]; still {
		t.Error("ended manager must be removed")
	}
	if o.generators["SPY"].Done() {
		t.Error("a plain stop-out must re-arm the generator")
	}
	closed, err := st.ClosedTrades("Paper")
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 {
		t.Fatalf("closed rows = %d, want 1", len(closed))
	}
	if closed[0].ExitPrice == nil || *closed[0].ExitPrice != 1.60 {
		t.Errorf("persisted exit price = %v, want 1.60", closed[0].ExitPrice)
	}
}

func TestCycle_EndsWhenAllGeneratorsTerminal(t *testing.T) {
	cfg := testConfig(t)
	// Past end_time: the first evaluation is terminal for the day.
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, cfg.Location)
	o, client, _ := testOrchestrator(t, cfg, now)
	client.Chains["SPY"] = broker.Chain{"20260306": {80}}

	if err := o.setup(); err != nil {
		t.Fatal(err)
	}
	dipBars(client, time.Date(2026, 3, 2, 9, 31, 0, 0, cfg.Location))

	if !o.cycle() {
		t.Error("session must end once every generator is terminal with no managers")
	}
}

func TestSetup_ResumesOpenTrade(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, cfg.Location)
	o, _, st := testOrchestrator(t, cfg, now)

	entryAt := now.Add(-30 * time.Minute)
	if err := st.Apply(store.MakeEntry{
		TradingMode: "Paper", TradeID: "held", Symbol: "SPY",
		SymbolType: model.SecTypeOption, Exchange: "SMART", OptType: model.RightCall,
		ExpiryDate: "20260306", Strike: 80, LotSize: 100,
		Side: model.SideLong, Instruction: model.InstructionBuy, Quantity: 5,
		EntryOrderID: 10, EntryOrderTime: entryAt, EntryOrderStatus: model.OrderStatusOpen,
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.Apply(store.ConfirmEntry{
		TradeID: "held", Symbol: "SPY",
		EntryTime: tptr(entryAt), EntryPrice: fptr(2.00),
		ReferencePrice: fptr(2.00), FinalStopLoss: fptr(1.60),
		EntryOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionOpen,
	}); err != nil {
		t.Fatal(err)
	}

	if err := o.setup(); err != nil {
		t.Fatal(err)
	}
	mgr, ok := o.managers["SPY"]
	if !ok {
		t.Fatal("expected the open row to resume as a manager")
	}
	if mgr.TradeID() != "held" {
		t.Errorf("resumed trade id = %q, want held", mgr.TradeID())
	}
	if !o.generators["SPY"].Done() {
		t.Error("a symbol with a resumed position must not signal again")
	}
}
