package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"OptionSentinel/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"), time.UTC)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEntryEvent(tradeID string, orderID int, at time.Time) MakeEntry {
	return MakeEntry{
		TradingMode:      "Paper",
		TradeID:          tradeID,
		Symbol:           "SPY",
		SymbolType:       model.SecTypeOption,
		Exchange:         "SMART",
		OptType:          model.RightCall,
		ExpiryDate:       "20260306",
		Strike:           80,
		LotSize:          100,
		Side:             model.SideLong,
		Instruction:      model.InstructionBuy,
		Quantity:         5,
		EntryOrderID:     orderID,
		EntryOrderTime:   at,
		EntryOrderStatus: model.OrderStatusOpen,
	}
}

func fptr(v float64) *float64     { return &v }
func tptr(v time.Time) *time.Time { return &v }

// closeTrade drives one trade through the full lifecycle.
func closeTrade(t *testing.T, s *Store, tradeID string, orderID int, entryPx, exitPx float64, exitAt time.Time) {
	t.Helper()
	entryAt := exitAt.Add(-time.Hour)
	events := []TradeEvent{
		makeEntryEvent(tradeID, orderID, entryAt),
		ConfirmEntry{
			TradeID: tradeID, Symbol: "SPY",
			EntryTime: tptr(entryAt), EntryPrice: fptr(entryPx),
			ReferencePrice: fptr(entryPx), FinalStopLoss: fptr(entryPx * 0.8),
			EntryOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionOpen,
		},
		MakeExit{
			TradeID: tradeID, Symbol: "SPY", Instruction: model.InstructionSell,
			ExitOrderID: orderID + 1, ExitOrderTime: exitAt, ExitOrderPrice: exitPx,
			ExitOrderStatus: model.OrderStatusOpen,
			ReferencePrice:  fptr(entryPx), FinalStopLoss: fptr(entryPx * 0.8),
		},
		ConfirmExit{
			TradeID: tradeID, Symbol: "SPY",
			ExitTime: tptr(exitAt), ExitPrice: fptr(exitPx), ExitType: model.ExitTypeStopLoss,
			ExitOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionClosed,
		},
	}
	for _, ev := range events {
		if err := s.Apply(ev); err != nil {
			t.Fatalf("apply %s: %v", ev.Action(), err)
		}
	}
}

func TestApply_FullLifecycle(t *testing.T) {
	s := testStore(t)
	exitAt := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	closeTrade(t, s, "trade-1", 10, 2.00, 1.60, exitAt)

	trades, err := s.ClosedTrades("Paper")
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("closed trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.TradeID != "trade-1" || tr.PositionStatus != model.PositionClosed {
		t.Errorf("row = %q/%q, want trade-1/CLOSED", tr.TradeID, tr.PositionStatus)
	}
	if tr.EntryPrice == nil || *tr.EntryPrice != 2.00 {
		t.Errorf("entry price = %v, want 2.00", tr.EntryPrice)
	}
	if tr.ExitPrice == nil || *tr.ExitPrice != 1.60 {
		t.Errorf("exit price = %v, want 1.60", tr.ExitPrice)
	}
	if tr.ExitTime == nil || !tr.ExitTime.Equal(exitAt) {
		t.Errorf("exit time = %v, want %v", tr.ExitTime, exitAt)
	}
	if tr.ExitType != model.ExitTypeStopLoss {
		t.Errorf("exit type = %q, want SL", tr.ExitType)
	}

	open, err := s.OpenTrades("Paper")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("open trades = %d, want 0 after close", len(open))
	}
}

func TestOpenTrades_PendingAndFilled(t *testing.T) {
	s := testStore(t)
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Pending entry order, not yet filled.
	if err := s.Apply(makeEntryEvent("pending", 10, at)); err != nil {
		t.Fatal(err)
	}
	// Filled and holding.
	if err := s.Apply(makeEntryEvent("holding", 20, at)); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(ConfirmEntry{
		TradeID: "holding", Symbol: "SPY",
		EntryTime: tptr(at), EntryPrice: fptr(2.00),
		ReferencePrice: fptr(2.00), FinalStopLoss: fptr(1.60),
		EntryOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionOpen,
	}); err != nil {
		t.Fatal(err)
	}

	open, err := s.OpenTrades("Paper")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 {
		t.Fatalf("open trades = %d, want both the pending and the held one", len(open))
	}
	if got, _ := s.OpenTrades("Live"); len(got) != 0 {
		t.Errorf("Live mode sees %d Paper trades, want 0", len(got))
	}
}

func TestClosedPnL_SumsOnlyTheDay(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	closeTrade(t, s, "win", 10, 2.00, 2.50, day)                      // +250
	closeTrade(t, s, "loss", 20, 2.00, 1.60, day.Add(30*time.Minute)) // -200
	closeTrade(t, s, "yesterday", 30, 2.00, 3.00, day.AddDate(0, 0, -1))

	pnl, err := s.ClosedPnL("Paper", day)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pnl-50) > 1e-9 {
		t.Errorf("pnl = %v, want 50 (250 - 200, prior day excluded)", pnl)
	}

	if pnl, _ := s.ClosedPnL("Paper", day.AddDate(0, 0, 1)); pnl != 0 {
		t.Errorf("pnl on an empty day = %v, want 0", pnl)
	}
}

func TestApply_MissingRowIsNotAnError(t *testing.T) {
	s := testStore(t)
	err := s.Apply(ConfirmExit{
		TradeID: "ghost", Symbol: "SPY",
		ExitOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionClosed,
	})
	if err != nil {
		t.Fatalf("missing row must be logged, not fatal: %v", err)
	}
}

func TestApply_GuardsRejectDoubleConfirm(t *testing.T) {
	s := testStore(t)
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	closeTrade(t, s, "done", 10, 2.00, 1.60, at)

	// A late confirm against an already-closed row must not resurrect it.
	if err := s.Apply(ConfirmExit{
		TradeID: "done", Symbol: "SPY",
		ExitTime: tptr(at.Add(time.Hour)), ExitPrice: fptr(9.99), ExitType: model.ExitTypeStopLoss,
		ExitOrderStatus: model.OrderStatusFilled, PositionStatus: model.PositionClosed,
	}); err != nil {
		t.Fatal(err)
	}
	trades, _ := s.ClosedTrades("Paper")
	if len(trades) != 1 || *trades[0].ExitPrice != 1.60 {
		t.Errorf("late confirm must be a no-op, exit price = %v", *trades[0].ExitPrice)
	}
}
