package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"OptionSentinel/internal/model"
)

func fptr(v float64) *float64     { return &v }
func tptr(v time.Time) *time.Time { return &v }

func closedTrade(id string, entry, exit float64, at time.Time) model.Trade {
	return model.Trade{
		TradingMode:    "Paper",
		TradeID:        id,
		Symbol:         "SPY",
		OptType:        model.RightCall,
		ExpiryDate:     "20260306",
		Strike:         80,
		Side:           model.SideLong,
		Quantity:       5,
		EntryPrice:     fptr(entry),
		EntryTime:      tptr(at.Add(-time.Hour)),
		PositionStatus: model.PositionClosed,
		ExitPrice:      fptr(exit),
		ExitTime:       tptr(at),
		ExitType:       model.ExitTypeStopLoss,
	}
}

func TestWriteCSV(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	trades := []model.Trade{
		closedTrade("t1", 2.00, 2.50, at),
		closedTrade("t2", 2.00, 1.60, at.Add(time.Hour)),
	}
	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := WriteCSV(trades, path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus two trades", len(rows))
	}
	if rows[0][0] != "trade_id" {
		t.Errorf("header starts with %q, want trade_id", rows[0][0])
	}
	if rows[1][len(rows[1])-1] != "250" {
		t.Errorf("winner pnl = %q, want 250", rows[1][len(rows[1])-1])
	}
	if rows[2][len(rows[2])-1] != "-200" {
		t.Errorf("loser pnl = %q, want -200", rows[2][len(rows[2])-1])
	}
}

func TestPnL_MissingPricesIsZero(t *testing.T) {
	tr := closedTrade("t1", 2.00, 2.50, time.Now())
	tr.ExitPrice = nil
	if got := PnL(tr); got != 0 {
		t.Errorf("pnl without exit price = %v, want 0", got)
	}
}
