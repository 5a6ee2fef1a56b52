// Package report exports closed trades for offline review.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"OptionSentinel/internal/model"
)

var header = []string{
	"trade_id", "trading_mode", "symbol", "opt_type", "expiry_date", "strike",
	"side", "quantity", "entry_time", "entry_price", "exit_time", "exit_price",
	"exit_type", "pnl",
}

// WriteCSV writes closed trades to path, one row per trade, oldest first.
func WriteCSV(trades []model.Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		if err := w.Write([]string{
			t.TradeID,
			t.TradingMode,
			t.Symbol,
			t.OptType,
			t.ExpiryDate,
			floatStr(t.Strike),
			t.Side,
			strconv.Itoa(t.Quantity),
			timeStr(t.EntryTime),
			floatPtrStr(t.EntryPrice),
			timeStr(t.ExitTime),
			floatPtrStr(t.ExitPrice),
			t.ExitType,
			floatStr(PnL(t)),
		}); err != nil {
			return err
		}
	}
	return w.Error()
}

// PnL computes the realized dollar result of a closed trade; zero when entry
// or exit price is missing.
func PnL(t model.Trade) float64 {
	if t.EntryPrice == nil || t.ExitPrice == nil {
		return 0
	}
	return (*t.ExitPrice - *t.EntryPrice) * float64(t.Quantity) * 100
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func floatPtrStr(f *float64) string {
	if f == nil {
		return ""
	}
	return floatStr(*f)
}

func timeStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
