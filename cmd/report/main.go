// Command report exports closed trades from the trade store to CSV.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"OptionSentinel/internal/config"
	"OptionSentinel/internal/report"
	"OptionSentinel/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags)

	out := flag.String("out", "trades.csv", "output CSV path")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] load .env: %v", err)
	}

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	st, err := store.Open(cfg.Database.SQLitePath, cfg.Location)
	if err != nil {
		log.Fatalf("[FATAL] open trade store: %v", err)
	}
	defer st.Close()

	trades, err := st.ClosedTrades(cfg.AccountMode)
	if err != nil {
		log.Fatalf("[FATAL] load closed trades: %v", err)
	}
	if err := report.WriteCSV(trades, *out); err != nil {
		log.Fatalf("[FATAL] write report: %v", err)
	}
	log.Printf("[INFO] wrote %d closed %s trades to %s", len(trades), cfg.AccountMode, *out)
}
