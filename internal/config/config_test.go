package config

import (
	"os"
	"path/filepath"
	"testing"

	"OptionSentinel/internal/calculator"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsAndValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.AccountMode != ModePaper {
		t.Errorf("mode = %q, want Paper", cfg.AccountMode)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "SPY" {
		t.Errorf("symbols = %v, want [SPY]", cfg.Symbols)
	}
	if cfg.Method != calculator.MethodCustom {
		t.Errorf("method = %q, want custom", cfg.Method)
	}
	// Custom method forces minute bars over a month.
	if cfg.Strategy.TimeFrame != "1 min" || cfg.BarDuration != "1 M" {
		t.Errorf("timeframe/duration = %q/%q, want 1 min / 1 M", cfg.Strategy.TimeFrame, cfg.BarDuration)
	}
	if cfg.Start.String() != "10:00" || cfg.End.String() != "15:00" || cfg.TradeEnd.String() != "15:50" {
		t.Errorf("times = %s/%s/%s, want 10:00/15:00/15:50", cfg.Start, cfg.End, cfg.TradeEnd)
	}
	if cfg.Location == nil || cfg.Location.String() != "America/New_York" {
		t.Errorf("location = %v, want America/New_York", cfg.Location)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
account_mode: live
symbols: [QQQ]
strategy:
  calc_method: library
  time_frame: 15 mins
`)
	t.Setenv("SYMBOLS", "spy, iwm")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.AccountMode != ModeLive {
		t.Errorf("mode = %q, want Live (normalized)", cfg.AccountMode)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "SPY" || cfg.Symbols[1] != "IWM" {
		t.Errorf("symbols = %v, env must override the file and uppercase", cfg.Symbols)
	}
	// Library method keeps the configured timeframe over a year of bars.
	if cfg.Strategy.TimeFrame != "15 mins" || cfg.BarDuration != "1 Y" {
		t.Errorf("timeframe/duration = %q/%q, want 15 mins / 1 Y", cfg.Strategy.TimeFrame, cfg.BarDuration)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", "account_mode: demo\n"},
		{"bad method", "strategy:\n  calc_method: bollinger\n"},
		{"bad timeframe", "strategy:\n  calc_method: library\n  time_frame: 7 mins\n"},
		{"end before start", "strategy:\n  start_time: \"15:00\"\n  end_time: \"10:00\"\n"},
		{"trade end before end", "strategy:\n  end_time: \"15:00\"\n  trade_end_time: \"14:00\"\n"},
		{"tighter stop not tighter", "strategy:\n  stop_loss: 7\n  tighter_stop_loss: 20\n"},
		{"negative trade size", "strategy:\n  trade_size: -5\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
