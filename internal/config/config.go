package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"OptionSentinel/internal/calculator"
	"OptionSentinel/internal/model"
)

// Account modes.
const (
	ModePaper = "Paper"
	ModeLive  = "Live"
)

var timeframes = []string{
	"1 min", "2 mins", "3 mins", "5 mins", "10 mins", "15 mins", "20 mins", "30 mins", "1 hour",
}

// Config holds all application configuration.
type Config struct {
	AccountMode string   `yaml:"account_mode"`
	Symbols     []string `yaml:"symbols"`
	Timezone    string   `yaml:"timezone"`

	Gateway struct {
		URL string `yaml:"url"`
	} `yaml:"gateway"`

	Strategy struct {
		CalcMethod        string  `yaml:"calc_method"`
		TimeFrame         string  `yaml:"time_frame"`
		StandardDeviation float64 `yaml:"standard_deviation"`
		BelowVWAPPer      float64 `yaml:"below_vwap_per"`
		AboveVWAPStdPer   float64 `yaml:"above_vwap_std_per"`
		BelowVWAPStdPer   float64 `yaml:"below_vwap_std_per"`
		TradeSize         float64 `yaml:"trade_size"`
		StartTime         string  `yaml:"start_time"`
		EndTime           string  `yaml:"end_time"`
		TradeEndTime      string  `yaml:"trade_end_time"`
		TotalLossAmount   float64 `yaml:"total_loss_amount"`
		DayDownPercent    float64 `yaml:"day_down_percent"`
		StopLoss          float64 `yaml:"stop_loss"`
		TighterStopLoss   float64 `yaml:"tighter_stop_loss"`
	} `yaml:"strategy"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`

	// Derived at validation time.
	Method      calculator.Method `yaml:"-"`
	Start       model.TimeOfDay   `yaml:"-"`
	End         model.TimeOfDay   `yaml:"-"`
	TradeEnd    model.TimeOfDay   `yaml:"-"`
	Location    *time.Location    `yaml:"-"`
	BarDuration string            `yaml:"-"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("ACCOUNT_MODE"); v != "" {
		cfg.AccountMode = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Symbols = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
			}
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("DAILY_CRON"); v != "" {
		cfg.Schedule.DailyCron = v
	}

	// Defaults
	if cfg.AccountMode == "" {
		cfg.AccountMode = ModePaper
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"SPY"}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/New_York"
	}
	if cfg.Gateway.URL == "" {
		cfg.Gateway.URL = "ws://127.0.0.1:7497/bridge"
	}
	if cfg.Strategy.CalcMethod == "" {
		cfg.Strategy.CalcMethod = string(calculator.MethodCustom)
	}
	if cfg.Strategy.TimeFrame == "" {
		cfg.Strategy.TimeFrame = "15 mins"
	}
	if cfg.Strategy.StandardDeviation == 0 {
		cfg.Strategy.StandardDeviation = 2
	}
	if cfg.Strategy.BelowVWAPPer == 0 {
		cfg.Strategy.BelowVWAPPer = 0.18
	}
	if cfg.Strategy.AboveVWAPStdPer == 0 {
		cfg.Strategy.AboveVWAPStdPer = 0.02
	}
	if cfg.Strategy.BelowVWAPStdPer == 0 {
		cfg.Strategy.BelowVWAPStdPer = 2
	}
	if cfg.Strategy.TradeSize == 0 {
		cfg.Strategy.TradeSize = 1000
	}
	if cfg.Strategy.StartTime == "" {
		cfg.Strategy.StartTime = "10:00"
	}
	if cfg.Strategy.EndTime == "" {
		cfg.Strategy.EndTime = "15:00"
	}
	if cfg.Strategy.TradeEndTime == "" {
		cfg.Strategy.TradeEndTime = "15:50"
	}
	if cfg.Strategy.TotalLossAmount == 0 {
		cfg.Strategy.TotalLossAmount = 600
	}
	if cfg.Strategy.DayDownPercent == 0 {
		cfg.Strategy.DayDownPercent = 1
	}
	if cfg.Strategy.StopLoss == 0 {
		cfg.Strategy.StopLoss = 20
	}
	if cfg.Strategy.TighterStopLoss == 0 {
		cfg.Strategy.TighterStopLoss = 7
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/trades.sqlite3"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Schedule.DailyCron == "" {
		cfg.Schedule.DailyCron = "0 35 9 * * 1-5"
	}

	return cfg, nil
}

// Validate checks all parameters and fills in the derived fields. A
// validation failure must abort the run before connecting to the gateway.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AccountMode) {
	case "paper":
		c.AccountMode = ModePaper
	case "live":
		c.AccountMode = ModeLive
	default:
		return fmt.Errorf("account_mode must be Paper or Live, got %q", c.AccountMode)
	}

	method, err := calculator.ParseMethod(strings.ToLower(strings.TrimSpace(c.Strategy.CalcMethod)))
	if err != nil {
		return err
	}
	c.Method = method

	valid := false
	for _, tf := range timeframes {
		if c.Strategy.TimeFrame == tf {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("time_frame %q not in %v", c.Strategy.TimeFrame, timeframes)
	}
	// The minute walk needs minute bars; the configured timeframe only
	// applies to the library method.
	if method == calculator.MethodCustom {
		c.Strategy.TimeFrame = "1 min"
		c.BarDuration = "1 M"
	} else {
		c.BarDuration = "1 Y"
	}

	if c.Start, err = model.ParseTimeOfDay(c.Strategy.StartTime); err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	if c.End, err = model.ParseTimeOfDay(c.Strategy.EndTime); err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if c.TradeEnd, err = model.ParseTimeOfDay(c.Strategy.TradeEndTime); err != nil {
		return fmt.Errorf("trade_end_time: %w", err)
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("end_time %s must be greater than start_time %s", c.End, c.Start)
	}
	if c.TradeEnd.Before(c.End) {
		return fmt.Errorf("trade_end_time %s must not be before end_time %s", c.TradeEnd, c.End)
	}
	if c.Strategy.TighterStopLoss >= c.Strategy.StopLoss {
		return fmt.Errorf("tighter_stop_loss %v must be less than stop_loss %v",
			c.Strategy.TighterStopLoss, c.Strategy.StopLoss)
	}
	if c.Strategy.TradeSize <= 0 {
		return fmt.Errorf("trade_size must be positive")
	}
	if c.Strategy.StandardDeviation <= 0 {
		return fmt.Errorf("standard_deviation must be positive")
	}

	if c.Location, err = time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}
