package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"OptionSentinel/internal/broker"
	"OptionSentinel/internal/config"
	"OptionSentinel/internal/metrics"
	"OptionSentinel/internal/scheduler"
	"OptionSentinel/internal/session"
	"OptionSentinel/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] OptionSentinel starting...")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] load .env: %v", err)
	}

	// Load config
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
	log.Printf("[INFO] mode: %s, symbols: %v, calc method: %s", cfg.AccountMode, cfg.Symbols, cfg.Method)

	// Init trade store
	st, err := store.Open(cfg.Database.SQLitePath, cfg.Location)
	if err != nil {
		log.Fatalf("[FATAL] open trade store: %v", err)
	}
	defer st.Close()

	// Metrics listener
	if cfg.Metrics.ListenAddr != "" {
		metrics.Serve(cfg.Metrics.ListenAddr)
		log.Printf("[INFO] metrics listening on %s", cfg.Metrics.ListenAddr)
	}

	// Connect gateway
	seq := broker.NewSequence(1)
	gw := broker.NewGateway(cfg.Gateway.URL, seq, cfg.Location)
	if err := gw.Connect(); err != nil {
		log.Fatalf("[FATAL] connect gateway at %s: %v", cfg.Gateway.URL, err)
	}
	defer gw.Close()
	log.Printf("[INFO] gateway connected: %s", cfg.Gateway.URL)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, func() *session.Orchestrator {
		return session.New(cfg, gw, seq, st)
	})
	if err := sched.Register(cfg.Schedule.DailyCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing session now")
		go sched.RunNow()
	}

	log.Println("[INFO] OptionSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] OptionSentinel stopped")
}
