// Package scheduler starts the daily trading session on a cron cadence.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"OptionSentinel/internal/session"
)

// Scheduler manages the daily session cron task.
type Scheduler struct {
	Cron *cron.Cron
	Ctx  context.Context

	newSession func() *session.Orchestrator

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler that builds a fresh orchestrator per
// session via newSession.
func NewScheduler(ctx context.Context, newSession func() *session.Orchestrator) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Ctx:        ctx,
		newSession: newSession,
	}
}

// Register registers the daily session task.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailySession); err != nil {
		return fmt.Errorf("register daily session: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes the daily session immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.dailySession()
}

func (s *Scheduler) dailySession() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("[WARN] session already running, skipping trigger")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Println("[INFO] running daily session")
	orch := s.newSession()
	if err := orch.Run(s.Ctx); err != nil {
		log.Printf("[ERROR] daily session: %v", err)
	}
}
