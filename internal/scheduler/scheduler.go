package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/ondra-novak/mmbot-prices/internal/cleaner"
	"github.com/ondra-novak/mmbot-prices/internal/store"
)

// Scheduler manages the periodic maintenance tasks: a dry-run anomaly
// report and a store checkpoint.
type Scheduler struct {
	Cron  *cron.Cron
	Store *store.Store
	Ctx   context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, st *store.Store) *Scheduler {
	return &Scheduler{
		Cron:  cron.New(cron.WithSeconds()),
		Store: st,
		Ctx:   ctx,
	}
}

// Register registers the configured tasks; an empty spec disables its
// task.
func (s *Scheduler) Register(cleanCron, checkpointCron string) error {
	if cleanCron != "" {
		if _, err := s.Cron.AddFunc(cleanCron, s.cleanTask); err != nil {
			return fmt.Errorf("register clean task: %w", err)
		}
	}
	if checkpointCron != "" {
		if _, err := s.Cron.AddFunc(checkpointCron, s.checkpointTask); err != nil {
			return fmt.Errorf("register checkpoint task: %w", err)
		}
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

func (s *Scheduler) cleanTask() {
	log.Println("[INFO] running scheduled anomaly scan")
	flagged, err := cleaner.Run(s.Store, cleaner.ModeDryRun, io.Discard)
	if err != nil {
		log.Printf("[ERROR] scheduled anomaly scan: %v", err)
		return
	}
	log.Printf("[INFO] anomaly scan finished: %d records flagged", flagged)
}

func (s *Scheduler) checkpointTask() {
	if err := s.Store.Compact(); err != nil {
		log.Printf("[ERROR] scheduled checkpoint: %v", err)
		return
	}
	log.Println("[INFO] store checkpoint finished")
}
