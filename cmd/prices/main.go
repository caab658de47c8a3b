package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ondra-novak/mmbot-prices/internal/config"
	"github.com/ondra-novak/mmbot-prices/internal/ingest"
	"github.com/ondra-novak/mmbot-prices/internal/rollup"
	"github.com/ondra-novak/mmbot-prices/internal/scheduler"
	"github.com/ondra-novak/mmbot-prices/internal/server"
	"github.com/ondra-novak/mmbot-prices/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] mmbot-prices starting...")

	// Optional .env for the environment overrides
	_ = godotenv.Load()

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

	// Open store
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("[FATAL] open store: %v", err)
	}
	defer st.Close()

	// Rollup tiers with write invalidation
	daily := rollup.NewDaily(st)
	total := rollup.NewTotal(daily)
	st.AddCommitHook(daily.Invalidate)

	// Ingestion collector
	col := ingest.New(st)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Maintenance scheduler
	sched := scheduler.NewScheduler(ctx, st)
	if err := sched.Register(cfg.Schedule.CleanCron, cfg.Schedule.CheckpointCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(st, col, daily, total, cfg.Server.UploadHost, cfg.WWW.DocumentRoot)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Listen)
	}()

	log.Println("[INFO] mmbot-prices is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("[FATAL] http server: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] shutdown: %v", err)
	}
	log.Println("[INFO] mmbot-prices stopped")
}
