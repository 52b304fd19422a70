package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecomsimply/repricer/internal/advisor"
	"github.com/ecomsimply/repricer/internal/apply"
	"github.com/ecomsimply/repricer/internal/batch"
	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/pricing"
	"github.com/ecomsimply/repricer/internal/scheduler"
	"github.com/ecomsimply/repricer/internal/spapi"
	"github.com/ecomsimply/repricer/internal/storage"
	"github.com/ecomsimply/repricer/internal/telegram"
	"github.com/ecomsimply/repricer/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "data/repricer.db", "path to SQLite database")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Init logger
	log := logger.New(cfg.Logging.Level)

	mode := "LIVE"
	if cfg.IsSandbox() {
		mode = "SANDBOX"
	}
	log.Info("starting repricerd", "mode", mode, "seller_id", cfg.Amazon.SellerID)

	// Init database
	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	// Context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init services
	client := spapi.NewClient(cfg, log)
	engine := pricing.NewEngine(pricing.OptionsFromConfig(cfg), client, log)
	notifier := telegram.NewNotifier(cfg, log)
	applier := apply.NewApplier(engine, client, client, repo, notifier, cfg, log)
	processor := batch.NewProcessor(applier, repo, cfg, log)
	adv := advisor.New(cfg, log)
	sched := scheduler.NewScheduler(applier, repo, adv, notifier, cfg, log)
	webServer := web.NewServer(repo, engine, applier, client, processor, cfg, log)

	// Start scheduler in goroutine
	go sched.Run(ctx)

	// Start web server in goroutine
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	notifier.NotifyStatus(fmt.Sprintf("🤖 Repricer started (%s)", mode))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	// Graceful shutdown
	cancel() // stop scheduler

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	notifier.NotifyStatus("🛑 Repricer stopped")
	log.Info("repricerd stopped")
}
