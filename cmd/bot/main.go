// Package main is the entry point of the agent arena bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/alert"
	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/decision"
	"github.com/your-org/agent-arena-bot/internal/engine"
	"github.com/your-org/agent-arena-bot/internal/events"
	"github.com/your-org/agent-arena-bot/internal/http/handler"
	"github.com/your-org/agent-arena-bot/internal/intel"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/internal/metrics"
	"github.com/your-org/agent-arena-bot/internal/orchestrator"
	"github.com/your-org/agent-arena-bot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	autostart := flag.Bool("autostart", true, "Start the trading cycle immediately")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFmt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck
	logger.SetGlobal(log)

	log.Info("Agent arena bot starting",
		zap.String("config", *configPath),
		zap.Int("agents", len(cfg.Agents)),
	)

	// --- Ledger ---
	var repo ledger.Repository
	if cfg.Database.Enabled() {
		dsn := cfg.Database.DSN()
		if err := ledger.Migrate(dsn, log); err != nil {
			log.Fatal("Database migration failed", zap.Error(err))
		}
		pool, err := ledger.Connect(ctx, dsn)
		if err != nil {
			log.Fatal("Database connection failed", zap.Error(err))
		}
		repo = ledger.NewPostgres(pool, log)
		log.Info("Ledger backed by Postgres", zap.String("host", cfg.Database.Host))
	} else {
		repo = ledger.NewInMem()
		log.Warn("DB_HOST not set, ledger state is in-memory and lost on restart")
	}
	defer repo.Close()

	// --- Events ---
	hub := events.NewHub(log)
	defer hub.Close()
	pub := events.Fanout{events.NewLogPublisher(log), hub}

	// --- Notifier ---
	var notifier alert.Notifier = alert.NewNoOpNotifier()
	if cfg.Notify.WebhookURL != "" {
		notifier = alert.NewWebhookNotifier(cfg.Notify.WebhookURL, log)
	}
	defer notifier.Close() //nolint:errcheck

	// --- Core components ---
	metricsEngine := metrics.NewEngine(repo, log)
	alertEngine := alert.NewEngine(repo, pub, notifier, log)

	sim := engine.NewSimExecutionEngine(repo, metricsEngine, alertEngine, cfg.Risk, log)
	executor := engine.New(cfg.Venue, sim, log)

	registry := decision.NewRegistry(cfg.Providers)
	decider := decision.NewEngine(registry, cfg.Risk.MaxTradeFraction.Decimal(), log)

	marketSrc, newsSrc, socialSrc := intel.NewSources(cfg.Intel)
	provider := intel.NewComposite(marketSrc, newsSrc, socialSrc, log)

	orch := orchestrator.New(repo, provider, decider, executor, alertEngine, pub,
		cfg.Orchestrator, cfg.Agents, log)

	// --- HTTP server ---
	api := handler.NewAPI(orch, repo, hub, log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if *autostart {
		if err := orch.Start(ctx); err != nil {
			log.Fatal("Failed to start orchestrator", zap.Error(err))
		}
	} else {
		log.Info("Autostart disabled, waiting for POST /api/control/start")
	}

	// --- Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Shutting down", zap.String("signal", sig.String()))

	orch.Stop()
	orch.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", zap.Error(err))
	}
	log.Info("Agent arena bot stopped")
}
