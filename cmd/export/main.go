// Package main dumps trade history to a CSV file.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/csvwriter"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	agentName := flag.String("agent", "", "Export a single agent's trades (default: all)")
	out := flag.String("out", "trades.csv", "Output CSV path")
	limit := flag.Int("limit", 10000, "Maximum number of trades to export")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Database.Enabled() {
		logger.Fatalf("DB_HOST is not set; exports need the Postgres ledger")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFmt)
	if err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.SetGlobal(log)

	ctx := context.Background()
	pool, err := ledger.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	repo := ledger.NewPostgres(pool, log)
	defer repo.Close()

	trades, err := loadTrades(ctx, repo, *agentName, *limit)
	if err != nil {
		logger.Fatalf("Failed to load trades: %v", err)
	}

	w, err := csvwriter.NewWriter(*out, log)
	if err != nil {
		logger.Fatalf("Failed to create CSV file: %v", err)
	}
	if err := w.WriteTrades(trades); err != nil {
		logger.Fatalf("Failed to write trades: %v", err)
	}
	if err := w.Close(); err != nil {
		logger.Fatalf("Failed to close CSV file: %v", err)
	}
	logger.Infof("Exported %d trades to %s", len(trades), *out)
}

func loadTrades(ctx context.Context, repo ledger.Repository, agentName string, limit int) ([]ledger.Trade, error) {
	if agentName == "" {
		return repo.RecentTrades(ctx, limit)
	}
	agents, err := repo.ListAgents(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].Name == agentName {
			return repo.TradesByAgent(ctx, agents[i].ID)
		}
	}
	return nil, fmt.Errorf("no agent named %q", agentName)
}
