// Package main renders per-agent performance reports from the ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/internal/report"
	"github.com/your-org/agent-arena-bot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	agentName := flag.String("agent", "", "Report a single agent (default: all)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Database.Enabled() {
		logger.Fatalf("DB_HOST is not set; reports need the Postgres ledger")
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

	svc := report.NewService(repo)

	reports, err := buildReports(ctx, repo, svc, *agentName)
	if err != nil {
		logger.Fatalf("Report failed: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Agent", "Capital", "Realized PnL", "Trades", "Failed", "Win/Loss", "Win Rate", "Turnover")
	for _, r := range reports {
		table.Append(
			r.AgentName,
			"$"+r.CurrentCapital.StringFixed(2),
			"$"+r.RealizedPnL.StringFixed(2),
			fmt.Sprintf("%d", r.ExecutedTrades),
			fmt.Sprintf("%d", r.FailedTrades),
			fmt.Sprintf("%d/%d", r.WinningSells, r.LosingSells),
			fmt.Sprintf("%.1f%%", r.WinRate),
			"$"+r.Turnover.StringFixed(2),
		)
	}
	table.Render()
}

func buildReports(ctx context.Context, repo ledger.Repository, svc *report.Service, agentName string) ([]report.AgentReport, error) {
	if agentName == "" {
		return svc.ForAllAgents(ctx)
	}
	agents, err := repo.ListAgents(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].Name == agentName {
			r, err := svc.ForAgent(ctx, &agents[i])
			if err != nil {
				return nil, err
			}
			return []report.AgentReport{*r}, nil
		}
	}
	return nil, fmt.Errorf("no agent named %q", agentName)
}
