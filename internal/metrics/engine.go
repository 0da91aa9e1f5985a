// Package metrics recomputes per-agent performance snapshots after each
// applied trade and appends them to the ledger's time series.
package metrics

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shopspring/decimal"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

// Proxy constants. The win-rate and Sharpe figures are deliberately coarse
// estimates derived from the aggregate capital delta rather than per-trade
// outcome classification; cmd/report computes the realized per-lot numbers.
var (
	winRateFloor   = decimal.NewFromFloat(0.30)
	winRateCeiling = decimal.NewFromFloat(0.70)
	winRateBase    = decimal.NewFromFloat(0.50)
	assumedVol     = decimal.NewFromFloat(0.15)
)

// Engine derives a PerformanceMetrics snapshot from an agent's executed
// trades and open positions. Snapshots are append-only; prior rows are never
// touched.
type Engine struct {
	repo   ledger.Repository
	logger *zap.Logger
}

func NewEngine(repo ledger.Repository, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, logger: logger.Named("metrics")}
}

// Recompute reads the agent's trade history and open positions, computes a
// fresh snapshot, and appends it to the performance series.
func (e *Engine) Recompute(ctx context.Context, agent *ledger.Agent) (*ledger.PerformanceMetrics, error) {
	trades, err := e.repo.TradesByAgent(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("load trades for %s: %w", agent.Name, err)
	}
	positions, err := e.repo.OpenPositionsByAgent(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("load positions for %s: %w", agent.Name, err)
	}

	unrealized := decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	netPnL := agent.CurrentCapital.Sub(agent.InitialCapital).Add(unrealized)

	ret := decimal.Zero
	if agent.InitialCapital.IsPositive() {
		ret = netPnL.Div(agent.InitialCapital)
	}

	turnover := decimal.Zero
	executed := 0
	failed := 0
	for _, t := range trades {
		switch t.Status {
		case ledger.TradeExecuted:
			executed++
			turnover = turnover.Add(t.SizeUSD)
		case ledger.TradeFailed:
			failed++
		}
	}

	m := &ledger.PerformanceMetrics{
		AgentID:        agent.ID,
		NetPnL:         netPnL,
		SharpeRatio:    ret.Div(assumedVol),
		MaxDrawdown:    drawdown(ret),
		WinRate:        winRateProxy(ret),
		TotalTrades:    len(trades),
		ExecutedTrades: executed,
		FailedTrades:   failed,
		Turnover:       turnover,
	}

	if err := e.repo.AppendMetrics(ctx, m); err != nil {
		return nil, fmt.Errorf("append metrics for %s: %w", agent.Name, err)
	}

	e.logger.Debug("Metrics recomputed",
		zap.String("agent", agent.Name),
		zap.String("net_pnl", m.NetPnL.StringFixed(2)),
		zap.String("win_rate", m.WinRate.StringFixed(3)),
		zap.Int("executed_trades", m.ExecutedTrades),
	)
	return m, nil
}

// winRateProxy nudges a 50% baseline by the agent's return and clamps the
// result to [0.30, 0.70].
func winRateProxy(ret decimal.Decimal) decimal.Decimal {
	wr := winRateBase.Add(ret)
	if wr.LessThan(winRateFloor) {
		return winRateFloor
	}
	if wr.GreaterThan(winRateCeiling) {
		return winRateCeiling
	}
	return wr
}

// drawdown reports min(0, return): the series is too sparse for a true
// peak-to-trough measure, so any aggregate loss counts in full.
func drawdown(ret decimal.Decimal) decimal.Decimal {
	if ret.IsNegative() {
		return ret
	}
	return decimal.Zero
}
