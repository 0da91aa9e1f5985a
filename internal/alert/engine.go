package alert

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/events"
	"github.com/your-org/agent-arena-bot/internal/ledger"
)

// Threshold constants. Evaluation is purely observational: each satisfied
// threshold creates one Alert row and one event, and never mutates trade,
// agent, or metric state.
var (
	largeWinUSD      = decimal.NewFromInt(100)
	largeLossUSD     = decimal.NewFromInt(-100)
	riskLimitPct     = decimal.NewFromFloat(0.20) // single trade vs current capital
	drawdownLimit    = decimal.NewFromFloat(-0.15)
	winRateFloor     = decimal.NewFromFloat(0.35)
	cycleErrorsLimit = 3
)

// Engine checks trades, performance snapshots, and finished cycles against
// the fixed thresholds.
type Engine struct {
	repo     ledger.Repository
	pub      events.Publisher
	notifier Notifier
	logger   *zap.Logger
}

func NewEngine(repo ledger.Repository, pub events.Publisher, notifier Notifier, logger *zap.Logger) *Engine {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	return &Engine{repo: repo, pub: pub, notifier: notifier, logger: logger.Named("alert")}
}

// OnTrade evaluates a single applied trade. Failed trades raise nothing; the
// failed Trade row is the record.
func (e *Engine) OnTrade(ctx context.Context, trade *ledger.Trade, agent *ledger.Agent) {
	if trade.Status != ledger.TradeExecuted {
		return
	}
	if agent.CurrentCapital.IsPositive() {
		frac := trade.SizeUSD.Div(agent.CurrentCapital)
		if frac.GreaterThanOrEqual(riskLimitPct) {
			e.raise(ctx, &ledger.Alert{
				Type:     "risk_limit",
				Severity: ledger.SeverityWarning,
				Title:    "Large position relative to capital",
				Message: fmt.Sprintf("%s put $%s (%s%% of capital) on %s %s",
					agent.Name, trade.SizeUSD.StringFixed(2),
					frac.Mul(decimal.NewFromInt(100)).StringFixed(1),
					trade.Side, trade.MarketID),
				AgentID:  agent.ID,
				TradeID:  trade.ID,
				MarketID: trade.MarketID,
			})
		}
	}
}

// OnPerformance compares the fresh snapshot (and the previous one, when it
// exists) against the performance thresholds.
func (e *Engine) OnPerformance(ctx context.Context, agent *ledger.Agent, m, prev *ledger.PerformanceMetrics) {
	if prev != nil {
		delta := m.NetPnL.Sub(prev.NetPnL)
		if delta.GreaterThanOrEqual(largeWinUSD) {
			e.raise(ctx, &ledger.Alert{
				Type:     "large_win",
				Severity: ledger.SeverityInfo,
				Title:    "Large win",
				Message:  fmt.Sprintf("%s gained $%s since the last snapshot", agent.Name, delta.StringFixed(2)),
				AgentID:  agent.ID,
			})
		}
		if delta.LessThanOrEqual(largeLossUSD) {
			e.raise(ctx, &ledger.Alert{
				Type:     "large_loss",
				Severity: ledger.SeverityWarning,
				Title:    "Large loss",
				Message:  fmt.Sprintf("%s lost $%s since the last snapshot", agent.Name, delta.Abs().StringFixed(2)),
				AgentID:  agent.ID,
			})
		}
	}
	if m.MaxDrawdown.LessThanOrEqual(drawdownLimit) {
		e.raise(ctx, &ledger.Alert{
			Type:     "drawdown",
			Severity: ledger.SeverityCritical,
			Title:    "Drawdown limit breached",
			Message: fmt.Sprintf("%s is down %s%% from initial capital",
				agent.Name, m.MaxDrawdown.Abs().Mul(decimal.NewFromInt(100)).StringFixed(1)),
			AgentID: agent.ID,
		})
	}
	if m.ExecutedTrades > 0 && m.WinRate.LessThan(winRateFloor) {
		e.raise(ctx, &ledger.Alert{
			Type:     "win_rate",
			Severity: ledger.SeverityWarning,
			Title:    "Win rate below floor",
			Message:  fmt.Sprintf("%s win rate at %s", agent.Name, m.WinRate.StringFixed(3)),
			AgentID:  agent.ID,
		})
	}
}

// OnCycleComplete raises when a cycle finished with too many errors or
// failed outright.
func (e *Engine) OnCycleComplete(ctx context.Context, cycle *ledger.TickCycle) {
	switch {
	case cycle.Status == ledger.CycleFailed:
		e.raise(ctx, &ledger.Alert{
			Type:     "cycle_failed",
			Severity: ledger.SeverityCritical,
			Title:    "Cycle failed",
			Message:  fmt.Sprintf("cycle %d finished failed with %d error(s)", cycle.Number, cycle.Errors),
		})
	case cycle.Errors >= cycleErrorsLimit:
		e.raise(ctx, &ledger.Alert{
			Type:     "cycle_errors",
			Severity: ledger.SeverityWarning,
			Title:    "Elevated cycle errors",
			Message:  fmt.Sprintf("cycle %d completed with %d error(s)", cycle.Number, cycle.Errors),
		})
	}
}

// raise persists the alert, publishes it, and pushes it through the
// notifier. Sink failures are logged and swallowed; alerting never fails a
// cycle.
func (e *Engine) raise(ctx context.Context, a *ledger.Alert) {
	if err := e.repo.InsertAlert(ctx, a); err != nil {
		e.logger.Error("Failed to persist alert", zap.String("type", a.Type), zap.Error(err))
		return
	}
	e.pub.Publish(events.TypeAlert, a)
	if err := e.notifier.Send(fmt.Sprintf("[%s] %s: %s", a.Severity, a.Title, a.Message)); err != nil {
		e.logger.Warn("Notifier delivery failed", zap.String("type", a.Type), zap.Error(err))
	}
}
