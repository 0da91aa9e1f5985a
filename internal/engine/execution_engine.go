// Package engine applies canonical actions to the shared ledger: validation
// against the risk rules, capital and position bookkeeping, and post-trade
// metric and alert hooks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/alert"
	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/decision"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/internal/metrics"
	"github.com/your-org/agent-arena-bot/internal/position"
)

// Result reports the outcome of one attempted action. Trade is nil only for
// HOLD, which bypasses execution entirely.
type Result struct {
	Trade    *ledger.Trade
	Executed bool
}

// ExecutionEngine defines the interface for applying actions.
type ExecutionEngine interface {
	Execute(ctx context.Context, agentID string, action *decision.Action, cycle int64) (*Result, error)
	RevalueOpenPositions(ctx context.Context) error
}

// SimExecutionEngine fills orders instantly at the market's current price
// on the requested side. It is the default engine and the fallback when no
// venue credentials are configured.
type SimExecutionEngine struct {
	repo    ledger.Repository
	metrics *metrics.Engine
	alerts  *alert.Engine
	risk    config.RiskConfig
	logger  *zap.Logger
}

// NewSimExecutionEngine creates a simulation engine.
func NewSimExecutionEngine(repo ledger.Repository, m *metrics.Engine, a *alert.Engine, risk config.RiskConfig, logger *zap.Logger) *SimExecutionEngine {
	return &SimExecutionEngine{
		repo:    repo,
		metrics: m,
		alerts:  a,
		risk:    risk,
		logger:  logger.Named("engine"),
	}
}

// Execute validates the action and applies it. Validation failures produce a
// failed Trade row and a successful (non-error) return; the error return is
// reserved for ledger faults. No check mutates state before all checks pass.
func (e *SimExecutionEngine) Execute(ctx context.Context, agentID string, action *decision.Action, cycle int64) (*Result, error) {
	if action.IsHold() {
		return &Result{Executed: true}, nil
	}

	agent, err := e.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("engine: load agent %s: %w", agentID, err)
	}

	trade := &ledger.Trade{
		AgentID:     agent.ID,
		MarketID:    action.MarketID,
		Action:      action.Action,
		Side:        action.Side,
		SizeUSD:     action.SizeUSD,
		Reasoning:   action.Reasoning,
		Status:      ledger.TradePending,
		CycleNumber: cycle,
	}
	if err := e.repo.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("engine: insert trade: %w", err)
	}

	market, price, reason, err := e.validate(ctx, agent, action)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return e.fail(ctx, trade, reason)
	}

	if err := e.apply(ctx, agent, market, action, trade, price); err != nil {
		if errors.Is(err, errInvariant) {
			// Bug, not a market condition. Surface it, do not retry.
			return nil, fmt.Errorf("engine: %w", err)
		}
		return nil, err
	}

	e.postTrade(ctx, agent, trade)
	return &Result{Trade: trade, Executed: true}, nil
}

var errInvariant = errors.New("position invariant violated")

// validate runs the risk checks in order. It returns the market and the
// execution price on success, or a human-readable rejection reason. Only a
// ledger fault produces a non-nil error.
func (e *SimExecutionEngine) validate(ctx context.Context, agent *ledger.Agent, action *decision.Action) (*ledger.Market, decimal.Decimal, string, error) {
	market, err := e.repo.GetMarket(ctx, action.MarketID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, decimal.Zero, fmt.Sprintf("market %s not found", action.MarketID), nil
	}
	if err != nil {
		return nil, decimal.Zero, "", fmt.Errorf("engine: load market %s: %w", action.MarketID, err)
	}
	if market.Resolved {
		return nil, decimal.Zero, fmt.Sprintf("market %s is resolved", market.ID), nil
	}

	price := market.PriceForSide(action.Side)

	if action.Action == ledger.ActionBuy && action.SizeUSD.GreaterThan(agent.CurrentCapital) {
		return nil, decimal.Zero, fmt.Sprintf("size $%s exceeds current capital $%s",
			action.SizeUSD.StringFixed(2), agent.CurrentCapital.StringFixed(2)), nil
	}

	// The fixed cap binds new exposure only; liquidating an appreciated
	// position may legitimately exceed it.
	tradeCap := agent.InitialCapital.Mul(e.risk.MaxTradeFraction.Decimal())
	if action.Action == ledger.ActionBuy && action.SizeUSD.GreaterThan(tradeCap) {
		return nil, decimal.Zero, fmt.Sprintf("size $%s exceeds limit $%s",
			action.SizeUSD.StringFixed(2), tradeCap.StringFixed(2)), nil
	}

	if market.Liquidity.LessThan(e.risk.MinLiquidity.Decimal()) {
		return nil, decimal.Zero, fmt.Sprintf("market liquidity $%s below minimum $%s",
			market.Liquidity.StringFixed(2), e.risk.MinLiquidity.Decimal().StringFixed(2)), nil
	}

	if action.Action == ledger.ActionSell {
		pos, err := e.repo.PositionFor(ctx, agent.ID, market.ID, action.Side)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, decimal.Zero, fmt.Sprintf("no %s position on market %s to sell", action.Side, market.ID), nil
		}
		if err != nil {
			return nil, decimal.Zero, "", fmt.Errorf("engine: load position: %w", err)
		}
		held := pos.Shares.Mul(price)
		if held.LessThan(action.SizeUSD) {
			return nil, decimal.Zero, fmt.Sprintf("position value $%s below requested $%s",
				held.StringFixed(2), action.SizeUSD.StringFixed(2)), nil
		}
	}

	if action.Action == ledger.ActionBuy && price.GreaterThan(action.MaxPrice) {
		return nil, decimal.Zero, fmt.Sprintf("price %s exceeds max price %s",
			price.String(), action.MaxPrice.String()), nil
	}

	return market, price, "", nil
}

// apply performs the capital and position mutations for a validated action
// and flips the trade to executed.
func (e *SimExecutionEngine) apply(ctx context.Context, agent *ledger.Agent, market *ledger.Market, action *decision.Action, trade *ledger.Trade, price decimal.Decimal) error {
	book := position.Book{}
	pos, err := e.repo.PositionFor(ctx, agent.ID, market.ID, action.Side)
	switch {
	case err == nil:
		book = position.Book{Shares: pos.Shares, EntryPrice: pos.EntryPrice}
	case errors.Is(err, ledger.ErrNotFound):
		pos = &ledger.Position{AgentID: agent.ID, MarketID: market.ID, Side: action.Side}
	default:
		return fmt.Errorf("engine: load position: %w", err)
	}

	var newCapital decimal.Decimal
	switch action.Action {
	case ledger.ActionBuy:
		book, err = book.ApplyBuy(action.SizeUSD, price)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvariant, err)
		}
		newCapital = agent.CurrentCapital.Sub(action.SizeUSD)
	case ledger.ActionSell:
		book, err = book.ApplySell(action.SizeUSD, price)
		if err != nil {
			return fmt.Errorf("%w: %v", errInvariant, err)
		}
		newCapital = agent.CurrentCapital.Add(action.SizeUSD)
	default:
		return fmt.Errorf("%w: unexpected action %s", errInvariant, action.Action)
	}

	if err := e.repo.UpdateAgentCapital(ctx, agent.ID, newCapital); err != nil {
		return fmt.Errorf("engine: update capital: %w", err)
	}
	agent.CurrentCapital = newCapital

	if book.IsDust(e.risk.DustEpsilon.Decimal()) {
		if pos.ID != "" {
			if err := e.repo.DeletePosition(ctx, pos.ID); err != nil {
				return fmt.Errorf("engine: delete position: %w", err)
			}
		}
	} else {
		pos.Shares = book.Shares
		pos.EntryPrice = book.EntryPrice
		pos.CurrentValue = book.Value(price)
		pos.UnrealizedPnL = book.UnrealizedPnL(price)
		if err := e.repo.UpsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("engine: upsert position: %w", err)
		}
	}

	now := time.Now().UTC()
	trade.Status = ledger.TradeExecuted
	trade.Price = price
	trade.Shares = action.SizeUSD.Div(price)
	trade.ExecutedAt = &now
	if err := e.repo.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("engine: mark trade executed: %w", err)
	}

	e.logger.Info("Trade executed",
		zap.String("agent", agent.Name),
		zap.String("market", market.ID),
		zap.String("action", string(action.Action)),
		zap.String("side", string(action.Side)),
		zap.String("size_usd", action.SizeUSD.StringFixed(2)),
		zap.String("price", price.String()),
		zap.String("shares", trade.Shares.String()),
	)
	return nil
}

// fail flips the trade to failed with the rejection reason.
func (e *SimExecutionEngine) fail(ctx context.Context, trade *ledger.Trade, reason string) (*Result, error) {
	trade.Status = ledger.TradeFailed
	trade.Error = reason
	if err := e.repo.UpdateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("engine: mark trade failed: %w", err)
	}
	e.logger.Warn("Trade rejected",
		zap.String("agent_id", trade.AgentID),
		zap.String("market", trade.MarketID),
		zap.String("reason", reason),
	)
	return &Result{Trade: trade, Executed: false}, nil
}

// postTrade recomputes the agent's metrics synchronously and runs the alert
// checks. Metric or alert failures are logged, never returned; the trade has
// already been applied.
func (e *SimExecutionEngine) postTrade(ctx context.Context, agent *ledger.Agent, trade *ledger.Trade) {
	prev, err := e.repo.LatestMetricsByAgent(ctx, agent.ID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		e.logger.Error("Failed to load previous metrics", zap.String("agent", agent.Name), zap.Error(err))
		prev = nil
	}

	m, err := e.metrics.Recompute(ctx, agent)
	if err != nil {
		e.logger.Error("Metrics recompute failed", zap.String("agent", agent.Name), zap.Error(err))
		return
	}

	e.alerts.OnTrade(ctx, trade, agent)
	e.alerts.OnPerformance(ctx, agent, m, prev)
}

// RevalueOpenPositions refreshes every open position's mark-to-market value
// and unrealized PnL from the latest market prices. Runs once per cycle
// after all trades are applied.
func (e *SimExecutionEngine) RevalueOpenPositions(ctx context.Context) error {
	positions, err := e.repo.AllOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("engine: load open positions: %w", err)
	}
	for i := range positions {
		pos := &positions[i]
		market, err := e.repo.GetMarket(ctx, pos.MarketID)
		if err != nil {
			e.logger.Warn("Skipping revaluation, market unavailable",
				zap.String("market", pos.MarketID), zap.Error(err))
			continue
		}
		price := market.PriceForSide(pos.Side)
		book := position.Book{Shares: pos.Shares, EntryPrice: pos.EntryPrice}
		pos.CurrentValue = book.Value(price)
		pos.UnrealizedPnL = book.UnrealizedPnL(price)
		if err := e.repo.UpsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("engine: revalue position %s: %w", pos.ID, err)
		}
	}
	return nil
}
