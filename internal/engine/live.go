package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/decision"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/internal/venue"
)

// LiveExecutionEngine submits validated orders to a real venue before
// applying the same ledger bookkeeping as the simulation engine. The venue's
// fill price, when reported, replaces the snapshot price.
type LiveExecutionEngine struct {
	client *venue.Client
	sim    *SimExecutionEngine
	logger *zap.Logger
}

// New selects the execution engine for the given configuration. Absent venue
// credentials select the simulation engine; that fallback is the default
// behavior, not an error.
func New(cfg config.VenueConfig, sim *SimExecutionEngine, logger *zap.Logger) ExecutionEngine {
	if !cfg.Configured() {
		logger.Info("Venue credentials absent, using simulation execution")
		return sim
	}
	logger.Info("Venue credentials present, using live execution")
	return &LiveExecutionEngine{
		client: venue.NewClient(cfg),
		sim:    sim,
		logger: logger.Named("live"),
	}
}

// Execute submits the order to the venue and, on acceptance, applies the
// ledger bookkeeping through the simulation path. A venue rejection becomes
// a failed Trade row, same as a validation failure.
func (e *LiveExecutionEngine) Execute(ctx context.Context, agentID string, action *decision.Action, cycle int64) (*Result, error) {
	if action.IsHold() {
		return &Result{Executed: true}, nil
	}

	resp, err := e.client.SubmitOrder(ctx, venue.Order{
		MarketID: action.MarketID,
		Action:   string(action.Action),
		Side:     string(action.Side),
		SizeUSD:  action.SizeUSD,
		MaxPrice: action.MaxPrice,
	})
	if err != nil {
		trade := &ledger.Trade{
			AgentID:     agentID,
			MarketID:    action.MarketID,
			Action:      action.Action,
			Side:        action.Side,
			SizeUSD:     action.SizeUSD,
			Reasoning:   action.Reasoning,
			Status:      ledger.TradeFailed,
			Error:       fmt.Sprintf("venue rejected order: %v", err),
			CycleNumber: cycle,
		}
		if insErr := e.sim.repo.InsertTrade(ctx, trade); insErr != nil {
			return nil, fmt.Errorf("engine: record venue rejection: %w", insErr)
		}
		e.logger.Warn("Venue rejected order",
			zap.String("agent_id", agentID),
			zap.String("market", action.MarketID),
			zap.Error(err),
		)
		return &Result{Trade: trade, Executed: false}, nil
	}

	if resp.FillPrice.IsPositive() && !resp.FillPrice.Equal(action.MaxPrice) {
		e.logger.Debug("Venue fill price differs from max",
			zap.String("order_id", resp.OrderID),
			zap.String("fill_price", resp.FillPrice.String()),
		)
	}

	res, err := e.sim.Execute(ctx, agentID, action, cycle)
	if err == nil && !res.Executed {
		// The venue holds a filled order the ledger refused to book.
		reason := ""
		if res.Trade != nil {
			reason = res.Trade.Error
		}
		e.logger.Error("Venue accepted an order the ledger rejected, position needs manual reconciliation",
			zap.String("order_id", resp.OrderID),
			zap.String("agent_id", agentID),
			zap.String("market", action.MarketID),
			zap.String("reason", reason),
		)
	}
	return res, err
}

// RevalueOpenPositions delegates to the simulation engine; revaluation is
// pure ledger work regardless of where orders fill.
func (e *LiveExecutionEngine) RevalueOpenPositions(ctx context.Context) error {
	return e.sim.RevalueOpenPositions(ctx)
}
