package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

func insertExecuted(t *testing.T, repo ledger.Repository, agentID, marketID string, action ledger.Action, size, price float64, at time.Time) {
	t.Helper()
	sizeD := decimal.NewFromFloat(size)
	priceD := decimal.NewFromFloat(price)
	now := at
	trade := &ledger.Trade{
		AgentID:    agentID,
		MarketID:   marketID,
		Action:     action,
		Side:       ledger.SideYes,
		SizeUSD:    sizeD,
		Price:      priceD,
		Shares:     sizeD.Div(priceD),
		Status:     ledger.TradeExecuted,
		CreatedAt:  at,
		ExecutedAt: &now,
	}
	require.NoError(t, repo.InsertTrade(context.Background(), trade))
}

func TestForAgent_RealizedPnL(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMem()
	agent := &ledger.Agent{
		Name:           "quant-alpha",
		InitialCapital: decimal.NewFromInt(500),
		CurrentCapital: decimal.NewFromInt(512),
		Active:         true,
	}
	require.NoError(t, repo.UpsertAgentByName(ctx, agent))

	base := time.Now().UTC().Add(-time.Hour)
	// Buy 125 shares at 0.40, sell them at 0.50: realized +12.50.
	insertExecuted(t, repo, agent.ID, "mkt-1", ledger.ActionBuy, 50, 0.40, base)
	insertExecuted(t, repo, agent.ID, "mkt-1", ledger.ActionSell, 62.5, 0.50, base.Add(time.Minute))
	// Buy 100 shares at 0.30, sell at 0.20: realized -10.
	insertExecuted(t, repo, agent.ID, "mkt-2", ledger.ActionBuy, 30, 0.30, base.Add(2*time.Minute))
	insertExecuted(t, repo, agent.ID, "mkt-2", ledger.ActionSell, 20, 0.20, base.Add(3*time.Minute))

	// One rejected attempt for the counters.
	require.NoError(t, repo.InsertTrade(ctx, &ledger.Trade{
		AgentID:   agent.ID,
		MarketID:  "mkt-3",
		Action:    ledger.ActionBuy,
		Side:      ledger.SideYes,
		SizeUSD:   decimal.NewFromInt(900),
		Status:    ledger.TradeFailed,
		Error:     "size exceeds limit",
		CreatedAt: base.Add(4 * time.Minute),
	}))

	svc := NewService(repo)
	r, err := svc.ForAgent(ctx, agent)
	require.NoError(t, err)

	assert.Equal(t, 5, r.TotalTrades)
	assert.Equal(t, 4, r.ExecutedTrades)
	assert.Equal(t, 1, r.FailedTrades)
	assert.Equal(t, 1, r.WinningSells)
	assert.Equal(t, 1, r.LosingSells)
	assert.InDelta(t, 50.0, r.WinRate, 0.001)
	// +12.5 on mkt-1, -10 on mkt-2.
	assert.True(t, r.RealizedPnL.Equal(decimal.NewFromFloat(2.5)), "got %s", r.RealizedPnL)
	assert.True(t, r.Turnover.Equal(decimal.NewFromFloat(162.5)), "got %s", r.Turnover)
}

func TestForAllAgents(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMem()
	for _, name := range []string{"bull", "bear"} {
		require.NoError(t, repo.UpsertAgentByName(ctx, &ledger.Agent{
			Name:           name,
			InitialCapital: decimal.NewFromInt(500),
			CurrentCapital: decimal.NewFromInt(500),
			Active:         true,
		}))
	}

	svc := NewService(repo)
	reports, err := svc.ForAllAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}
