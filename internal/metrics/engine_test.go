package metrics

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

func newAgent(t *testing.T, repo ledger.Repository, name string, initial, current float64) *ledger.Agent {
	t.Helper()
	agent := &ledger.Agent{
		Name:           name,
		Provider:       "openai",
		Model:          "gpt-4o",
		InitialCapital: decimal.NewFromFloat(initial),
		CurrentCapital: decimal.NewFromFloat(current),
		Active:         true,
	}
	require.NoError(t, repo.UpsertAgentByName(context.Background(), agent))
	return agent
}

func TestRecompute_NetPnLIncludesUnrealized(t *testing.T) {
	repo := ledger.NewInMem()
	eng := NewEngine(repo, zap.NewNop())
	agent := newAgent(t, repo, "quant-alpha", 500, 450)

	require.NoError(t, repo.UpsertPosition(context.Background(), &ledger.Position{
		AgentID:       agent.ID,
		MarketID:      "mkt-1",
		Side:          ledger.SideYes,
		Shares:        decimal.NewFromInt(125),
		EntryPrice:    decimal.NewFromFloat(0.40),
		UnrealizedPnL: decimal.NewFromFloat(12.5),
	}))

	m, err := eng.Recompute(context.Background(), agent)
	require.NoError(t, err)

	// (450 - 500) + 12.5
	assert.True(t, m.NetPnL.Equal(decimal.NewFromFloat(-37.5)), "got %s", m.NetPnL)
}

func TestRecompute_WinRateBounds(t *testing.T) {
	repo := ledger.NewInMem()
	eng := NewEngine(repo, zap.NewNop())

	// A catastrophic loss must not push the proxy below the floor.
	loser := newAgent(t, repo, "bear", 500, 50)
	m, err := eng.Recompute(context.Background(), loser)
	require.NoError(t, err)
	assert.True(t, m.WinRate.Equal(decimal.NewFromFloat(0.30)), "got %s", m.WinRate)

	// A runaway win must not push it above the ceiling.
	winner := newAgent(t, repo, "bull", 500, 1500)
	m, err = eng.Recompute(context.Background(), winner)
	require.NoError(t, err)
	assert.True(t, m.WinRate.Equal(decimal.NewFromFloat(0.70)), "got %s", m.WinRate)

	// A modest gain nudges the 50% baseline proportionally.
	modest := newAgent(t, repo, "steady", 500, 525)
	m, err = eng.Recompute(context.Background(), modest)
	require.NoError(t, err)
	assert.True(t, m.WinRate.Equal(decimal.NewFromFloat(0.55)), "got %s", m.WinRate)
}

func TestRecompute_DrawdownNeverPositive(t *testing.T) {
	repo := ledger.NewInMem()
	eng := NewEngine(repo, zap.NewNop())

	winner := newAgent(t, repo, "bull", 500, 600)
	m, err := eng.Recompute(context.Background(), winner)
	require.NoError(t, err)
	assert.True(t, m.MaxDrawdown.IsZero(), "got %s", m.MaxDrawdown)

	loser := newAgent(t, repo, "bear", 500, 400)
	m, err = eng.Recompute(context.Background(), loser)
	require.NoError(t, err)
	assert.True(t, m.MaxDrawdown.Equal(decimal.NewFromFloat(-0.2)), "got %s", m.MaxDrawdown)
}

func TestRecompute_TurnoverAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMem()
	eng := NewEngine(repo, zap.NewNop())
	agent := newAgent(t, repo, "quant-alpha", 500, 480)

	for _, tr := range []ledger.Trade{
		{AgentID: agent.ID, MarketID: "mkt-1", Action: ledger.ActionBuy, Side: ledger.SideYes, SizeUSD: decimal.NewFromInt(50), Status: ledger.TradeExecuted},
		{AgentID: agent.ID, MarketID: "mkt-2", Action: ledger.ActionBuy, Side: ledger.SideNo, SizeUSD: decimal.NewFromInt(30), Status: ledger.TradeExecuted},
		{AgentID: agent.ID, MarketID: "mkt-3", Action: ledger.ActionBuy, Side: ledger.SideYes, SizeUSD: decimal.NewFromInt(900), Status: ledger.TradeFailed},
	} {
		trade := tr
		require.NoError(t, repo.InsertTrade(ctx, &trade))
	}

	m, err := eng.Recompute(ctx, agent)
	require.NoError(t, err)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.ExecutedTrades)
	assert.Equal(t, 1, m.FailedTrades)
	// Failed attempts never count toward turnover.
	assert.True(t, m.Turnover.Equal(decimal.NewFromInt(80)), "got %s", m.Turnover)
}

func TestRecompute_AppendsWithoutMutatingHistory(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMem()
	eng := NewEngine(repo, zap.NewNop())
	agent := newAgent(t, repo, "quant-alpha", 500, 500)

	first, err := eng.Recompute(ctx, agent)
	require.NoError(t, err)

	agent.CurrentCapital = decimal.NewFromInt(460)
	require.NoError(t, repo.UpdateAgentCapital(ctx, agent.ID, agent.CurrentCapital))

	second, err := eng.Recompute(ctx, agent)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	history := repo.MetricsHistory(agent.ID)
	require.Len(t, history, 2)
	assert.True(t, history[0].NetPnL.IsZero())
	assert.True(t, history[1].NetPnL.Equal(decimal.NewFromInt(-40)))

	latest, err := repo.LatestMetricsByAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}
