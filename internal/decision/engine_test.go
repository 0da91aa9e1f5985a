package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

type stubProvider struct {
	response string
	err      error
	prompt   string
}

func (s *stubProvider) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func newTestEngine(p Provider) *Engine {
	reg := NewRegistry(nil)
	reg.Register("stub", p)
	return NewEngine(reg, decimal.RequireFromString("0.1"), zap.NewNop())
}

func testAgent() *ledger.Agent {
	return &ledger.Agent{
		Name:           "quant-alpha",
		Provider:       "stub",
		Strategy:       "buy undervalued YES",
		InitialCapital: decimal.RequireFromString("500"),
		CurrentCapital: decimal.RequireFromString("480"),
	}
}

func TestDecide_ParsesPlainJSON(t *testing.T) {
	p := &stubProvider{response: `{"action":"BUY","marketId":"mkt-1","side":"YES","sizeUsd":40,"maxPrice":0.55,"reasoning":"cheap"}`}
	action, err := newTestEngine(p).Decide(context.Background(), testAgent(), 2, "## Markets\n")
	require.NoError(t, err)

	assert.Equal(t, ledger.ActionBuy, action.Action)
	assert.Equal(t, "mkt-1", action.MarketID)
	assert.Equal(t, ledger.SideYes, action.Side)
	assert.True(t, action.SizeUSD.Equal(decimal.RequireFromString("40")))
	assert.True(t, action.MaxPrice.Equal(decimal.RequireFromString("0.55")))
	assert.Equal(t, "cheap", action.Reasoning)
	assert.False(t, action.IsHold())
}

func TestDecide_StripsCodeFence(t *testing.T) {
	p := &stubProvider{response: "```json\n{\"action\":\"SELL\",\"marketId\":\"mkt-2\",\"side\":\"NO\",\"sizeUsd\":25,\"reasoning\":\"take profit\"}\n```"}
	action, err := newTestEngine(p).Decide(context.Background(), testAgent(), 0, "")
	require.NoError(t, err)

	assert.Equal(t, ledger.ActionSell, action.Action)
	assert.Equal(t, "mkt-2", action.MarketID)
	// maxPrice absent defaults to 1.0.
	assert.True(t, action.MaxPrice.Equal(decimal.New(1, 0)))
}

func TestDecide_ClampsOversizeToCap(t *testing.T) {
	// Cap is 10% of 500 = $50; the provider asks for $400.
	p := &stubProvider{response: `{"action":"BUY","marketId":"mkt-1","side":"YES","sizeUsd":400,"reasoning":"all in"}`}
	action, err := newTestEngine(p).Decide(context.Background(), testAgent(), 0, "")
	require.NoError(t, err)
	assert.True(t, action.SizeUSD.Equal(decimal.RequireFromString("50")),
		"got %s", action.SizeUSD)
}

func TestDecide_HoldNeedsNoMarket(t *testing.T) {
	p := &stubProvider{response: `{"action":"hold","reasoning":"nothing attractive"}`}
	action, err := newTestEngine(p).Decide(context.Background(), testAgent(), 1, "")
	require.NoError(t, err)

	assert.True(t, action.IsHold())
	assert.True(t, action.SizeUSD.IsZero())
	assert.Equal(t, "nothing attractive", action.Reasoning)
}

func TestDecide_RejectsJunk(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"prose", "I think we should buy mkt-1 because it looks cheap."},
		{"unknown action", `{"action":"SHORT","marketId":"mkt-1","side":"YES","sizeUsd":10}`},
		{"buy without market", `{"action":"BUY","side":"YES","sizeUsd":10}`},
		{"buy without side", `{"action":"BUY","marketId":"mkt-1","side":"MAYBE","sizeUsd":10}`},
		{"zero size", `{"action":"BUY","marketId":"mkt-1","side":"YES","sizeUsd":0}`},
		{"negative size", `{"action":"SELL","marketId":"mkt-1","side":"NO","sizeUsd":-5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &stubProvider{response: tc.response}
			_, err := newTestEngine(p).Decide(context.Background(), testAgent(), 0, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestDecide_PropagatesProviderFailure(t *testing.T) {
	p := &stubProvider{err: errors.New("connection refused")}
	_, err := newTestEngine(p).Decide(context.Background(), testAgent(), 0, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrParse)
}

func TestDecide_UnknownProvider(t *testing.T) {
	eng := NewEngine(NewRegistry(nil), decimal.RequireFromString("0.1"), zap.NewNop())
	agent := testAgent()
	agent.Provider = "missing"
	_, err := eng.Decide(context.Background(), agent, 0, "")
	assert.ErrorIs(t, err, ErrProvider)
}

func TestDecide_PromptCarriesContext(t *testing.T) {
	p := &stubProvider{response: `{"action":"HOLD","reasoning":"ok"}`}
	_, err := newTestEngine(p).Decide(context.Background(), testAgent(), 3, "## Markets\nmkt-1 YES 0.40\n")
	require.NoError(t, err)

	assert.Contains(t, p.prompt, "quant-alpha")
	assert.Contains(t, p.prompt, "buy undervalued YES")
	assert.Contains(t, p.prompt, "$480.00")
	assert.Contains(t, p.prompt, "Open positions: 3")
	assert.Contains(t, p.prompt, "mkt-1 YES 0.40")
	assert.Contains(t, p.prompt, "Maximum trade size: $50.00")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1}  "))
}
