package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/alert"
	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/decision"
	"github.com/your-org/agent-arena-bot/internal/engine"
	"github.com/your-org/agent-arena-bot/internal/events"
	"github.com/your-org/agent-arena-bot/internal/intel"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/internal/metrics"
)

type stubIntel struct {
	mu          sync.Mutex
	snapshot    *intel.Snapshot
	err         error
	block       chan struct{}
	hasDeadline bool
}

func (s *stubIntel) Snapshot(ctx context.Context) (*intel.Snapshot, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	// A real fetch fails immediately on a dead context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	_, s.hasDeadline = ctx.Deadline()
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

func (s *stubIntel) sawDeadline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasDeadline
}

type stubProvider struct {
	response string
	err      error
}

func (p *stubProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

const buyResponse = `{"action":"BUY","marketId":"mkt-1","side":"YES","sizeUsd":50,"maxPrice":0.9,"reasoning":"momentum"}`

func goodSnapshot() *intel.Snapshot {
	return &intel.Snapshot{
		Markets: []ledger.Market{{
			ID:        "mkt-1",
			Question:  "Will it happen?",
			YesPrice:  decimal.NewFromFloat(0.40),
			NoPrice:   decimal.NewFromFloat(0.60),
			Liquidity: decimal.NewFromInt(5000),
		}},
		News:      []string{"headline"},
		FetchedAt: time.Now().UTC(),
	}
}

func agentConfig(name, provider string) config.AgentConfig {
	return config.AgentConfig{
		Name:           name,
		Provider:       provider,
		Model:          "stub",
		Strategy:       "buy monotonically",
		InitialCapital: config.NewDecimalFromString("500"),
		Active:         config.FlexBool(true),
	}
}

type fixture struct {
	orch *Orchestrator
	repo *ledger.InMem
}

func newFixture(t *testing.T, provider intel.Provider, registry *decision.Registry, agents []config.AgentConfig) *fixture {
	t.Helper()
	repo := ledger.NewInMem()
	log := zap.NewNop()
	risk := config.RiskConfig{
		MaxTradeFraction: config.NewDecimalFromString("0.1"),
		MinLiquidity:     config.NewDecimalFromString("1000"),
		DustEpsilon:      config.NewDecimalFromString("0.000001"),
	}
	m := metrics.NewEngine(repo, log)
	a := alert.NewEngine(repo, events.Discard{}, nil, log)
	exec := engine.NewSimExecutionEngine(repo, m, a, risk, log)
	decider := decision.NewEngine(registry, risk.MaxTradeFraction.Decimal(), log)
	orch := New(repo, provider, decider, exec, a, events.Discard{},
		config.OrchestratorConfig{IntervalMinutes: 60, CycleTimeoutSeconds: 30}, agents, log)
	return &fixture{orch: orch, repo: repo}
}

func TestTriggerCycle_FailureIsolation(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("broken", &stubProvider{err: errors.New("model unavailable")})
	registry.Register("working", &stubProvider{response: buyResponse})

	fix := newFixture(t, &stubIntel{snapshot: goodSnapshot()}, registry, []config.AgentConfig{
		agentConfig("agent-a", "broken"),
		agentConfig("agent-b", "working"),
	})
	ctx := context.Background()

	require.NoError(t, fix.orch.TriggerCycle(ctx))
	fix.orch.Stop()
	fix.orch.Wait()

	cycles, err := fix.repo.RecentCycles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, ledger.CycleCompleted, cycles[0].Status)
	assert.Equal(t, 1, cycles[0].TradesExecuted, "agent-b must still trade")
	assert.Equal(t, 1, cycles[0].Errors, "agent-a's failure is counted")

	agents, err := fix.repo.ListAgents(ctx, true)
	require.NoError(t, err)
	for _, a := range agents {
		if a.Name == "agent-b" {
			assert.True(t, a.CurrentCapital.Equal(decimal.NewFromInt(450)), "got %s", a.CurrentCapital)
		}
	}
}

func TestTriggerCycle_IntelFailureTerminatesCycle(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: buyResponse})

	fix := newFixture(t, &stubIntel{err: errors.New("all sources down")}, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})
	ctx := context.Background()

	require.NoError(t, fix.orch.TriggerCycle(ctx))
	fix.orch.Stop()
	fix.orch.Wait()

	cycles, err := fix.repo.RecentCycles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, ledger.CycleFailed, cycles[0].Status, "cycle must reach a terminal status")
	assert.NotNil(t, cycles[0].CompletedAt)
	assert.Equal(t, 1, cycles[0].Errors)
}

func TestRunCycle_OverlapCoalesced(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: `{"action":"HOLD","reasoning":"wait"}`})

	block := make(chan struct{})
	provider := &stubIntel{snapshot: goodSnapshot(), block: block}
	fix := newFixture(t, provider, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, fix.orch.Start(ctx))
	}()

	// Wait for the first cycle to be in flight, stuck in the intel fetch.
	require.Eventually(t, func() bool { return fix.orch.CycleNumber() == 1 },
		time.Second, 5*time.Millisecond)

	// Triggering during the in-flight cycle must be coalesced, not stacked.
	require.NoError(t, fix.orch.TriggerCycle(ctx))
	assert.Equal(t, int64(1), fix.orch.CycleNumber())

	close(block)
	<-done
	fix.orch.Stop()
	fix.orch.Wait()

	cycles, err := fix.repo.RecentCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 1, "overlapping trigger must not create a second cycle")
}

func TestScheduledCyclesOutliveStartContext(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: buyResponse})

	fix := newFixture(t, &stubIntel{snapshot: goodSnapshot()}, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})

	// Start through a request-scoped context, the way the HTTP control
	// surface does, and cancel it once the "request" returns.
	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fix.orch.Start(reqCtx))
	cancel()

	// The next cycle takes the same path as a timer tick and must be
	// unaffected by the dead caller context.
	require.NoError(t, fix.orch.TriggerCycle(reqCtx))
	fix.orch.Stop()
	fix.orch.Wait()

	cycles, err := fix.repo.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	for _, c := range cycles {
		assert.Equal(t, ledger.CycleCompleted, c.Status, "cycle %d", c.Number)
		assert.Zero(t, c.Errors, "cycle %d", c.Number)
	}
}

func TestRunCycle_CarriesCycleDeadline(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: `{"action":"HOLD","reasoning":"wait"}`})

	provider := &stubIntel{snapshot: goodSnapshot()}
	fix := newFixture(t, provider, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})

	require.NoError(t, fix.orch.TriggerCycle(context.Background()))
	fix.orch.Stop()
	fix.orch.Wait()

	assert.True(t, provider.sawDeadline(), "cycle body must run under the configured timeout")
}

func TestStart_ResumesCycleCounter(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: `{"action":"HOLD","reasoning":"wait"}`})

	fix := newFixture(t, &stubIntel{snapshot: goodSnapshot()}, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})
	ctx := context.Background()

	require.NoError(t, fix.repo.InsertCycle(ctx, &ledger.TickCycle{
		Number:    7,
		Status:    ledger.CycleCompleted,
		StartedAt: time.Now().UTC(),
	}))

	require.NoError(t, fix.orch.Start(ctx))
	assert.Equal(t, int64(8), fix.orch.CycleNumber())
	fix.orch.Stop()
	fix.orch.Wait()
}

func TestStartStop_Idempotent(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: `{"action":"HOLD","reasoning":"wait"}`})

	fix := newFixture(t, &stubIntel{snapshot: goodSnapshot()}, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})
	ctx := context.Background()

	require.NoError(t, fix.orch.Start(ctx))
	assert.True(t, fix.orch.IsActive())

	// Second Start is a warning no-op and must not run another cycle.
	require.NoError(t, fix.orch.Start(ctx))
	assert.Equal(t, int64(1), fix.orch.CycleNumber())

	fix.orch.Stop()
	fix.orch.Stop()
	fix.orch.Wait()
	assert.False(t, fix.orch.IsActive())
}

func TestStart_UpsertsAgentsIdempotently(t *testing.T) {
	registry := decision.NewRegistry(nil)
	registry.Register("working", &stubProvider{response: `{"action":"HOLD","reasoning":"wait"}`})

	fix := newFixture(t, &stubIntel{snapshot: goodSnapshot()}, registry,
		[]config.AgentConfig{agentConfig("agent-a", "working")})
	ctx := context.Background()

	require.NoError(t, fix.orch.Start(ctx))
	fix.orch.Stop()
	fix.orch.Wait()

	require.NoError(t, fix.orch.Start(ctx))
	fix.orch.Stop()
	fix.orch.Wait()

	agents, err := fix.repo.ListAgents(ctx, false)
	require.NoError(t, err)
	assert.Len(t, agents, 1, "restart must not duplicate the roster")
}
