// Package orchestrator owns the trading cycle: scheduling, the per-cycle
// routine, and the control surface exposed to the HTTP layer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/alert"
	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/decision"
	"github.com/your-org/agent-arena-bot/internal/engine"
	"github.com/your-org/agent-arena-bot/internal/events"
	"github.com/your-org/agent-arena-bot/internal/intel"
	"github.com/your-org/agent-arena-bot/internal/ledger"
)

const (
	defaultInterval     = 15 * time.Minute
	defaultCycleTimeout = 10 * time.Minute
)

// Orchestrator drives the periodic trading cycle. One cycle body runs at a
// time: overlapping invocations, whether from the timer or a manual trigger,
// are coalesced, never interleaved against the same ledger rows.
type Orchestrator struct {
	repo     ledger.Repository
	intel    intel.Provider
	decider  *decision.Engine
	executor engine.ExecutionEngine
	alerts   *alert.Engine
	pub      events.Publisher
	agents       []config.AgentConfig
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	active   bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	inFlight atomic.Bool
	cycleNum atomic.Int64
}

// New assembles an orchestrator. Non-positive interval or cycle timeout
// values fall back to the defaults.
func New(
	repo ledger.Repository,
	provider intel.Provider,
	decider *decision.Engine,
	executor engine.ExecutionEngine,
	alerts *alert.Engine,
	pub events.Publisher,
	cfg config.OrchestratorConfig,
	agents []config.AgentConfig,
	logger *zap.Logger,
) *Orchestrator {
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = defaultInterval
	}
	cycleTimeout := time.Duration(cfg.CycleTimeoutSeconds) * time.Second
	if cycleTimeout <= 0 {
		cycleTimeout = defaultCycleTimeout
	}
	return &Orchestrator{
		repo:         repo,
		intel:        provider,
		decider:      decider,
		executor:     executor,
		alerts:       alerts,
		pub:          pub,
		agents:       agents,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger.Named("orchestrator"),
	}
}

// Start resumes the cycle counter from the last persisted cycle, upserts the
// configured agents, runs one cycle immediately, and arms the timer. Calling
// Start on a running orchestrator is a warning no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		o.logger.Warn("Start called while already running")
		return nil
	}

	last, err := o.repo.LatestCycleNumber(ctx)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: resume cycle counter: %w", err)
	}
	o.cycleNum.Store(last)

	if err := o.ensureAgents(ctx); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: ensure agents: %w", err)
	}

	o.active = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	o.logger.Info("Orchestrator started",
		zap.Int64("resume_from_cycle", last),
		zap.Duration("interval", o.interval),
		zap.Int("agents", len(o.agents)),
	)

	o.runCycle()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.runCycle()
			case <-stopCh:
				return
			}
		}
	}()
	return nil
}

// Stop disarms the timer. Idempotent; an in-flight cycle runs to completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active {
		return
	}
	o.active = false
	close(o.stopCh)
	o.logger.Info("Orchestrator stopped")
}

// Wait blocks until the scheduler goroutine has exited after Stop.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	doneCh := o.doneCh
	o.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}
}

// TriggerCycle starts the orchestrator when inactive; when running it
// executes one extra cycle immediately, independent of the timer phase.
func (o *Orchestrator) TriggerCycle(ctx context.Context) error {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if !active {
		return o.Start(ctx)
	}
	o.runCycle()
	return nil
}

// IsActive reports whether the scheduler is armed.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// CycleNumber returns the number of the most recently started cycle.
func (o *Orchestrator) CycleNumber() int64 {
	return o.cycleNum.Load()
}

// ensureAgents upserts every configured agent by name so restarts never
// duplicate the roster.
func (o *Orchestrator) ensureAgents(ctx context.Context) error {
	for _, ac := range o.agents {
		agent := &ledger.Agent{
			Name:           ac.Name,
			Provider:       ac.Provider,
			Model:          ac.Model,
			Strategy:       ac.Strategy,
			InitialCapital: ac.InitialCapital.Decimal(),
			CurrentCapital: ac.InitialCapital.Decimal(),
			Active:         ac.Active.Bool(),
		}
		if err := o.repo.UpsertAgentByName(ctx, agent); err != nil {
			return fmt.Errorf("upsert agent %s: %w", ac.Name, err)
		}
	}
	return nil
}

// runCycle guards cycle entry with the in-flight flag and recovers panics so
// the timer always survives. Overlapping invocations are skipped.
//
// Cycles never borrow a caller's context: a control request that has already
// returned must not cancel scheduled work. The per-cycle timeout bounds a
// hung provider or venue call instead.
func (o *Orchestrator) runCycle() {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Warn("Cycle already in flight, coalescing trigger",
			zap.Int64("cycle", o.cycleNum.Load()))
		return
	}
	defer o.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), o.cycleTimeout)
	defer cancel()

	num := o.cycleNum.Add(1)
	cycle := &ledger.TickCycle{
		Number:    num,
		Status:    ledger.CycleRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.repo.InsertCycle(ctx, cycle); err != nil {
		o.logger.Error("Failed to create cycle record", zap.Int64("cycle", num), zap.Error(err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Cycle panicked", zap.Int64("cycle", num), zap.Any("panic", r))
			cycle.Errors++
			o.finalize(ctx, cycle, ledger.CycleFailed)
		}
	}()

	o.logger.Info("Cycle started", zap.Int64("cycle", num))
	o.pub.Publish(events.TypeCycleStart, map[string]any{"cycle": num})

	status := o.cycleBody(ctx, cycle)
	o.finalize(ctx, cycle, status)
}

// cycleBody runs the work of one cycle and returns the terminal status.
func (o *Orchestrator) cycleBody(ctx context.Context, cycle *ledger.TickCycle) ledger.CycleStatus {
	snapshot, err := o.intel.Snapshot(ctx)
	if err != nil {
		o.logger.Error("Intelligence fetch failed", zap.Int64("cycle", cycle.Number), zap.Error(err))
		cycle.Errors++
		return ledger.CycleFailed
	}
	if snapshot.Partial {
		cycle.Errors++
	}

	for i := range snapshot.Markets {
		if err := o.repo.UpsertMarket(ctx, &snapshot.Markets[i]); err != nil {
			o.logger.Error("Market upsert failed",
				zap.String("market", snapshot.Markets[i].ID), zap.Error(err))
			cycle.Errors++
		}
	}
	cycle.MarketsProcessed = len(snapshot.Markets)
	brief := snapshot.FormatBrief()

	agents, err := o.repo.ListAgents(ctx, true)
	if err != nil {
		o.logger.Error("Agent roster load failed", zap.Int64("cycle", cycle.Number), zap.Error(err))
		cycle.Errors++
		return ledger.CycleFailed
	}

	for i := range agents {
		agent := &agents[i]
		if err := o.agentTurn(ctx, agent, brief, cycle); err != nil {
			// Ledger faults abort the cycle; per-agent failures were
			// already counted inside the turn.
			o.logger.Error("Cycle aborted by ledger fault",
				zap.Int64("cycle", cycle.Number), zap.String("agent", agent.Name), zap.Error(err))
			cycle.Errors++
			return ledger.CycleFailed
		}
	}

	if err := o.executor.RevalueOpenPositions(ctx); err != nil {
		o.logger.Error("Revaluation failed", zap.Int64("cycle", cycle.Number), zap.Error(err))
		cycle.Errors++
		return ledger.CycleFailed
	}

	return ledger.CycleCompleted
}

// agentTurn runs one agent's decide/execute sequence. Decision failures are
// isolated to the agent; only ledger faults propagate.
func (o *Orchestrator) agentTurn(ctx context.Context, agent *ledger.Agent, brief string, cycle *ledger.TickCycle) error {
	open, err := o.repo.OpenPositionsByAgent(ctx, agent.ID)
	if err != nil {
		return fmt.Errorf("open positions for %s: %w", agent.Name, err)
	}

	action, err := o.decider.Decide(ctx, agent, len(open), brief)
	if err != nil {
		o.logger.Warn("Decision failed, skipping agent",
			zap.Int64("cycle", cycle.Number), zap.String("agent", agent.Name), zap.Error(err))
		cycle.Errors++
		return nil
	}
	if action.IsHold() {
		o.logger.Debug("Agent holds", zap.Int64("cycle", cycle.Number), zap.String("agent", agent.Name))
		return nil
	}

	res, err := o.executor.Execute(ctx, agent.ID, action, cycle.Number)
	if err != nil {
		return fmt.Errorf("execute for %s: %w", agent.Name, err)
	}
	if res.Executed {
		cycle.TradesExecuted++
		o.pub.Publish(events.TypeNewTrade, res.Trade)
		o.pub.Publish(events.TypeAgentUpdate, agent)
	} else {
		cycle.Errors++
	}
	return nil
}

// finalize writes the terminal cycle state, runs the cycle-level alert
// checks, and publishes the summary event with the roster and its latest
// metrics.
func (o *Orchestrator) finalize(ctx context.Context, cycle *ledger.TickCycle, status ledger.CycleStatus) {
	now := time.Now().UTC()
	cycle.Status = status
	cycle.CompletedAt = &now
	if err := o.repo.UpdateCycle(ctx, cycle); err != nil {
		o.logger.Error("Failed to finalize cycle record",
			zap.Int64("cycle", cycle.Number), zap.Error(err))
	}

	o.alerts.OnCycleComplete(ctx, cycle)

	type agentSummary struct {
		Agent   ledger.Agent               `json:"agent"`
		Metrics *ledger.PerformanceMetrics `json:"metrics,omitempty"`
	}
	var roster []agentSummary
	agents, err := o.repo.ListAgents(ctx, false)
	if err != nil {
		o.logger.Error("Roster load for summary failed", zap.Error(err))
	} else {
		for _, a := range agents {
			m, err := o.repo.LatestMetricsByAgent(ctx, a.ID)
			if err != nil && !errors.Is(err, ledger.ErrNotFound) {
				o.logger.Warn("Metrics load for summary failed",
					zap.String("agent", a.Name), zap.Error(err))
			}
			roster = append(roster, agentSummary{Agent: a, Metrics: m})
		}
	}

	o.pub.Publish(events.TypeCycleComplete, map[string]any{
		"cycle":             cycle.Number,
		"status":            cycle.Status,
		"markets_processed": cycle.MarketsProcessed,
		"trades_executed":   cycle.TradesExecuted,
		"errors":            cycle.Errors,
		"agents":            roster,
	})

	o.logger.Info("Cycle finished",
		zap.Int64("cycle", cycle.Number),
		zap.String("status", string(cycle.Status)),
		zap.Int("markets", cycle.MarketsProcessed),
		zap.Int("trades", cycle.TradesExecuted),
		zap.Int("errors", cycle.Errors),
	)
}
