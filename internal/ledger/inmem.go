package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InMem is an in-memory implementation of Repository. It backs tests and the
// database-less dry-run mode.
type InMem struct {
	mu        sync.RWMutex
	agents    map[string]Agent // keyed by ID
	markets   map[string]Market
	trades    map[string]Trade
	positions map[string]Position
	metrics   []PerformanceMetrics
	cycles    map[int64]TickCycle
	alerts    map[string]Alert
}

// NewInMem creates an empty in-memory repository.
func NewInMem() *InMem {
	return &InMem{
		agents:    make(map[string]Agent),
		markets:   make(map[string]Market),
		trades:    make(map[string]Trade),
		positions: make(map[string]Position),
		cycles:    make(map[int64]TickCycle),
		alerts:    make(map[string]Alert),
	}
}

func (r *InMem) UpsertAgentByName(ctx context.Context, agent *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, existing := range r.agents {
		if existing.Name == agent.Name {
			existing.Provider = agent.Provider
			existing.Model = agent.Model
			existing.Strategy = agent.Strategy
			existing.Active = agent.Active
			existing.UpdatedAt = now
			r.agents[id] = existing
			*agent = existing
			return nil
		}
	}

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	agent.CreatedAt = now
	agent.UpdatedAt = now
	r.agents[agent.ID] = *agent
	return nil
}

func (r *InMem) GetAgent(ctx context.Context, id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *InMem) ListAgents(ctx context.Context, activeOnly bool) ([]Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var agents []Agent
	for _, a := range r.agents {
		if activeOnly && !a.Active {
			continue
		}
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

func (r *InMem) UpdateAgentCapital(ctx context.Context, id string, capital decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.CurrentCapital = capital
	a.UpdatedAt = time.Now().UTC()
	r.agents[id] = a
	return nil
}

func (r *InMem) UpsertMarket(ctx context.Context, market *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	market.UpdatedAt = time.Now().UTC()
	r.markets[market.ID] = *market
	return nil
}

func (r *InMem) GetMarket(ctx context.Context, id string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *InMem) ListMarkets(ctx context.Context) ([]Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var markets []Market
	for _, m := range r.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

func (r *InMem) InsertTrade(ctx context.Context, trade *Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}
	r.trades[trade.ID] = *trade
	return nil
}

func (r *InMem) UpdateTrade(ctx context.Context, trade *Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trades[trade.ID]; !ok {
		return ErrNotFound
	}
	r.trades[trade.ID] = *trade
	return nil
}

func (r *InMem) TradesByAgent(ctx context.Context, agentID string) ([]Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var trades []Trade
	for _, t := range r.trades {
		if t.AgentID == agentID {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.Before(trades[j].CreatedAt) })
	return trades, nil
}

func (r *InMem) ExecutedTradesByAgent(ctx context.Context, agentID string) ([]Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var trades []Trade
	for _, t := range r.trades {
		if t.AgentID == agentID && t.Status == TradeExecuted {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.Before(trades[j].CreatedAt) })
	return trades, nil
}

func (r *InMem) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var trades []Trade
	for _, t := range r.trades {
		trades = append(trades, t)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.After(trades[j].CreatedAt) })
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (r *InMem) PositionFor(ctx context.Context, agentID, marketID string, side Side) (*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.positions {
		if p.AgentID == agentID && p.MarketID == marketID && p.Side == side {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMem) UpsertPosition(ctx context.Context, pos *Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.positions {
		if existing.AgentID == pos.AgentID && existing.MarketID == pos.MarketID && existing.Side == pos.Side {
			pos.ID = id
			break
		}
	}
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	pos.UpdatedAt = time.Now().UTC()
	r.positions[pos.ID] = *pos
	return nil
}

func (r *InMem) DeletePosition(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[id]; !ok {
		return ErrNotFound
	}
	delete(r.positions, id)
	return nil
}

func (r *InMem) OpenPositionsByAgent(ctx context.Context, agentID string) ([]Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var positions []Position
	for _, p := range r.positions {
		if p.AgentID == agentID {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (r *InMem) AllOpenPositions(ctx context.Context) ([]Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var positions []Position
	for _, p := range r.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (r *InMem) AppendMetrics(ctx context.Context, m *PerformanceMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.metrics = append(r.metrics, *m)
	return nil
}

func (r *InMem) LatestMetricsByAgent(ctx context.Context, agentID string) (*PerformanceMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.metrics) - 1; i >= 0; i-- {
		if r.metrics[i].AgentID == agentID {
			m := r.metrics[i]
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

// MetricsHistory returns all snapshots for an agent in append order.
// Test helper, not part of the Repository interface.
func (r *InMem) MetricsHistory(agentID string) []PerformanceMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PerformanceMetrics
	for _, m := range r.metrics {
		if m.AgentID == agentID {
			out = append(out, m)
		}
	}
	return out
}

func (r *InMem) LatestCycleNumber(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max int64
	for n := range r.cycles {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (r *InMem) InsertCycle(ctx context.Context, c *TickCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles[c.Number] = *c
	return nil
}

func (r *InMem) UpdateCycle(ctx context.Context, c *TickCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cycles[c.Number]; !ok {
		return ErrNotFound
	}
	r.cycles[c.Number] = *c
	return nil
}

func (r *InMem) RecentCycles(ctx context.Context, limit int) ([]TickCycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var cycles []TickCycle
	for _, c := range r.cycles {
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Number > cycles[j].Number })
	if limit > 0 && len(cycles) > limit {
		cycles = cycles[:limit]
	}
	return cycles, nil
}

func (r *InMem) InsertAlert(ctx context.Context, a *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.alerts[a.ID] = *a
	return nil
}

func (r *InMem) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var alerts []Alert
	for _, a := range r.alerts {
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (r *InMem) MarkAlertRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsRead = true
	r.alerts[id] = a
	return nil
}

func (r *InMem) MarkAlertDismissed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsDismissed = true
	r.alerts[id] = a
	return nil
}

// Ping always succeeds for the in-memory store.
func (r *InMem) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (r *InMem) Close() {}
