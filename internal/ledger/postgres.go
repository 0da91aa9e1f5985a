package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pool abstracts the pgxpool.Pool for testability.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres implements Repository on top of a pgx connection pool.
type Postgres struct {
	pool   Pool
	logger *zap.Logger
}

// NewPostgres creates a Repository backed by the given pool.
func NewPostgres(pool Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// Connect opens a pgx pool for the given DSN and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger.Connect: ping: %w", err)
	}
	return pool, nil
}

// --- agents ---

// UpsertAgentByName inserts the agent if no row with its name exists,
// otherwise refreshes provider/model/strategy/active and leaves the capital
// columns untouched. The agent's ID is filled in either way.
func (p *Postgres) UpsertAgentByName(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `
        INSERT INTO agents (id, name, provider, model, strategy, initial_capital, current_capital, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
        ON CONFLICT (name) DO UPDATE SET
            provider   = excluded.provider,
            model      = excluded.model,
            strategy   = excluded.strategy,
            active     = excluded.active,
            updated_at = excluded.updated_at
        RETURNING id, initial_capital, current_capital, created_at;
    `
	err := p.pool.QueryRow(ctx, query,
		agent.ID, agent.Name, agent.Provider, agent.Model, agent.Strategy,
		agent.InitialCapital, agent.CurrentCapital, agent.Active, now,
	).Scan(&agent.ID, &agent.InitialCapital, &agent.CurrentCapital, &agent.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger.UpsertAgentByName %q: %w", agent.Name, err)
	}
	agent.UpdatedAt = now
	return nil
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
        SELECT id, name, provider, model, strategy, initial_capital, current_capital, active, created_at, updated_at
        FROM agents WHERE id = $1;
    `
	var a Agent
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Provider, &a.Model, &a.Strategy,
		&a.InitialCapital, &a.CurrentCapital, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger.GetAgent %q: %w", id, err)
	}
	return &a, nil
}

func (p *Postgres) ListAgents(ctx context.Context, activeOnly bool) ([]Agent, error) {
	query := `
        SELECT id, name, provider, model, strategy, initial_capital, current_capital, active, created_at, updated_at
        FROM agents
    `
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC;`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger.ListAgents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Provider, &a.Model, &a.Strategy,
			&a.InitialCapital, &a.CurrentCapital, &a.Active, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger.ListAgents: scan: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (p *Postgres) UpdateAgentCapital(ctx context.Context, id string, capital decimal.Decimal) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE agents SET current_capital = $2, updated_at = $3 WHERE id = $1`,
		id, capital, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ledger.UpdateAgentCapital %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- markets ---

func (p *Postgres) UpsertMarket(ctx context.Context, market *Market) error {
	market.UpdatedAt = time.Now().UTC()
	query := `
        INSERT INTO markets (id, question, category, yes_price, no_price, liquidity, volume_24h, resolved, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            question   = excluded.question,
            category   = excluded.category,
            yes_price  = excluded.yes_price,
            no_price   = excluded.no_price,
            liquidity  = excluded.liquidity,
            volume_24h = excluded.volume_24h,
            resolved   = excluded.resolved,
            updated_at = excluded.updated_at;
    `
	_, err := p.pool.Exec(ctx, query,
		market.ID, market.Question, market.Category, market.YesPrice, market.NoPrice,
		market.Liquidity, market.Volume24h, market.Resolved, market.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger.UpsertMarket %q: %w", market.ID, err)
	}
	return nil
}

func (p *Postgres) GetMarket(ctx context.Context, id string) (*Market, error) {
	var m Market
	err := p.pool.QueryRow(ctx, `
        SELECT id, question, category, yes_price, no_price, liquidity, volume_24h, resolved, updated_at
        FROM markets WHERE id = $1;
    `, id).Scan(
		&m.ID, &m.Question, &m.Category, &m.YesPrice, &m.NoPrice,
		&m.Liquidity, &m.Volume24h, &m.Resolved, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger.GetMarket %q: %w", id, err)
	}
	return &m, nil
}

func (p *Postgres) ListMarkets(ctx context.Context) ([]Market, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT id, question, category, yes_price, no_price, liquidity, volume_24h, resolved, updated_at
        FROM markets ORDER BY updated_at DESC;
    `)
	if err != nil {
		return nil, fmt.Errorf("ledger.ListMarkets: %w", err)
	}
	defer rows.Close()

	var markets []Market
	for rows.Next() {
		var m Market
		if err := rows.Scan(
			&m.ID, &m.Question, &m.Category, &m.YesPrice, &m.NoPrice,
			&m.Liquidity, &m.Volume24h, &m.Resolved, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger.ListMarkets: scan: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// --- trades ---

const tradeColumns = `id, agent_id, market_id, action, side, size_usd, price, shares, reasoning, status, error, cycle_number, created_at, executed_at`

func (p *Postgres) InsertTrade(ctx context.Context, trade *Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
        INSERT INTO trades (`+tradeColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
    `,
		trade.ID, trade.AgentID, trade.MarketID, trade.Action, trade.Side,
		trade.SizeUSD, trade.Price, trade.Shares, trade.Reasoning,
		trade.Status, trade.Error, trade.CycleNumber, trade.CreatedAt, trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger.InsertTrade: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateTrade(ctx context.Context, trade *Trade) error {
	tag, err := p.pool.Exec(ctx, `
        UPDATE trades
        SET price = $2, shares = $3, status = $4, error = $5, executed_at = $6
        WHERE id = $1;
    `, trade.ID, trade.Price, trade.Shares, trade.Status, trade.Error, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("ledger.UpdateTrade %q: %w", trade.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) TradesByAgent(ctx context.Context, agentID string) ([]Trade, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT `+tradeColumns+` FROM trades
        WHERE agent_id = $1
        ORDER BY created_at ASC;
    `, agentID)
	if err != nil {
		return nil, fmt.Errorf("ledger.TradesByAgent: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (p *Postgres) ExecutedTradesByAgent(ctx context.Context, agentID string) ([]Trade, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT `+tradeColumns+` FROM trades
        WHERE agent_id = $1 AND status = 'executed'
        ORDER BY created_at ASC;
    `, agentID)
	if err != nil {
		return nil, fmt.Errorf("ledger.ExecutedTradesByAgent: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (p *Postgres) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT `+tradeColumns+` FROM trades
        ORDER BY created_at DESC LIMIT $1;
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.RecentTrades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID, &t.AgentID, &t.MarketID, &t.Action, &t.Side,
			&t.SizeUSD, &t.Price, &t.Shares, &t.Reasoning,
			&t.Status, &t.Error, &t.CycleNumber, &t.CreatedAt, &t.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- positions ---

const positionColumns = `id, agent_id, market_id, side, shares, entry_price, current_value, unrealized_pnl, updated_at`

func (p *Postgres) PositionFor(ctx context.Context, agentID, marketID string, side Side) (*Position, error) {
	var pos Position
	err := p.pool.QueryRow(ctx, `
        SELECT `+positionColumns+` FROM positions
        WHERE agent_id = $1 AND market_id = $2 AND side = $3;
    `, agentID, marketID, side).Scan(
		&pos.ID, &pos.AgentID, &pos.MarketID, &pos.Side,
		&pos.Shares, &pos.EntryPrice, &pos.CurrentValue, &pos.UnrealizedPnL, &pos.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger.PositionFor: %w", err)
	}
	return &pos, nil
}

func (p *Postgres) UpsertPosition(ctx context.Context, pos *Position) error {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	pos.UpdatedAt = time.Now().UTC()
	_, err := p.pool.Exec(ctx, `
        INSERT INTO positions (`+positionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (agent_id, market_id, side) DO UPDATE SET
            shares         = excluded.shares,
            entry_price    = excluded.entry_price,
            current_value  = excluded.current_value,
            unrealized_pnl = excluded.unrealized_pnl,
            updated_at     = excluded.updated_at;
    `,
		pos.ID, pos.AgentID, pos.MarketID, pos.Side,
		pos.Shares, pos.EntryPrice, pos.CurrentValue, pos.UnrealizedPnL, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger.UpsertPosition: %w", err)
	}
	return nil
}

func (p *Postgres) DeletePosition(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger.DeletePosition %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) OpenPositionsByAgent(ctx context.Context, agentID string) ([]Position, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT `+positionColumns+` FROM positions WHERE agent_id = $1 ORDER BY updated_at ASC;
    `, agentID)
	if err != nil {
		return nil, fmt.Errorf("ledger.OpenPositionsByAgent: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (p *Postgres) AllOpenPositions(ctx context.Context) ([]Position, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT `+positionColumns+` FROM positions ORDER BY updated_at ASC;
    `)
	if err != nil {
		return nil, fmt.Errorf("ledger.AllOpenPositions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]Position, error) {
	var positions []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(
			&pos.ID, &pos.AgentID, &pos.MarketID, &pos.Side,
			&pos.Shares, &pos.EntryPrice, &pos.CurrentValue, &pos.UnrealizedPnL, &pos.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// --- performance metrics ---

func (p *Postgres) AppendMetrics(ctx context.Context, m *PerformanceMetrics) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
        INSERT INTO performance_metrics
            (id, agent_id, net_pnl, sharpe_ratio, max_drawdown, win_rate,
             total_trades, executed_trades, failed_trades, turnover, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `,
		m.ID, m.AgentID, m.NetPnL, m.SharpeRatio, m.MaxDrawdown, m.WinRate,
		m.TotalTrades, m.ExecutedTrades, m.FailedTrades, m.Turnover, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger.AppendMetrics: %w", err)
	}
	return nil
}

func (p *Postgres) LatestMetricsByAgent(ctx context.Context, agentID string) (*PerformanceMetrics, error) {
	var m PerformanceMetrics
	err := p.pool.QueryRow(ctx, `
        SELECT id, agent_id, net_pnl, sharpe_ratio, max_drawdown, win_rate,
               total_trades, executed_trades, failed_trades, turnover, created_at
        FROM performance_metrics
        WHERE agent_id = $1
        ORDER BY created_at DESC LIMIT 1;
    `, agentID).Scan(
		&m.ID, &m.AgentID, &m.NetPnL, &m.SharpeRatio, &m.MaxDrawdown, &m.WinRate,
		&m.TotalTrades, &m.ExecutedTrades, &m.FailedTrades, &m.Turnover, &m.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger.LatestMetricsByAgent: %w", err)
	}
	return &m, nil
}

// --- tick cycles ---

func (p *Postgres) LatestCycleNumber(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) FROM tick_cycles`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger.LatestCycleNumber: %w", err)
	}
	return n, nil
}

func (p *Postgres) InsertCycle(ctx context.Context, c *TickCycle) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO tick_cycles (number, status, markets_processed, trades_executed, errors, started_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `, c.Number, c.Status, c.MarketsProcessed, c.TradesExecuted, c.Errors, c.StartedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("ledger.InsertCycle %d: %w", c.Number, err)
	}
	return nil
}

func (p *Postgres) UpdateCycle(ctx context.Context, c *TickCycle) error {
	tag, err := p.pool.Exec(ctx, `
        UPDATE tick_cycles
        SET status = $2, markets_processed = $3, trades_executed = $4, errors = $5, completed_at = $6
        WHERE number = $1;
    `, c.Number, c.Status, c.MarketsProcessed, c.TradesExecuted, c.Errors, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("ledger.UpdateCycle %d: %w", c.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RecentCycles(ctx context.Context, limit int) ([]TickCycle, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT number, status, markets_processed, trades_executed, errors, started_at, completed_at
        FROM tick_cycles ORDER BY number DESC LIMIT $1;
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.RecentCycles: %w", err)
	}
	defer rows.Close()

	var cycles []TickCycle
	for rows.Next() {
		var c TickCycle
		if err := rows.Scan(
			&c.Number, &c.Status, &c.MarketsProcessed, &c.TradesExecuted,
			&c.Errors, &c.StartedAt, &c.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger.RecentCycles: scan: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// --- alerts ---

func (p *Postgres) InsertAlert(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
        INSERT INTO alerts (id, type, severity, title, message, agent_id, trade_id, market_id, is_read, is_dismissed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `,
		a.ID, a.Type, a.Severity, a.Title, a.Message,
		a.AgentID, a.TradeID, a.MarketID, a.IsRead, a.IsDismissed, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger.InsertAlert: %w", err)
	}
	return nil
}

func (p *Postgres) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT id, type, severity, title, message, agent_id, trade_id, market_id, is_read, is_dismissed, created_at
        FROM alerts ORDER BY created_at DESC LIMIT $1;
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.RecentAlerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(
			&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message,
			&a.AgentID, &a.TradeID, &a.MarketID, &a.IsRead, &a.IsDismissed, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger.RecentAlerts: scan: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (p *Postgres) MarkAlertRead(ctx context.Context, id string) error {
	return p.setAlertFlag(ctx, id, "is_read")
}

func (p *Postgres) MarkAlertDismissed(ctx context.Context, id string) error {
	return p.setAlertFlag(ctx, id, "is_dismissed")
}

func (p *Postgres) setAlertFlag(ctx context.Context, id, column string) error {
	// column is one of two compile-time constants, never user input.
	tag, err := p.pool.Exec(ctx, `UPDATE alerts SET `+column+` = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger.setAlertFlag %s %q: %w", column, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the underlying connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
	if p.logger != nil {
		p.logger.Info("ledger: connection pool closed")
	}
}
