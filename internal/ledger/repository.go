package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("ledger: not found")

// Repository is the narrow persistence contract consumed by the core.
// Two implementations exist: Postgres (production) and InMem (tests and
// database-less dry runs).
type Repository interface {
	// Agents.
	UpsertAgentByName(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context, activeOnly bool) ([]Agent, error)
	UpdateAgentCapital(ctx context.Context, id string, capital decimal.Decimal) error

	// Markets.
	UpsertMarket(ctx context.Context, market *Market) error
	GetMarket(ctx context.Context, id string) (*Market, error)
	ListMarkets(ctx context.Context) ([]Market, error)

	// Trades.
	InsertTrade(ctx context.Context, trade *Trade) error
	UpdateTrade(ctx context.Context, trade *Trade) error
	TradesByAgent(ctx context.Context, agentID string) ([]Trade, error)
	ExecutedTradesByAgent(ctx context.Context, agentID string) ([]Trade, error)
	RecentTrades(ctx context.Context, limit int) ([]Trade, error)

	// Positions.
	PositionFor(ctx context.Context, agentID, marketID string, side Side) (*Position, error)
	UpsertPosition(ctx context.Context, pos *Position) error
	DeletePosition(ctx context.Context, id string) error
	OpenPositionsByAgent(ctx context.Context, agentID string) ([]Position, error)
	AllOpenPositions(ctx context.Context) ([]Position, error)

	// Performance metrics (append-only time series).
	AppendMetrics(ctx context.Context, m *PerformanceMetrics) error
	LatestMetricsByAgent(ctx context.Context, agentID string) (*PerformanceMetrics, error)

	// Tick cycles.
	LatestCycleNumber(ctx context.Context) (int64, error)
	InsertCycle(ctx context.Context, c *TickCycle) error
	UpdateCycle(ctx context.Context, c *TickCycle) error
	RecentCycles(ctx context.Context, limit int) ([]TickCycle, error)

	// Alerts.
	InsertAlert(ctx context.Context, a *Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)
	MarkAlertRead(ctx context.Context, id string) error
	MarkAlertDismissed(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close()
}
