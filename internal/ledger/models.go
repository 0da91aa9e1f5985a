// Package ledger defines the durable entities of the trading system and the
// repository through which every component reads and writes them. The
// repository is the single source of truth; components never cache
// authoritative state across cycles.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the kind of trading instruction an agent can issue.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// TradeStatus tracks the lifecycle of an attempted trade.
// Transitions: pending -> executed or pending -> failed, exactly once.
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeExecuted TradeStatus = "executed"
	TradeFailed   TradeStatus = "failed"
)

// CycleStatus tracks the lifecycle of one orchestration run.
type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Agent is an independent decision-making entity with its own capital.
// CurrentCapital is mutated only by the trade executor.
type Agent struct {
	ID             string
	Name           string
	Provider       string
	Model          string
	Strategy       string
	InitialCapital decimal.Decimal
	CurrentCapital decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Market is a binary prediction market, refreshed every cycle from the
// intelligence provider and read-only to the core.
type Market struct {
	ID        string
	Question  string
	Category  string
	YesPrice  decimal.Decimal // in [0, 1]
	NoPrice   decimal.Decimal // in [0, 1]
	Liquidity decimal.Decimal
	Volume24h decimal.Decimal
	Resolved  bool
	UpdatedAt time.Time
}

// PriceForSide returns the market's current price on the given side.
func (m Market) PriceForSide(side Side) decimal.Decimal {
	if side == SideNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// Trade is the immutable record of one applied or rejected action.
type Trade struct {
	ID          string
	AgentID     string
	MarketID    string
	Action      Action
	Side        Side
	SizeUSD     decimal.Decimal
	Price       decimal.Decimal
	Shares      decimal.Decimal
	Reasoning   string
	Status      TradeStatus
	Error       string
	CycleNumber int64
	CreatedAt   time.Time
	ExecutedAt  *time.Time
}

// Position is an agent's open exposure to one market side, tracked at a
// volume-weighted average entry price. At most one row exists per
// (agent, market, side).
type Position struct {
	ID            string
	AgentID       string
	MarketID      string
	Side          Side
	Shares        decimal.Decimal
	EntryPrice    decimal.Decimal
	CurrentValue  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	UpdatedAt     time.Time
}

// PerformanceMetrics is one point of an agent's append-only performance
// time series.
type PerformanceMetrics struct {
	ID             string
	AgentID        string
	NetPnL         decimal.Decimal
	SharpeRatio    decimal.Decimal
	MaxDrawdown    decimal.Decimal
	WinRate        decimal.Decimal
	TotalTrades    int
	ExecutedTrades int
	FailedTrades   int
	Turnover       decimal.Decimal
	CreatedAt      time.Time
}

// TickCycle records one orchestration run. Number is monotonic and persisted
// across restarts; terminal statuses are never revisited.
type TickCycle struct {
	Number           int64
	Status           CycleStatus
	MarketsProcessed int
	TradesExecuted   int
	Errors           int
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// Alert is a notification raised by the alert engine. Read/dismiss mutations
// come only through the HTTP API, never from the core.
type Alert struct {
	ID          string
	Type        string
	Severity    Severity
	Title       string
	Message     string
	AgentID     string
	TradeID     string
	MarketID    string
	IsRead      bool
	IsDismissed bool
	CreatedAt   time.Time
}
