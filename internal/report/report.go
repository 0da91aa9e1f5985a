// Package report builds per-agent performance reports from the trade
// history. Unlike the live win-rate proxy, these figures come from realized
// PnL per closed lot, computed at average cost.
package report

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

// AgentReport holds the realized performance of one agent.
type AgentReport struct {
	AgentName      string          `json:"agent_name"`
	CurrentCapital decimal.Decimal `json:"current_capital"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	TotalTrades    int             `json:"total_trades"`
	ExecutedTrades int             `json:"executed_trades"`
	FailedTrades   int             `json:"failed_trades"`
	WinningSells   int             `json:"winning_sells"`
	LosingSells    int             `json:"losing_sells"`
	WinRate        float64         `json:"win_rate"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Turnover       decimal.Decimal `json:"turnover"`
}

// Service generates reports from the ledger.
type Service struct {
	repo ledger.Repository
}

// NewService creates a new report service.
func NewService(repo ledger.Repository) *Service {
	return &Service{repo: repo}
}

// ForAgent analyzes one agent's full trade history.
func (s *Service) ForAgent(ctx context.Context, agent *ledger.Agent) (*AgentReport, error) {
	trades, err := s.repo.TradesByAgent(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("report: trades for %s: %w", agent.Name, err)
	}

	r := &AgentReport{
		AgentName:      agent.Name,
		CurrentCapital: agent.CurrentCapital,
		InitialCapital: agent.InitialCapital,
		TotalTrades:    len(trades),
		RealizedPnL:    decimal.Zero,
		Turnover:       decimal.Zero,
	}

	// Average-cost book per (market, side); a SELL realizes
	// (price - entry) * soldShares against it.
	type key struct {
		market string
		side   ledger.Side
	}
	type book struct {
		shares decimal.Decimal
		entry  decimal.Decimal
	}
	books := make(map[key]book)

	for _, t := range trades {
		switch t.Status {
		case ledger.TradeFailed:
			r.FailedTrades++
			continue
		case ledger.TradeExecuted:
			r.ExecutedTrades++
		default:
			continue
		}
		r.Turnover = r.Turnover.Add(t.SizeUSD)
		if !t.Price.IsPositive() {
			continue
		}

		k := key{market: t.MarketID, side: t.Side}
		b := books[k]
		switch t.Action {
		case ledger.ActionBuy:
			total := b.shares.Add(t.Shares)
			cost := b.shares.Mul(b.entry).Add(t.SizeUSD)
			books[k] = book{shares: total, entry: cost.Div(total)}
		case ledger.ActionSell:
			realized := t.Price.Sub(b.entry).Mul(t.Shares)
			r.RealizedPnL = r.RealizedPnL.Add(realized)
			if realized.IsPositive() {
				r.WinningSells++
			} else if realized.IsNegative() {
				r.LosingSells++
			}
			remaining := b.shares.Sub(t.Shares)
			if remaining.IsPositive() {
				books[k] = book{shares: remaining, entry: b.entry}
			} else {
				delete(books, k)
			}
		}
	}

	if closed := r.WinningSells + r.LosingSells; closed > 0 {
		r.WinRate = float64(r.WinningSells) / float64(closed) * 100
	}
	return r, nil
}

// ForAllAgents builds a report for every agent on the roster.
func (s *Service) ForAllAgents(ctx context.Context) ([]AgentReport, error) {
	agents, err := s.repo.ListAgents(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("report: list agents: %w", err)
	}
	reports := make([]AgentReport, 0, len(agents))
	for i := range agents {
		r, err := s.ForAgent(ctx, &agents[i])
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, nil
}
