package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

// ErrParse is returned when a provider's output cannot be turned into a
// canonical action.
var ErrParse = errors.New("decision: unparsable response")

// Action is the canonical, validated trading instruction derived from a
// provider's raw response. It is transient: produced here, consumed
// immediately by the trade executor.
type Action struct {
	Action    ledger.Action
	MarketID  string
	Side      ledger.Side
	SizeUSD   decimal.Decimal
	MaxPrice  decimal.Decimal
	Reasoning string
}

// IsHold reports whether the action is a no-op.
func (a *Action) IsHold() bool { return a.Action == ledger.ActionHold }

// Engine builds prompts, invokes the agent's provider, and parses the
// response into a canonical action.
type Engine struct {
	registry         *Registry
	maxTradeFraction decimal.Decimal
	logger           *zap.Logger
}

// NewEngine creates a decision engine.
func NewEngine(registry *Registry, maxTradeFraction decimal.Decimal, logger *zap.Logger) *Engine {
	return &Engine{
		registry:         registry,
		maxTradeFraction: maxTradeFraction,
		logger:           logger,
	}
}

// Decide obtains one canonical action for the agent. Provider and parse
// failures are returned as errors and never panic past this boundary; the
// caller treats them as a per-agent failure and moves on.
func (e *Engine) Decide(ctx context.Context, agent *ledger.Agent, openPositions int, brief string) (*Action, error) {
	provider, err := e.registry.Lookup(agent.Provider)
	if err != nil {
		return nil, err
	}

	sizeCap := agent.InitialCapital.Mul(e.maxTradeFraction)
	prompt := e.buildPrompt(agent, openPositions, sizeCap, brief)

	raw, err := provider.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("decision.Decide agent %q: %w", agent.Name, err)
	}

	action, err := e.parseResponse(raw, sizeCap)
	if err != nil {
		e.logger.Warn("decision: rejected provider response",
			zap.String("agent", agent.Name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("decision.Decide agent %q: %w", agent.Name, err)
	}
	return action, nil
}

func (e *Engine) buildPrompt(agent *ledger.Agent, openPositions int, sizeCap decimal.Decimal, brief string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a trading agent on binary prediction markets.\n", agent.Name)
	fmt.Fprintf(&b, "Strategy: %s\n\n", agent.Strategy)
	fmt.Fprintf(&b, "Current capital: $%s\n", agent.CurrentCapital.StringFixed(2))
	fmt.Fprintf(&b, "Open positions: %d\n\n", openPositions)
	b.WriteString(brief)
	b.WriteString("\n## Instructions\n")
	b.WriteString("Propose exactly ONE action for this cycle.\n")
	fmt.Fprintf(&b, "Maximum trade size: $%s.\n", sizeCap.StringFixed(2))
	b.WriteString("You must include your reasoning.\n")
	b.WriteString("Respond with ONLY a JSON object in this exact schema:\n")
	b.WriteString(`{"action": "BUY"|"SELL"|"HOLD", "marketId": "...", "side": "YES"|"NO", "sizeUsd": 0, "maxPrice": 1.0, "reasoning": "..."}` + "\n")
	b.WriteString(`For HOLD, marketId and side may be empty and sizeUsd must be 0.` + "\n")

	return b.String()
}

// rawAction is the provider's JSON output before validation.
type rawAction struct {
	Action    string           `json:"action"`
	MarketID  string           `json:"marketId"`
	Side      string           `json:"side"`
	SizeUSD   *decimal.Decimal `json:"sizeUsd"`
	MaxPrice  *decimal.Decimal `json:"maxPrice"`
	Reasoning string           `json:"reasoning"`
}

// parseResponse strips optional fenced-code-block wrapping, parses the JSON,
// validates the enumerated fields, clamps sizeUsd to the per-trade cap, and
// defaults maxPrice to 1.0 when absent.
func (e *Engine) parseResponse(raw string, sizeCap decimal.Decimal) (*Action, error) {
	text := stripCodeFence(raw)

	var parsed rawAction
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var action ledger.Action
	switch strings.ToUpper(strings.TrimSpace(parsed.Action)) {
	case string(ledger.ActionBuy):
		action = ledger.ActionBuy
	case string(ledger.ActionSell):
		action = ledger.ActionSell
	case string(ledger.ActionHold):
		action = ledger.ActionHold
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrParse, parsed.Action)
	}

	if action == ledger.ActionHold {
		return &Action{
			Action:    ledger.ActionHold,
			SizeUSD:   decimal.Zero,
			MaxPrice:  decimal.New(1, 0),
			Reasoning: parsed.Reasoning,
		}, nil
	}

	if parsed.MarketID == "" {
		return nil, fmt.Errorf("%w: %s without marketId", ErrParse, action)
	}
	var side ledger.Side
	switch strings.ToUpper(strings.TrimSpace(parsed.Side)) {
	case string(ledger.SideYes):
		side = ledger.SideYes
	case string(ledger.SideNo):
		side = ledger.SideNo
	default:
		return nil, fmt.Errorf("%w: %s without valid side (%q)", ErrParse, action, parsed.Side)
	}
	if parsed.SizeUSD == nil || !parsed.SizeUSD.IsPositive() {
		return nil, fmt.Errorf("%w: %s without positive sizeUsd", ErrParse, action)
	}

	size := *parsed.SizeUSD
	if size.GreaterThan(sizeCap) {
		size = sizeCap
	}

	maxPrice := decimal.New(1, 0)
	if parsed.MaxPrice != nil && parsed.MaxPrice.IsPositive() {
		maxPrice = *parsed.MaxPrice
	}

	return &Action{
		Action:    action,
		MarketID:  parsed.MarketID,
		Side:      side,
		SizeUSD:   size,
		MaxPrice:  maxPrice,
		Reasoning: parsed.Reasoning,
	}, nil
}

// stripCodeFence removes a ```json ... ``` (or plain ```) wrapper if the
// response arrived fenced, which chat models do routinely.
func stripCodeFence(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
