package intel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/your-org/agent-arena-bot/internal/config"
	"github.com/your-org/agent-arena-bot/internal/ledger"
)

// marketPayload is the wire shape of one market from the data API.
// Prices and sizes arrive as decimal strings; they are never parsed through
// binary floats.
type marketPayload struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Category  string `json:"category"`
	YesPrice  string `json:"yesPrice"`
	NoPrice   string `json:"noPrice"`
	Liquidity string `json:"liquidity"`
	Volume24h string `json:"volume24h"`
	Resolved  bool   `json:"resolved"`
}

type headlinePayload struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

type sentimentPayload struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
}

// HTTPMarketSource fetches markets from the market-data API.
type HTTPMarketSource struct {
	client     *resty.Client
	url        string
	maxMarkets int
	limiter    *rate.Limiter
}

// HTTPContextSource fetches news headlines or social sentiment lines.
type HTTPContextSource struct {
	client  *resty.Client
	url     string
	kind    string // "news" | "social"
	limiter *rate.Limiter
}

// NewSources builds the three intel sub-sources from config. The rate
// limiter is shared: the sources hit the same upstream infrastructure.
// The context sources are nil when their URLs are not configured.
func NewSources(cfg config.IntelConfig) (MarketSource, ContextSource, ContextSource) {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Accept", "application/json")

	markets := &HTTPMarketSource{
		client:     client,
		url:        cfg.MarketsURL,
		maxMarkets: cfg.MaxMarkets,
		limiter:    limiter,
	}

	var news, social ContextSource
	if cfg.NewsURL != "" {
		news = &HTTPContextSource{client: client, url: cfg.NewsURL, kind: "news", limiter: limiter}
	}
	if cfg.SocialURL != "" {
		social = &HTTPContextSource{client: client, url: cfg.SocialURL, kind: "social", limiter: limiter}
	}
	return markets, news, social
}

// FetchMarkets retrieves and parses the current market list.
func (s *HTTPMarketSource) FetchMarkets(ctx context.Context) ([]ledger.Market, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("intel.FetchMarkets: rate limiter: %w", err)
	}

	var payload []marketPayload
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("intel.FetchMarkets: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("intel.FetchMarkets: upstream returned %s", resp.Status())
	}

	markets := make([]ledger.Market, 0, len(payload))
	for _, p := range payload {
		m, err := p.toMarket()
		if err != nil {
			// One malformed market must not sink the batch.
			continue
		}
		markets = append(markets, m)
		if s.maxMarkets > 0 && len(markets) >= s.maxMarkets {
			break
		}
	}
	return markets, nil
}

func (p marketPayload) toMarket() (ledger.Market, error) {
	if p.ID == "" {
		return ledger.Market{}, fmt.Errorf("intel: market missing id")
	}
	yes, err := decimal.NewFromString(p.YesPrice)
	if err != nil {
		return ledger.Market{}, fmt.Errorf("intel: market %s yesPrice %q: %w", p.ID, p.YesPrice, err)
	}
	no, err := decimal.NewFromString(p.NoPrice)
	if err != nil {
		return ledger.Market{}, fmt.Errorf("intel: market %s noPrice %q: %w", p.ID, p.NoPrice, err)
	}
	liq, err := decimal.NewFromString(p.Liquidity)
	if err != nil {
		liq = decimal.Zero
	}
	vol, err := decimal.NewFromString(p.Volume24h)
	if err != nil {
		vol = decimal.Zero
	}

	one := decimal.New(1, 0)
	if yes.IsNegative() || yes.GreaterThan(one) || no.IsNegative() || no.GreaterThan(one) {
		return ledger.Market{}, fmt.Errorf("intel: market %s price out of [0,1]", p.ID)
	}

	return ledger.Market{
		ID:        p.ID,
		Question:  p.Question,
		Category:  p.Category,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: liq,
		Volume24h: vol,
		Resolved:  p.Resolved,
	}, nil
}

// FetchLines retrieves the context lines for the brief.
func (s *HTTPContextSource) FetchLines(ctx context.Context) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("intel.FetchLines(%s): rate limiter: %w", s.kind, err)
	}

	switch s.kind {
	case "news":
		var payload []headlinePayload
		resp, err := s.client.R().SetContext(ctx).SetResult(&payload).Get(s.url)
		if err != nil {
			return nil, fmt.Errorf("intel.FetchLines(news): %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("intel.FetchLines(news): upstream returned %s", resp.Status())
		}
		lines := make([]string, 0, len(payload))
		for _, h := range payload {
			if h.Source != "" {
				lines = append(lines, fmt.Sprintf("%s (%s)", h.Title, h.Source))
			} else {
				lines = append(lines, h.Title)
			}
		}
		return lines, nil

	default:
		var payload []sentimentPayload
		resp, err := s.client.R().SetContext(ctx).SetResult(&payload).Get(s.url)
		if err != nil {
			return nil, fmt.Errorf("intel.FetchLines(%s): %w", s.kind, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("intel.FetchLines(%s): upstream returned %s", s.kind, resp.Status())
		}
		lines := make([]string, 0, len(payload))
		for _, p := range payload {
			lines = append(lines, fmt.Sprintf("%s: %s", p.Topic, p.Summary))
		}
		return lines, nil
	}
}
