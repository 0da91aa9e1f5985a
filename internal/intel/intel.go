// Package intel gathers the per-cycle market intelligence snapshot: the
// tradable markets plus the news and social context that goes into each
// agent's decision prompt.
package intel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/ledger"
)

// Snapshot is everything one cycle knows about the outside world.
type Snapshot struct {
	Markets   []ledger.Market
	News      []string
	Social    []string
	FetchedAt time.Time
	// Partial is set when one or more sub-sources failed; the snapshot
	// still carries whatever succeeded.
	Partial bool
}

// Provider produces a snapshot for a cycle.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// MarketSource fetches the current tradable markets.
type MarketSource interface {
	FetchMarkets(ctx context.Context) ([]ledger.Market, error)
}

// ContextSource fetches auxiliary text lines (news headlines, social chatter).
type ContextSource interface {
	FetchLines(ctx context.Context) ([]string, error)
}

// Composite runs the three sub-fetches concurrently and tolerates partial
// failure: a snapshot is returned as long as the market fetch succeeds, and
// an error only when nothing useful could be gathered.
type Composite struct {
	markets MarketSource
	news    ContextSource
	social  ContextSource
	logger  *zap.Logger
}

// NewComposite creates a Composite provider. news and social may be nil.
func NewComposite(markets MarketSource, news, social ContextSource, logger *zap.Logger) *Composite {
	return &Composite{markets: markets, news: news, social: social, logger: logger}
}

// Snapshot fans the sub-fetches out, waits for all of them, and assembles
// whatever succeeded. The sub-sources touch disjoint external resources, so
// running them concurrently is safe.
func (c *Composite) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{FetchedAt: time.Now().UTC()}

	var (
		wg                            sync.WaitGroup
		marketErr, newsErr, socialErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap.Markets, marketErr = c.markets.FetchMarkets(ctx)
	}()

	if c.news != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lines []string
			lines, newsErr = c.news.FetchLines(ctx)
			snap.News = lines
		}()
	}

	if c.social != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lines []string
			lines, socialErr = c.social.FetchLines(ctx)
			snap.Social = lines
		}()
	}

	wg.Wait()

	for _, err := range []error{newsErr, socialErr} {
		if err != nil {
			snap.Partial = true
			c.logger.Warn("intel: context sub-fetch failed", zap.Error(err))
		}
	}

	if marketErr != nil {
		snap.Partial = true
		c.logger.Error("intel: market fetch failed", zap.Error(marketErr))
		if len(snap.News) == 0 && len(snap.Social) == 0 {
			return nil, fmt.Errorf("intel.Snapshot: all sources failed: %w", marketErr)
		}
		return snap, errors.Join(errors.New("intel.Snapshot: market fetch failed"), marketErr)
	}

	return snap, nil
}

// FormatBrief renders the snapshot as the single textual brief consumed by
// the decision engine.
func (s *Snapshot) FormatBrief() string {
	var b strings.Builder

	b.WriteString("## Markets\n")
	if len(s.Markets) == 0 {
		b.WriteString("(no market data available this cycle)\n")
	}
	for _, m := range s.Markets {
		status := "open"
		if m.Resolved {
			status = "resolved"
		}
		fmt.Fprintf(&b, "- id=%s [%s] %q yes=%s no=%s liquidity=%s (%s)\n",
			m.ID, m.Category, m.Question,
			m.YesPrice.StringFixed(3), m.NoPrice.StringFixed(3),
			m.Liquidity.StringFixed(0), status)
	}

	if len(s.News) > 0 {
		b.WriteString("\n## News\n")
		for _, line := range s.News {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	if len(s.Social) > 0 {
		b.WriteString("\n## Social sentiment\n")
		for _, line := range s.Social {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	return b.String()
}
