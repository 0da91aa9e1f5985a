// Package decision turns an agent's view of the world into a single
// validated trading action. Each agent is backed by one LLM provider; the
// engine is agnostic to which concrete provider that is.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/your-org/agent-arena-bot/internal/config"
)

// ErrProvider wraps every failure coming out of a provider call so callers
// can distinguish provider trouble from parse/validation trouble.
var ErrProvider = errors.New("decision: provider failure")

// Provider produces a response string for a prompt. One implementation per
// agent "model"; adding a provider never touches the engine.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Registry maps provider names to Provider implementations.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the configured provider endpoints.
func NewRegistry(cfgs []config.ProviderConfig) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(cfgs))}
	for _, pc := range cfgs {
		r.providers[pc.Name] = NewOpenAIProvider(pc)
	}
	return r
}

// Register adds or replaces a provider under the given name.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no provider registered as %q", ErrProvider, name)
	}
	return p, nil
}

// OpenAIProvider speaks the OpenAI-compatible chat-completions protocol.
// It covers OpenAI, DeepSeek, and any other endpoint that implements the
// same wire format; only BaseURL and model differ.
type OpenAIProvider struct {
	client  *resty.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIProvider creates a provider for one configured endpoint.
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &OpenAIProvider{
		client:  client,
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		limiter: rate.NewLimiter(perSecond, 1),
	}
}

// Generate sends the prompt and returns the raw completion text. All failure
// modes (transport, HTTP status, API error body, empty completion) surface
// as typed errors wrapping ErrProvider, never as silent empty results.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrProvider, err)
	}

	var out chatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: p.model,
			Messages: []chatMessage{
				{Role: "user", Content: prompt},
			},
			Temperature: 0.7,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("%w: %s", ErrProvider, msg)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrProvider)
	}
	return out.Choices[0].Message.Content, nil
}
