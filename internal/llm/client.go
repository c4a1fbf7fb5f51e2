// Package llm is the boundary to the hosted language-model capability.
// Backend adapters request schema-guided output where the API supports it,
// decode responses leniently, and classify failures so the pipeline can
// decide retry policy. Adapters never retry internally.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"lexiscan/internal/config"
)

// Shape declares the JSON object a stage expects back from the model.
type Shape struct {
	Name   string
	Schema map[string]any
}

// Request is one model invocation.
type Request struct {
	// Stage names the pipeline stage issuing the call, for logging.
	Stage     string
	Prompt    string
	System    string
	MaxTokens int
	// Shape constrains the response. Nil means free text.
	Shape *Shape
}

// Result is the decoded outcome of an invocation. When the response cannot
// be decoded into the declared shape, Malformed is set and Raw carries the
// model's text; the pipeline degrades rather than failing.
type Result struct {
	Fields    map[string]any
	Raw       string
	Malformed bool
	// Reason explains the decode failure when Malformed is set.
	Reason string
}

// ModelClient is the single seam to the external model. Tests substitute a
// deterministic fake.
type ModelClient interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
	Model() string
	Close()
}

// New builds the configured backend adapter wrapped with the process-wide
// rate limiter and invocation statistics.
func New(cfg config.Config, log *slog.Logger) (ModelClient, *Stats, error) {
	var inner ModelClient
	switch cfg.Backend {
	case config.BackendGemini:
		inner = NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.LLMTimeout)
	case config.BackendAnthropic:
		inner = NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL, cfg.LLMTimeout)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	stats := NewStats(time.Hour)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	return &limitedClient{
		inner:   inner,
		limiter: limiter,
		stats:   stats,
		log:     log,
	}, stats, nil
}
