package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"lexiscan/internal/document"
)

// limitedClient wraps a backend adapter with the process-wide rate limiter,
// invocation statistics, and structured request/response logging. Concurrent
// runs share one limiter so retries in one run cannot starve the others.
type limitedClient struct {
	inner   ModelClient
	limiter *rate.Limiter
	stats   *Stats
	log     *slog.Logger
}

func (c *limitedClient) Invoke(ctx context.Context, req Request) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Wait refuses when the deadline cannot accommodate the next token.
		return nil, &InvocationError{Kind: KindTimeout, Backend: c.inner.Model(), Message: "rate limiter wait", Err: err}
	}

	reqID := uuid.NewString()
	c.log.Info("llm.request",
		"req_id", reqID,
		"stage", req.Stage,
		"model", c.inner.Model(),
		"prompt_tokens_est", document.EstimateTokens(req.Prompt),
	)

	start := time.Now()
	res, err := c.inner.Invoke(ctx, req)
	latencyMs := time.Since(start).Milliseconds()
	c.stats.Record(latencyMs, err == nil)

	if err != nil {
		c.log.Warn("llm.error",
			"req_id", reqID,
			"stage", req.Stage,
			"latency_ms", latencyMs,
			"error", err,
		)
		return nil, err
	}

	c.log.Info("llm.response",
		"req_id", reqID,
		"stage", req.Stage,
		"latency_ms", latencyMs,
		"malformed", res.Malformed,
	)
	return res, nil
}

func (c *limitedClient) Model() string { return c.inner.Model() }

func (c *limitedClient) Close() { c.inner.Close() }
