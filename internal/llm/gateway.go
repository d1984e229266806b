// Package llm guards outbound completion calls with a rate limiter, retries
// and per-model circuit breakers.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/resilience"
	"github.com/sells-group/tailorreach/pkg/anthropic"
)

// Completer sends a single completion request.
type Completer interface {
	Complete(ctx context.Context, phase string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

// Streamer sends a completion request and emits text as it arrives.
type Streamer interface {
	Stream(ctx context.Context, phase string, req anthropic.MessageRequest, onDelta func(string) error) (*anthropic.MessageResponse, error)
}

// Options configures a Gateway.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	CallTimeout       time.Duration
	Retry             resilience.RetryConfig
	Breaker           resilience.CircuitBreakerConfig
}

// OptionsFromConfig builds gateway options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Burst:             cfg.Anthropic.Burst,
		CallTimeout:       time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		Retry:             resilience.RetryFromConfig(cfg.Retry),
		Breaker:           resilience.BreakerFromConfig(cfg.Circuit),
	}
}

// Gateway is the single path to the completion API.
type Gateway struct {
	client   anthropic.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	retry    resilience.RetryConfig
	breakers *resilience.ServiceBreakers
}

// New wraps client. A non-positive RequestsPerSecond disables rate limiting.
func New(client anthropic.Client, opts Options) *Gateway {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Gateway{
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  opts.CallTimeout,
		retry:    opts.Retry,
		breakers: resilience.NewServiceBreakers(opts.Breaker),
	}
}

// Complete runs one completion through the breaker for req.Model, retrying
// transient failures. Each attempt waits on the limiter and gets its own
// CallTimeout.
func (g *Gateway) Complete(ctx context.Context, phase string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	cb := g.breakers.Get(req.Model)
	retry := g.retry
	retry.OnRetry = resilience.RetryLogger("anthropic", phase)

	resp, err := resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "llm: rate limit wait")
			}
			callCtx, cancel := g.callContext(ctx)
			defer cancel()

			resp, err := g.client.CreateMessage(callCtx, req)
			if err != nil {
				return nil, classify(err)
			}
			return resp, nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "llm: complete %s", phase)
	}

	resp.Usage.LogCost(req.Model, phase)
	return resp, nil
}

// Stream runs a streaming completion. A failed stream is retried only if it
// broke before any text reached onDelta.
func (g *Gateway) Stream(ctx context.Context, phase string, req anthropic.MessageRequest, onDelta func(string) error) (*anthropic.MessageResponse, error) {
	cb := g.breakers.Get(req.Model)
	retry := g.retry
	retry.OnRetry = resilience.RetryLogger("anthropic", phase)

	var emitted bool
	retry.ShouldRetry = func(err error) bool {
		return !emitted && resilience.IsTransient(err)
	}

	resp, err := resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "llm: rate limit wait")
			}
			resp, err := g.client.StreamMessage(ctx, req, func(text string) error {
				emitted = true
				if onDelta == nil {
					return nil
				}
				return onDelta(text)
			})
			if err != nil {
				return nil, classify(err)
			}
			return resp, nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "llm: stream %s", phase)
	}

	resp.Usage.LogCost(req.Model, phase)
	return resp, nil
}

// Breakers reports the state of every per-model circuit breaker.
func (g *Gateway) Breakers() map[string]string {
	return g.breakers.States()
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// classify marks retryable API statuses as transient so the retry and
// breaker layers can tell them from bad requests.
func classify(err error) error {
	code := anthropic.StatusCode(err)
	if code == 0 || !resilience.IsTransientHTTPStatus(code) {
		return err
	}
	zap.L().Debug("llm: transient api status", zap.Int("status", code))
	return resilience.NewTransientError(err, code).WithRetryAfter(anthropic.RetryAfter(err))
}

// Usage converts API token counts into the persisted usage summary.
func Usage(modelID string, u anthropic.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
		OutputTokens: u.OutputTokens,
		Cost:         u.EstimateCost(modelID),
	}
}
