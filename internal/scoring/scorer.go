// Package scoring estimates each customer's interest in a product or
// campaign and maintains the artifact's aggregate like-estimate.
package scoring

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/llm"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/prompt"
	"github.com/sells-group/tailorreach/pkg/anthropic"
)

// ErrNoCustomers is returned when a tenant has no customers to score.
var ErrNoCustomers = eris.New("scoring: no customers found")

// PromptFunc renders the prompt for one customer.
type PromptFunc func(c model.Customer) string

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	Model        string
	MaxTokens    int64
	Temperature  float64
	Concurrency  int
	BatchTimeout time.Duration
	Policy       Policy
	// RequestsPerSecond is the gateway's sustained rate; zero means
	// unlimited.
	RequestsPerSecond float64
}

// ScorerConfigFromConfig reads the scoring settings from cfg.
func ScorerConfigFromConfig(cfg *config.Config) (ScorerConfig, error) {
	policy, err := ParsePolicy(cfg.Scoring.UnparseablePolicy)
	if err != nil {
		return ScorerConfig{}, err
	}
	return ScorerConfig{
		Model:        cfg.Anthropic.ScoringModel,
		MaxTokens:    cfg.Anthropic.ScoreMaxTokens,
		Temperature:  cfg.Anthropic.Temperature,
		Concurrency:  cfg.Scoring.MaxConcurrency,
		BatchTimeout: time.Duration(cfg.Scoring.BatchTimeoutSecs) * time.Second,
		Policy:       policy,

		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
	}, nil
}

// Batch is the outcome of one fan-out.
type Batch struct {
	Results []model.AnalysisResult
	Failed  int
	Usage   model.TokenUsage
}

// Scorer fans one prompt per customer out to the completion API.
type Scorer struct {
	llm llm.Completer
	cfg ScorerConfig
	rnd func() float64
}

// NewScorer creates a Scorer.
func NewScorer(c llm.Completer, cfg ScorerConfig) *Scorer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyError
	}
	return &Scorer{llm: c, cfg: cfg}
}

// Score returns exactly one result per customer, in input order. A
// customer whose call fails, times out or cannot be parsed gets
// model.FailedResult; siblings are unaffected. Score itself fails only
// when customers is empty or ctx is cancelled.
func (s *Scorer) Score(ctx context.Context, build PromptFunc, customers []model.Customer) (*Batch, error) {
	if len(customers) == 0 {
		return nil, ErrNoCustomers
	}

	if need, over := s.cfg.pacedDuration(len(customers)); over {
		zap.L().Warn("scoring: batch exceeds rate budget, tail customers will time out",
			zap.Int("customers", len(customers)),
			zap.Float64("requests_per_second", s.cfg.RequestsPerSecond),
			zap.Duration("needed", need),
			zap.Duration("batch_timeout", s.cfg.BatchTimeout),
		)
	}

	batchCtx := ctx
	if s.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.cfg.BatchTimeout)
		defer cancel()
	}

	batch := &Batch{Results: make([]model.AnalysisResult, len(customers))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(s.cfg.Concurrency)

	for i, c := range customers {
		g.Go(func() error {
			res, usage, err := s.scoreOne(gctx, build(c), c)
			if err != nil {
				zap.L().Warn("scoring: customer failed",
					zap.String("customer_id", c.ID),
					zap.Error(err),
				)
				res = model.FailedResult(c)
			}

			mu.Lock()
			batch.Results[i] = res
			batch.Usage.Add(usage)
			if res.Failed {
				batch.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scoring: batch cancelled")
	}
	return batch, nil
}

// pacedDuration is the least time n calls take at the configured rate,
// and whether that exceeds the batch timeout.
func (c ScorerConfig) pacedDuration(n int) (time.Duration, bool) {
	if c.RequestsPerSecond <= 0 || n <= 0 {
		return 0, false
	}
	need := time.Duration(float64(n) / c.RequestsPerSecond * float64(time.Second))
	return need, c.BatchTimeout > 0 && need > c.BatchTimeout
}

func (s *Scorer) scoreOne(ctx context.Context, text string, c model.Customer) (model.AnalysisResult, model.TokenUsage, error) {
	if err := ctx.Err(); err != nil {
		return model.AnalysisResult{}, model.TokenUsage{}, eris.Wrap(err, "scoring: batch deadline")
	}

	temp := s.cfg.Temperature
	resp, err := s.llm.Complete(ctx, "score", anthropic.MessageRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		System:      []anthropic.SystemBlock{{Text: prompt.ScoringSystem}},
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	})
	if err != nil {
		return model.AnalysisResult{}, model.TokenUsage{}, err
	}
	usage := llm.Usage(s.cfg.Model, resp.Usage)

	var (
		likelihood float64
		reason     string
	)
	switch s.cfg.Policy {
	case PolicyRandom:
		likelihood, reason = ParseWithFallback(resp.Text(), s.rnd)
	default:
		likelihood, reason, err = Parse(resp.Text())
		if err != nil {
			return model.AnalysisResult{}, usage, err
		}
	}

	return model.AnalysisResult{
		CustomerID:   c.ID,
		CustomerName: c.Name,
		Likelihood:   likelihood,
		Reason:       reason,
	}, usage, nil
}
