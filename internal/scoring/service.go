package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/events"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/prompt"
	"github.com/sells-group/tailorreach/internal/runlock"
	"github.com/sells-group/tailorreach/internal/store"
)

// Store is the slice of the persistence layer scoring needs.
type Store interface {
	ListCustomers(ctx context.Context, tenantID string, limit int) ([]model.Customer, error)
	GetProduct(ctx context.Context, tenantID, id string) (*model.Product, error)
	GetCampaign(ctx context.Context, tenantID, uid string) (*model.Campaign, error)
	UpdateProductEstimate(ctx context.Context, tenantID, id string, estimate int) error
	UpdateCampaignEstimate(ctx context.Context, tenantID, uid string, estimate int) error
	RecordRun(ctx context.Context, run *model.ScoringRun) error
}

// Service runs scoring for a tenant's artifacts and maintains their
// aggregate like-estimates.
type Service struct {
	store     Store
	scorer    *Scorer
	locker    runlock.Locker
	lockTTL   time.Duration
	publisher events.Publisher
	now       func() time.Time
}

// NewService wires a scoring service. A nil locker serializes runs in
// process; a nil publisher discards events.
func NewService(st Store, scorer *Scorer, locker runlock.Locker, lockTTL time.Duration, pub events.Publisher) *Service {
	if locker == nil {
		locker = runlock.NewMemory()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Service{store: st, scorer: scorer, locker: locker, lockTTL: lockTTL, publisher: pub, now: time.Now}
}

// AnalyzeProduct scores every customer of tenantID against p. A product
// given only by id is loaded first. With persist set, the aggregate is
// written to the product's like-estimate.
func (s *Service) AnalyzeProduct(ctx context.Context, tenantID string, p model.Product, persist bool) (*model.Analysis, error) {
	if p.Name == "" && p.ID != "" {
		stored, err := s.store.GetProduct(ctx, tenantID, p.ID)
		if err != nil {
			return nil, eris.Wrap(err, "scoring: load product")
		}
		p = *stored
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return s.analyze(ctx, tenantID, model.ArtifactProduct, p.ID, persist, func(c model.Customer) string {
		return prompt.Product(c, p)
	})
}

// AnalyzeCampaign scores every customer of tenantID against camp. When p
// is nil and the campaign names a product, that product is loaded as
// context; a missing product is ignored.
func (s *Service) AnalyzeCampaign(ctx context.Context, tenantID string, camp model.Campaign, p *model.Product, persist bool) (*model.Analysis, error) {
	if camp.Name == "" && camp.UID != "" {
		stored, err := s.store.GetCampaign(ctx, tenantID, camp.UID)
		if err != nil {
			return nil, eris.Wrap(err, "scoring: load campaign")
		}
		camp = *stored
	}
	if err := camp.Validate(); err != nil {
		return nil, err
	}
	if p == nil && camp.ProductID != "" {
		stored, err := s.store.GetProduct(ctx, tenantID, camp.ProductID)
		switch {
		case err == nil:
			p = stored
		case errors.Is(err, store.ErrNotFound):
			zap.L().Debug("scoring: campaign product missing", zap.String("product_id", camp.ProductID))
		default:
			return nil, eris.Wrap(err, "scoring: load campaign product")
		}
	}

	return s.analyze(ctx, tenantID, model.ArtifactCampaign, camp.UID, persist, func(c model.Customer) string {
		return prompt.Campaign(c, camp, p)
	})
}

func (s *Service) analyze(ctx context.Context, tenantID string, kind model.ArtifactKind, artifactID string, persist bool, build PromptFunc) (*model.Analysis, error) {
	if persist && artifactID == "" {
		return nil, eris.Wrapf(model.ErrInvalid, "scoring: %s id is required to persist an estimate", kind)
	}
	log := zap.L().With(
		zap.String("tenant_id", tenantID),
		zap.String("kind", string(kind)),
		zap.String("artifact_id", artifactID),
	)

	customers, err := s.store.ListCustomers(ctx, tenantID, 0)
	if err != nil {
		log.Error("scoring: fetch customers failed", zap.Error(err))
		return nil, eris.Wrapf(ErrNoCustomers, "fetch customers: %v", err)
	}
	if len(customers) == 0 {
		return nil, ErrNoCustomers
	}

	if artifactID != "" {
		release, err := s.locker.Acquire(ctx, runlock.Key(tenantID, string(kind), artifactID), s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				log.Warn("scoring: release run lock", zap.Error(relErr))
			}
		}()
	}

	started := s.now()
	run := &model.ScoringRun{
		TenantID:   tenantID,
		Kind:       kind,
		ArtifactID: artifactID,
		Status:     model.RunStatusRunning,
		Customers:  len(customers),
		StartedAt:  started.UTC(),
	}

	batch, err := s.scorer.Score(ctx, build, customers)
	run.Duration = s.now().Sub(started).Milliseconds()
	if err != nil {
		run.Status = model.RunStatusFailed
		s.recordRun(ctx, run)
		return nil, err
	}
	run.Status = model.RunStatusComplete
	run.Failed = batch.Failed
	run.Usage = batch.Usage
	s.recordRun(ctx, run)

	log.Info("scoring: batch complete",
		zap.Int("customers", len(customers)),
		zap.Int("failed", batch.Failed),
		zap.Float64("cost_usd", batch.Usage.Cost),
		zap.Int64("duration_ms", run.Duration),
	)

	usage := batch.Usage
	out := &model.Analysis{Results: batch.Results, Usage: &usage}
	if persist {
		est, err := s.updateEstimate(ctx, tenantID, kind, artifactID, batch.Results, batch.Failed)
		if err != nil {
			return nil, err
		}
		out.LikeEstimate = &est
	}
	return out, nil
}

// UpdateProductEstimate writes the aggregate of results to the product.
func (s *Service) UpdateProductEstimate(ctx context.Context, tenantID, productID string, results []model.AnalysisResult) (int, error) {
	return s.updateEstimate(ctx, tenantID, model.ArtifactProduct, productID, results, countFailed(results))
}

// UpdateCampaignEstimate writes the aggregate of results to the campaign.
func (s *Service) UpdateCampaignEstimate(ctx context.Context, tenantID, uid string, results []model.AnalysisResult) (int, error) {
	return s.updateEstimate(ctx, tenantID, model.ArtifactCampaign, uid, results, countFailed(results))
}

func (s *Service) updateEstimate(ctx context.Context, tenantID string, kind model.ArtifactKind, id string, results []model.AnalysisResult, failed int) (int, error) {
	est, err := Aggregate(results)
	if err != nil {
		return 0, err
	}

	switch kind {
	case model.ArtifactCampaign:
		err = s.store.UpdateCampaignEstimate(ctx, tenantID, id, est)
	default:
		err = s.store.UpdateProductEstimate(ctx, tenantID, id, est)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "scoring: update %s estimate", kind)
	}

	events.Emit(ctx, s.publisher, events.Event{
		Type:       events.TypeLikelihoodEstimated,
		TenantID:   tenantID,
		Kind:       string(kind),
		ArtifactID: id,
		Estimate:   &est,
		Customers:  len(results),
		Failed:     failed,
		OccurredAt: s.now().UTC(),
	})
	return est, nil
}

func (s *Service) recordRun(ctx context.Context, run *model.ScoringRun) {
	if err := s.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Warn("scoring: record run failed", zap.Error(err))
	}
}

func countFailed(results []model.AnalysisResult) int {
	n := 0
	for _, r := range results {
		if r.Failed || r.Reason == model.FailedReason {
			n++
		}
	}
	return n
}
