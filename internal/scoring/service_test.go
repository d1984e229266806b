package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tailorreach/internal/events"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/runlock"
	"github.com/sells-group/tailorreach/internal/store"
)

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, es ...events.Event) error {
	p.events = append(p.events, es...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(st Store, pub events.Publisher) *Service {
	f := &fakeLLM{reply: replyByName(map[string]string{
		"Ada": "80% loves hiking.",
		"Bob": "60% maybe.",
		"Cy":  "40% unlikely.",
	})}
	return NewService(st, NewScorer(f, ScorerConfig{Concurrency: 2}), runlock.NewMemory(), time.Minute, pub)
}

func TestAnalyzeProduct_Persist(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	pub := &recordingPublisher{}
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers, nil)
	st.On("RecordRun", mock.Anything, mock.MatchedBy(func(r *model.ScoringRun) bool {
		return r.Status == model.RunStatusComplete && r.Customers == 3 && r.ArtifactID == "p1"
	})).Return(nil)
	st.On("UpdateProductEstimate", mock.Anything, "user_1", "p1", 60).Return(nil).Once()

	svc := newTestService(st, pub)
	out, err := svc.AnalyzeProduct(ctx, "user_1", model.Product{ID: "p1", Name: "Trail Boots"}, true)
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	require.NotNil(t, out.LikeEstimate)
	assert.Equal(t, 60, *out.LikeEstimate)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeLikelihoodEstimated, pub.events[0].Type)
	assert.Equal(t, 60, *pub.events[0].Estimate)
	assert.Equal(t, 3, pub.events[0].Customers)
	st.AssertExpectations(t)
}

func TestAnalyzeProduct_NoPersist(t *testing.T) {
	st := new(mockStore)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers, nil)
	st.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(st, nil)
	out, err := svc.AnalyzeProduct(context.Background(), "user_1", model.Product{ID: "p1", Name: "Trail Boots"}, false)
	require.NoError(t, err)
	assert.Nil(t, out.LikeEstimate)
	st.AssertNotCalled(t, "UpdateProductEstimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeProduct_LoadsByID(t *testing.T) {
	st := new(mockStore)
	st.On("GetProduct", mock.Anything, "user_1", "p1").Return(&model.Product{ID: "p1", Name: "Trail Boots"}, nil)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers[:1], nil)
	st.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(st, nil)
	out, err := svc.AnalyzeProduct(context.Background(), "user_1", model.Product{ID: "p1"}, false)
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
}

func TestAnalyzeProduct_NoCustomers(t *testing.T) {
	st := new(mockStore)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return([]model.Customer{}, nil)

	svc := newTestService(st, nil)
	_, err := svc.AnalyzeProduct(context.Background(), "user_1", model.Product{Name: "Boots"}, false)
	assert.True(t, errors.Is(err, ErrNoCustomers))
}

func TestAnalyzeProduct_CustomerFetchFailureIsNoCustomers(t *testing.T) {
	st := new(mockStore)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(nil, errors.New("connection refused"))

	svc := newTestService(st, nil)
	_, err := svc.AnalyzeProduct(context.Background(), "user_1", model.Product{Name: "Boots"}, false)
	assert.True(t, errors.Is(err, ErrNoCustomers))
}

func TestAnalyzeProduct_PersistRequiresID(t *testing.T) {
	svc := newTestService(new(mockStore), nil)
	_, err := svc.AnalyzeProduct(context.Background(), "user_1", model.Product{Name: "Boots"}, true)
	assert.Error(t, err)
}

func TestAnalyzeProduct_ConcurrentRunRejected(t *testing.T) {
	locker := runlock.NewMemory()
	_, err := locker.Acquire(context.Background(), runlock.Key("user_1", "product", "p1"), time.Minute)
	require.NoError(t, err)

	st := new(mockStore)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers, nil)

	svc := NewService(st, NewScorer(&fakeLLM{}, ScorerConfig{}), locker, time.Minute, nil)
	_, err = svc.AnalyzeProduct(context.Background(), "user_1", model.Product{ID: "p1", Name: "Boots"}, false)
	assert.True(t, errors.Is(err, runlock.ErrLocked))
}

func TestAnalyzeCampaign_LoadsLinkedProduct(t *testing.T) {
	st := new(mockStore)
	st.On("GetProduct", mock.Anything, "user_1", "p1").Return(&model.Product{ID: "p1", Name: "Trail Boots"}, nil)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers, nil)
	st.On("RecordRun", mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateCampaignEstimate", mock.Anything, "user_1", "camp1", 60).Return(nil)

	var prompts []string
	f := &fakeLLM{reply: func(_ context.Context, p string) (string, error) {
		prompts = append(prompts, p)
		return "60%", nil
	}}
	svc := NewService(st, NewScorer(f, ScorerConfig{Concurrency: 1}), nil, 0, nil)

	camp := model.Campaign{UID: "camp1", Name: "Spring", CampaignDate: "2026-03-01", ProductID: "p1"}
	out, err := svc.AnalyzeCampaign(context.Background(), "user_1", camp, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 60, *out.LikeEstimate)
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "Related Product:\n- Name: Trail Boots")
	st.AssertExpectations(t)
}

func TestAnalyzeCampaign_MissingProductIgnored(t *testing.T) {
	st := new(mockStore)
	st.On("GetProduct", mock.Anything, "user_1", "gone").Return(nil, store.ErrNotFound)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers[:1], nil)
	st.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(st, nil)
	camp := model.Campaign{UID: "camp1", Name: "Spring", CampaignDate: "2026-03-01", ProductID: "gone"}
	_, err := svc.AnalyzeCampaign(context.Background(), "user_1", camp, nil, false)
	require.NoError(t, err)
}

func TestAnalyzeCampaign_WithoutDate(t *testing.T) {
	st := new(mockStore)
	st.On("ListCustomers", mock.Anything, "user_1", 0).Return(threeCustomers, nil)
	st.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	var prompts []string
	var mu sync.Mutex
	f := &fakeLLM{reply: func(_ context.Context, p string) (string, error) {
		mu.Lock()
		prompts = append(prompts, p)
		mu.Unlock()
		return "55% seasonal fit", nil
	}}
	svc := NewService(st, NewScorer(f, ScorerConfig{Concurrency: 2}), nil, 0, nil)

	out, err := svc.AnalyzeCampaign(context.Background(), "user_1", model.Campaign{Name: "Spring sale"}, nil, false)
	require.NoError(t, err)
	require.Len(t, out.Results, len(threeCustomers))
	for _, r := range out.Results {
		assert.Equal(t, 55.0, r.Likelihood)
	}
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "- Campaign Date: Not provided")
	st.AssertExpectations(t)
}

func TestUpdateProductEstimate(t *testing.T) {
	st := new(mockStore)
	st.On("UpdateProductEstimate", mock.Anything, "user_1", "p1", 60).Return(nil).Twice()

	svc := newTestService(st, nil)
	rs := results(80, 60, 40)
	est, err := svc.UpdateProductEstimate(context.Background(), "user_1", "p1", rs)
	require.NoError(t, err)
	assert.Equal(t, 60, est)

	// Idempotent for the same result set.
	est, err = svc.UpdateProductEstimate(context.Background(), "user_1", "p1", rs)
	require.NoError(t, err)
	assert.Equal(t, 60, est)
	st.AssertExpectations(t)
}

func TestUpdateEstimate_EmptyPersistsNothing(t *testing.T) {
	st := new(mockStore)
	svc := newTestService(st, nil)

	_, err := svc.UpdateCampaignEstimate(context.Background(), "user_1", "camp1", nil)
	assert.True(t, errors.Is(err, ErrEmptyResults))
	st.AssertNotCalled(t, "UpdateCampaignEstimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateEstimate_NotFound(t *testing.T) {
	st := new(mockStore)
	st.On("UpdateCampaignEstimate", mock.Anything, "user_1", "nope", 50).Return(store.ErrNotFound)

	svc := newTestService(st, nil)
	_, err := svc.UpdateCampaignEstimate(context.Background(), "user_1", "nope", results(50))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCountFailed(t *testing.T) {
	rs := []model.AnalysisResult{
		{Likelihood: 50},
		model.FailedResult(model.Customer{ID: "x"}),
		{Reason: model.FailedReason},
	}
	assert.Equal(t, 2, countFailed(rs))
}
