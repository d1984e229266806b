package scoring

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/pkg/anthropic"
)

// fakeLLM answers each prompt with reply(prompt) and tracks concurrency.
type fakeLLM struct {
	reply    func(ctx context.Context, prompt string) (string, error)
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeLLM) Complete(ctx context.Context, _ string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text, err := f.reply(ctx, req.Messages[0].Content)
	if err != nil {
		return nil, err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

// replyByName answers with the percentage registered for the customer
// named in the prompt.
func replyByName(scores map[string]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, p string) (string, error) {
		for name, reply := range scores {
			if strings.Contains(p, "Customer name: "+name+"\n") || strings.Contains(p, "- Name: "+name+"\n") {
				return reply, nil
			}
		}
		return "50% default", nil
	}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListCustomers(ctx context.Context, tenantID string, limit int) ([]model.Customer, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Customer), args.Error(1)
}

func (m *mockStore) GetProduct(ctx context.Context, tenantID, id string) (*model.Product, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *mockStore) GetCampaign(ctx context.Context, tenantID, uid string) (*model.Campaign, error) {
	args := m.Called(ctx, tenantID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *mockStore) UpdateProductEstimate(ctx context.Context, tenantID, id string, estimate int) error {
	return m.Called(ctx, tenantID, id, estimate).Error(0)
}

func (m *mockStore) UpdateCampaignEstimate(ctx context.Context, tenantID, uid string, estimate int) error {
	return m.Called(ctx, tenantID, uid, estimate).Error(0)
}

func (m *mockStore) RecordRun(ctx context.Context, run *model.ScoringRun) error {
	return m.Called(ctx, run).Error(0)
}

var threeCustomers = []model.Customer{
	{ID: "c1", Name: "Ada", Likes: "hiking"},
	{ID: "c2", Name: "Bob", Likes: "coffee"},
	{ID: "c3", Name: "Cy", Likes: "chess"},
}
