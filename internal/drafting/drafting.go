// Package drafting writes personalized outreach messages in the seller's
// own style and records the ones that are sent.
package drafting

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/events"
	"github.com/sells-group/tailorreach/internal/llm"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/prompt"
	"github.com/sells-group/tailorreach/pkg/anthropic"
)

// FailedMessage is the draft text for a customer whose generation failed.
const FailedMessage = "Failed to generate message"

// ActivityType is the activity type recorded for a sent message.
const ActivityType = "message"

// ErrProfile is returned when the seller's profile cannot be loaded.
var ErrProfile = eris.New("drafting: failed to fetch user data")

// Store is the slice of the persistence layer drafting needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	AddActivities(ctx context.Context, tenantID string, acts []model.Activity) error
}

// Config configures a Drafter.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Concurrency int
}

// ConfigFromConfig reads the drafting settings from cfg.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{
		Model:       cfg.Anthropic.ChatModel,
		MaxTokens:   cfg.Anthropic.MessageMaxTokens,
		Temperature: cfg.Anthropic.Temperature,
		Concurrency: cfg.Scoring.MaxConcurrency,
	}
}

// Result is a single drafted message with the seller context it was
// written from.
type Result struct {
	Message model.Message    `json:"message"`
	Style   json.RawMessage  `json:"style"`
	Profile model.Profession `json:"profile"`
	Context model.ChatLog    `json:"context"`
}

// Drafter generates and records outreach messages.
type Drafter struct {
	store     Store
	llm       llm.Completer
	cfg       Config
	publisher events.Publisher
}

// New creates a Drafter. A nil publisher discards events.
func New(st Store, c llm.Completer, cfg Config, pub events.Publisher) *Drafter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Drafter{store: st, llm: c, cfg: cfg, publisher: pub}
}

// Draft writes one message from tenantID to customer c about product p.
func (d *Drafter) Draft(ctx context.Context, tenantID string, c model.Customer, p model.Product) (*Result, error) {
	profile, err := d.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	msg, err := d.generate(ctx, c, p, profile)
	if err != nil {
		return nil, err
	}
	return &Result{
		Message: msg,
		Style:   profile.Style,
		Profile: profile.Profession,
		Context: profile.Chat,
	}, nil
}

// DraftAll drafts one message per customer, in input order. A customer
// whose generation fails gets FailedMessage and an error note; the others
// are unaffected.
func (d *Drafter) DraftAll(ctx context.Context, tenantID string, customers []model.Customer, p model.Product) ([]model.Draft, error) {
	profile, err := d.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	drafts := make([]model.Draft, len(customers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, c := range customers {
		g.Go(func() error {
			draft := model.Draft{
				CustomerID:   c.ID,
				CustomerName: c.Name,
				Preference:   string(c.Preferences),
			}
			msg, err := d.generate(gctx, c, p, profile)
			if err != nil {
				zap.L().Warn("drafting: customer failed", zap.String("customer_id", c.ID), zap.Error(err))
				msg = model.Message{Content: FailedMessage}
				draft.Error = FailedMessage
			}
			draft.Message = msg

			mu.Lock()
			drafts[i] = draft
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "drafting: cancelled")
	}
	return drafts, nil
}

func (d *Drafter) profile(ctx context.Context, tenantID string) (*model.UserProfile, error) {
	profile, err := d.store.GetProfile(ctx, tenantID)
	if err != nil {
		zap.L().Error("drafting: fetch profile", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, eris.Wrapf(ErrProfile, "%v", err)
	}
	return profile, nil
}

func (d *Drafter) generate(ctx context.Context, c model.Customer, p model.Product, profile *model.UserProfile) (model.Message, error) {
	temp := d.cfg.Temperature
	resp, err := d.llm.Complete(ctx, "message", anthropic.MessageRequest{
		Model:       d.cfg.Model,
		MaxTokens:   d.cfg.MaxTokens,
		System:      []anthropic.SystemBlock{{Text: prompt.MessageSystem}},
		Messages:    []anthropic.Message{{Role: "user", Content: prompt.Message(c, p, profile)}},
		Temperature: &temp,
	})
	if err != nil {
		return model.Message{}, eris.Wrapf(err, "drafting: generate for %s", c.ID)
	}
	return SplitReply(c.Preferences, resp.Text()), nil
}

// SplitReply shapes a completion for the customer's channel. Mail replies
// use the first line as the subject and the trimmed rest as the body;
// other channels keep the whole reply.
func SplitReply(pref model.Preference, text string) model.Message {
	if pref != "" && !pref.IsMail() {
		return model.Message{Content: text}
	}
	subject, body, _ := strings.Cut(text, "\n")
	return model.Message{
		Subject: strings.TrimSpace(subject),
		Content: strings.TrimSpace(body),
		IsEmail: true,
	}
}

// ParseEdited turns a message the seller edited as plain text back into
// its channel shape. Mail text splits at the first blank line.
func ParseEdited(pref model.Preference, text string) model.Message {
	if pref != "" && !pref.IsMail() {
		return model.Message{Content: strings.TrimSpace(text)}
	}
	return model.SplitEdited(text)
}

// Outgoing is one message the seller chose to send.
type Outgoing struct {
	CustomerID   string        `json:"customerId"`
	CustomerName string        `json:"customerName"`
	ProductID    string        `json:"productId,omitempty"`
	ProductName  string        `json:"productName,omitempty"`
	CampaignID   string        `json:"campaignId,omitempty"`
	Message      model.Message `json:"message"`
}

// Send records a sent activity for every outgoing message. Delivery over
// the customer's channel happens outside this service.
func (d *Drafter) Send(ctx context.Context, tenantID string, out []Outgoing) ([]model.Activity, error) {
	if len(out) == 0 {
		return nil, eris.Wrap(model.ErrInvalid, "drafting: nothing to send")
	}

	now := time.Now().UTC()
	acts := make([]model.Activity, 0, len(out))
	for _, o := range out {
		if o.CustomerID == "" {
			return nil, eris.Wrap(model.ErrInvalid, "drafting: customerId is required")
		}
		acts = append(acts, model.Activity{
			CustomerID:   o.CustomerID,
			CustomerName: o.CustomerName,
			Type:         ActivityType,
			ProductID:    o.ProductID,
			ProductName:  o.ProductName,
			CampaignID:   o.CampaignID,
			Message:      o.Message.Text(),
			Status:       model.StatusSent,
			Date:         now,
		})
	}

	if err := d.store.AddActivities(ctx, tenantID, acts); err != nil {
		return nil, eris.Wrap(err, "drafting: record activities")
	}

	recorded := make([]events.Event, 0, len(acts))
	for _, a := range acts {
		recorded = append(recorded, events.Event{
			Type:       events.TypeActivityRecorded,
			TenantID:   tenantID,
			CustomerID: a.CustomerID,
			ArtifactID: a.ProductID,
			CampaignID: a.CampaignID,
			Status:     string(a.Status),
			OccurredAt: now,
		})
	}
	events.Emit(ctx, d.publisher, recorded...)
	return acts, nil
}
