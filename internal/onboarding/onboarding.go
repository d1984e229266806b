// Package onboarding captures a new seller's name, profession and writing
// style, and provisions their tenant.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/llm"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/prompt"
	"github.com/sells-group/tailorreach/internal/store"
	"github.com/sells-group/tailorreach/pkg/anthropic"
)

var (
	// ErrMissingFields is returned when a save request is incomplete.
	ErrMissingFields = eris.New("onboarding: missing required fields")
	// ErrInvalidStyle is returned when the style analysis is not JSON.
	ErrInvalidStyle = eris.New("onboarding: style analysis is not valid JSON")
	// ErrNoMessages is returned when there is nothing to analyze or answer.
	ErrNoMessages = eris.New("onboarding: messages are required")
)

// Store is the slice of the persistence layer onboarding needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, p *model.UserProfile) error
	ProvisionTenant(ctx context.Context, tenantID string) ([]model.TableResult, error)
}

// LLM is what onboarding needs from the completion gateway.
type LLM interface {
	llm.Completer
	llm.Streamer
}

// Config configures the onboarding service.
type Config struct {
	Model     string
	MaxTokens int64
}

// ConfigFromConfig reads onboarding settings from cfg.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{Model: cfg.Anthropic.ChatModel, MaxTokens: cfg.Anthropic.MessageMaxTokens}
}

// Service implements the onboarding flow.
type Service struct {
	store Store
	llm   LLM
	cfg   Config
	now   func() time.Time
}

// New creates an onboarding service.
func New(st Store, l LLM, cfg Config) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	return &Service{store: st, llm: l, cfg: cfg, now: time.Now}
}

// AnalyzeStyle classifies the seller's tone, verbosity, technicality and
// engagement from their onboarding chat and returns the JSON object.
func (s *Service) AnalyzeStyle(ctx context.Context, messages []model.ChatMessage) (json.RawMessage, error) {
	turns := conversation(messages)
	if len(turns) == 0 {
		return nil, ErrNoMessages
	}

	resp, err := s.llm.Complete(ctx, "style", anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: prompt.StyleSystem}},
		Messages:  turns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "onboarding: analyze style")
	}

	raw := stripFence(resp.Text())
	if !json.Valid([]byte(raw)) {
		return nil, eris.Wrapf(ErrInvalidStyle, "reply %q", raw)
	}
	return json.RawMessage(raw), nil
}

// Chat plays a prospective customer of the seller. The profession comes
// from the first system message; text is passed to onDelta as it streams
// and the full reply is returned.
func (s *Service) Chat(ctx context.Context, messages []model.ChatMessage, onDelta func(string) error) (string, error) {
	turns := conversation(messages)
	if len(turns) == 0 {
		return "", ErrNoMessages
	}

	resp, err := s.llm.Stream(ctx, "chat", anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: prompt.Persona(ExtractProfession(messages))}},
		Messages:  turns,
	}, onDelta)
	if err != nil {
		return "", eris.Wrap(err, "onboarding: chat")
	}
	return resp.Text(), nil
}

// SaveRequest is the payload of the final onboarding step.
type SaveRequest struct {
	Name        string              `json:"name"`
	Profession  string              `json:"profession"`
	Style       json.RawMessage     `json:"style"`
	ChatHistory []model.ChatMessage `json:"chatHistory"`
}

// SaveResult reports the stored profile and the tenant's table readiness.
type SaveResult struct {
	UserData     *model.UserProfile  `json:"userData"`
	TableResults []model.TableResult `json:"tableResults"`
}

// Save stores the seller's profile, marks onboarding complete and
// provisions the tenant.
func (s *Service) Save(ctx context.Context, tenantID string, req SaveRequest) (*SaveResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	profile := &model.UserProfile{
		UserID:      tenantID,
		Name:        strings.TrimSpace(req.Name),
		Profession:  model.Profession{Profession: strings.TrimSpace(req.Profession)},
		Style:       req.Style,
		Chat:        model.ChatLog{Messages: req.ChatHistory},
		OnboardedAt: &now,
	}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, eris.Wrap(err, "onboarding: save profile")
	}

	tables, err := s.store.ProvisionTenant(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "onboarding: provision tenant")
	}

	zap.L().Info("onboarding: complete",
		zap.String("tenant_id", tenantID),
		zap.Int("tables", len(tables)),
	)
	return &SaveResult{UserData: profile, TableResults: tables}, nil
}

// Status reports whether tenantID has finished onboarding.
func (s *Service) Status(ctx context.Context, tenantID string) (model.OnboardingStatus, error) {
	profile, err := s.store.GetProfile(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return model.OnboardingStatus{}, nil
	}
	if err != nil {
		return model.OnboardingStatus{}, eris.Wrap(err, "onboarding: status")
	}
	return model.OnboardingStatus{
		Onboarded:   profile.Onboarded(),
		Name:        profile.Name,
		OnboardedAt: profile.OnboardedAt,
	}, nil
}

func (r SaveRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Profession) == "" {
		missing = append(missing, "profession")
	}
	if len(r.Style) == 0 || string(r.Style) == "null" {
		missing = append(missing, "style")
	} else if !json.Valid(r.Style) {
		return eris.Wrap(ErrInvalidStyle, "style")
	}
	if r.ChatHistory == nil {
		missing = append(missing, "chatHistory")
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingFields, "%s", strings.Join(missing, ", "))
	}
	return nil
}

const professionMarker = "profession is:"

// ExtractProfession reads the profession from the first system message
// carrying one, e.g. "...their profession is: dentist. Engage...".
func ExtractProfession(messages []model.ChatMessage) string {
	for _, m := range messages {
		if m.Role != "system" {
			continue
		}
		idx := strings.Index(m.Content, professionMarker)
		if idx < 0 {
			continue
		}
		rest := m.Content[idx+len(professionMarker):]
		rest, _, _ = strings.Cut(rest, ".")
		if p := strings.TrimSpace(rest); p != "" {
			return p
		}
	}
	return prompt.UnknownProfession
}

// conversation drops system messages and maps roles onto user/assistant.
func conversation(messages []model.ChatMessage) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, anthropic.Message{Role: role, Content: m.Content})
	}
	return out
}

// stripFence removes a surrounding markdown code fence from a reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
