package model

import (
	"encoding/json"
	"time"
)

// ChatMessage is one turn of a conversation with the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Profession is stored in the userprof column.
type Profession struct {
	Profession string `json:"profession"`
}

// ChatLog is stored in the useronchat column.
type ChatLog struct {
	Messages []ChatMessage `json:"messages"`
}

// UserProfile is the seller's onboarding record. Style is kept as the raw
// JSON the style analysis returned.
type UserProfile struct {
	UserID      string          `json:"userid" db:"userid"`
	Name        string          `json:"name" db:"name"`
	Profession  Profession      `json:"userprof" db:"userprof"`
	Style       json.RawMessage `json:"userstyle,omitempty" db:"userstyle"`
	Chat        ChatLog         `json:"useronchat" db:"useronchat"`
	OnboardedAt *time.Time      `json:"onboarded_at,omitempty" db:"onboarded_at"`
}

// Onboarded reports whether the seller completed onboarding.
func (u *UserProfile) Onboarded() bool {
	return u != nil && u.OnboardedAt != nil
}

// TableResult reports readiness of one tenant-scoped table after provisioning.
type TableResult struct {
	Table  string `json:"table"`
	Status string `json:"status"`
	Rows   int64  `json:"rows"`
}

// OnboardingStatus is returned by GET /api/onboarding.
type OnboardingStatus struct {
	Onboarded   bool       `json:"completed"`
	Name        string     `json:"name,omitempty"`
	OnboardedAt *time.Time `json:"onboarded_at,omitempty"`
}
