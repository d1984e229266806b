package model

import "time"

// RunStatus represents the current state of a scoring run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ScoringRun summarizes one fan-out over a tenant's customers.
type ScoringRun struct {
	TenantID   string       `json:"tenant_id"`
	Kind       ArtifactKind `json:"kind"`
	ArtifactID string       `json:"artifact_id"`
	Status     RunStatus    `json:"status"`
	Customers  int          `json:"customers"`
	Failed     int          `json:"failed"`
	Usage      TokenUsage   `json:"usage"`
	StartedAt  time.Time    `json:"started_at"`
	Duration   int64        `json:"duration_ms"`
}

// TokenUsage tracks token consumption across LLM calls.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}
