package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/scoring"
)

func sampleScored() (*model.Analysis, []model.ScoredCustomer) {
	est := 60
	a := &model.Analysis{
		Results: []model.AnalysisResult{
			{CustomerID: "c1", CustomerName: "Ada", Likelihood: 40, Reason: "meh"},
			{CustomerID: "c2", CustomerName: "Bob", Likelihood: 80, Reason: "strong fit"},
		},
		LikeEstimate: &est,
		Usage:        &model.TokenUsage{InputTokens: 100, OutputTokens: 20, Cost: 0.0012},
	}
	customers := []model.Customer{{ID: "c1", Name: "Ada"}, {ID: "c2", Name: "Bob"}, {ID: "c3", Name: "Cy"}}
	return a, scoring.Merge(customers, a.Results)
}

func TestFormatScoreTable(t *testing.T) {
	a, scored := sampleScored()
	var buf bytes.Buffer
	formatScoreTable(&buf, a, scored)

	out := buf.String()
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[0], "CUSTOMER")
	assert.True(t, strings.HasPrefix(lines[2], "Bob"), lines[2])
	assert.Contains(t, lines[2], "high")
	assert.Contains(t, lines[2], "yes")
	assert.True(t, strings.HasPrefix(lines[3], "Ada"), lines[3])
	assert.Contains(t, out, "Analysis not available")
	assert.Contains(t, out, "Like-estimate saved: 60")
	assert.Contains(t, out, "Tokens: 100 in / 20 out")
}

func TestWriteScoreJSON(t *testing.T) {
	a, scored := sampleScored()
	var buf bytes.Buffer
	require.NoError(t, writeScoreJSON(&buf, a, scored))

	var got struct {
		Customers    []model.ScoredCustomer `json:"customers"`
		LikeEstimate int                    `json:"likeestimate"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got.Customers, 3)
	assert.Equal(t, 60, got.LikeEstimate)
	assert.True(t, got.Customers[1].Selected)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", truncate(strings.Repeat("é", 20), 10))
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.ScoringRun{{
		Kind:       model.ArtifactCampaign,
		ArtifactID: "0123456789abcdef",
		Status:     model.RunStatusComplete,
		Customers:  12,
		Failed:     1,
		StartedAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Duration:   1500,
		Usage:      model.TokenUsage{Cost: 0.25},
	}})

	out := buf.String()
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "campaign")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, "2026-03-01 09:30")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "$0.2500")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", truncateID("abc"))
	assert.Equal(t, "12345678", truncateID("1234567890"))
}

func TestPrintConfig_Redacts(t *testing.T) {
	c := &config.Config{
		Anthropic: config.AnthropicConfig{Key: "sk-secret", ScoringModel: "claude-haiku-4-5-20251001"},
		Auth:      config.AuthConfig{HMACSecret: "hush"},
		Store:     config.StoreConfig{Driver: "postgres", DatabaseURL: "postgres://u:p@h/db"},
	}
	var buf bytes.Buffer
	require.NoError(t, printConfig(&buf, c))

	out := buf.String()
	assert.NotContains(t, out, "sk-secret")
	assert.NotContains(t, out, "hush")
	assert.NotContains(t, out, "u:p@h")
	assert.Contains(t, out, "claude-haiku-4-5-20251001")
	assert.Contains(t, out, "driver: postgres")
	assert.Equal(t, "sk-secret", c.Anthropic.Key)
}
