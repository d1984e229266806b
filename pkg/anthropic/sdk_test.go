package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello world"},
			{Type: "text", Text: "Second block"},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "Hello worldSecond block", resp.Text())
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestToSDKMessages_Roles(t *testing.T) {
	sdkMsgs := toSDKMessages([]Message{
		{Role: "user", Content: "Question"},
		{Role: "assistant", Content: "Answer"},
		{Role: "system", Content: "unknown roles become user turns"},
	})
	require.Len(t, sdkMsgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, sdkMsgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[2].Role)

	assert.Empty(t, toSDKMessages(nil))
}

func TestToSDKSystemBlocks(t *testing.T) {
	sdkBlocks := toSDKSystemBlocks([]SystemBlock{
		{Text: "First block"},
		{Text: "Second block", CacheControl: &CacheControl{TTL: "1h"}},
		{Text: "Third block", CacheControl: &CacheControl{}},
	})
	require.Len(t, sdkBlocks, 3)
	assert.Equal(t, "First block", sdkBlocks[0].Text)
	assert.Equal(t, "Second block", sdkBlocks[1].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), sdkBlocks[1].CacheControl.TTL)
	assert.Equal(t, "Third block", sdkBlocks[2].Text)
}

func TestToSDKParams(t *testing.T) {
	temp := 0.7
	params := toSDKParams(MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   200,
		System:      []SystemBlock{{Text: "You are a sales analyst."}},
		Messages:    []Message{{Role: "user", Content: "Score this"}},
		Temperature: &temp,
	})
	assert.Equal(t, sdk.Model("claude-haiku-4-5-20251001"), params.Model)
	assert.Equal(t, int64(200), params.MaxTokens)
	require.Len(t, params.System, 1)
	require.Len(t, params.Messages, 1)
	assert.InDelta(t, 0.7, params.Temperature.Value, 0.0001)

	bare := toSDKParams(MessageRequest{Model: "m", MaxTokens: 1})
	assert.Empty(t, bare.System)
	assert.False(t, bare.Temperature.Valid())
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	var client Client = NewClient("test-api-key", "")
	require.NotNil(t, client)
	require.NotNil(t, NewClient("test-api-key", "http://localhost:1"))
}
