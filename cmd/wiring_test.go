package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tailorreach/internal/config"
	"github.com/sells-group/tailorreach/internal/events"
	"github.com/sells-group/tailorreach/internal/runlock"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cmd.db")},
		Anthropic: config.AnthropicConfig{Key: "test-key", ScoringModel: "claude-haiku-4-5-20251001", RequestsPerSecond: 5, Burst: 5},
		Scoring:   config.ScoringConfig{MaxConcurrency: 4, BatchTimeoutSecs: 30, UnparseablePolicy: "error"},
		Redis:     config.RedisConfig{LockTTLSecs: 60},
	}
}

func TestInitStore(t *testing.T) {
	st, err := initStore(context.Background(), sqliteConfig(t))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	_, err = initStore(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	assert.Error(t, err)
}

func TestInitLocker_MemoryWithoutRedis(t *testing.T) {
	l, closeFn, err := initLocker(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &runlock.Memory{}, l)
	assert.NoError(t, closeFn())
}

func TestInitLocker_UnreachableRedis(t *testing.T) {
	_, _, err := initLocker(context.Background(), &config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:1"}})
	assert.Error(t, err)
}

func TestInitEnv(t *testing.T) {
	e, err := initEnv(context.Background(), sqliteConfig(t))
	require.NoError(t, err)
	defer e.Close()

	assert.NotNil(t, e.Scoring)
	assert.NotNil(t, e.Drafter)
	assert.NotNil(t, e.Onboarding)
	assert.IsType(t, events.Noop{}, e.Publisher)
	assert.Empty(t, e.Gateway.Breakers())
}

func TestInitEnv_BadPolicy(t *testing.T) {
	c := sqliteConfig(t)
	c.Scoring.UnparseablePolicy = "guess"
	_, err := initEnv(context.Background(), c)
	assert.Error(t, err)
}
