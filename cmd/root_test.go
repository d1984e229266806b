package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "score", "import", "runs", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "tailorreach", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestScoreCommand_Flags(t *testing.T) {
	for _, name := range []string{"tenant", "product", "campaign", "save", "format"} {
		require.NotNil(t, scoreCmd.Flags().Lookup(name), "score command should have --%s", name)
	}
	assert.Equal(t, "table", scoreCmd.Flags().Lookup("format").DefValue)
	assert.Equal(t, "false", scoreCmd.Flags().Lookup("save").DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "tenant", "sheet", "limit", "dry-run"} {
		require.NotNil(t, importCmd.Flags().Lookup(name), "import command should have --%s", name)
	}
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}
