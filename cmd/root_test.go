package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"analyze", "score", "runs", "serve", "migrate", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sdi-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"road", "cracking", "potholes", "rutting", "dsm", "width", "interval", "crs", "concurrency", "out", "format", "no-store"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s flag", name)
	}

	road := analyzeCmd.Flags().Lookup("road")
	require.NotNil(t, road)
	assert.Equal(t, []string{"true"}, road.Annotations[cobra.BashCompOneRequiredFlag])
}

func TestScoreCommand_Flags(t *testing.T) {
	for _, name := range []string{"cracked", "crack-width", "potholes", "rutting", "json"} {
		assert.NotNil(t, scoreCmd.Flags().Lookup(name), "score should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "segments", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}

	limit := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
}

func TestConfigCommand_HasShow(t *testing.T) {
	require.Len(t, configCmd.Commands(), 1)
	assert.Equal(t, "show", configCmd.Commands()[0].Name())
}
