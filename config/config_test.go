package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2*time.Second, cfg.Server.StartupGrace)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "2024-11-05", cfg.Server.ProtocolVersion)
	assert.Equal(t, "fred-query-app", cfg.Server.ClientName)
	assert.Equal(t, "https://api.stlouisfed.org/fred", cfg.FRED.BaseURL)
	assert.Len(t, cfg.Planner.TargetSeries, 8)
}

func TestLoadConfigProjectOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDir), 0o755))
	yml := "llm: anthropic\nmodel: claude\nmcp_server:\n  command: /opt/fred-mcp\n  request_timeout: 3s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDir, "config.yaml"), []byte(yml), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLMClient)
	assert.Equal(t, "/opt/fred-mcp", cfg.Server.Command)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	// untouched fields keep their defaults
	assert.Equal(t, "FRED MCP Server", cfg.Server.BannerFilter)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MCP_SERVER_PATH": "./bin/fred-mcp",
		"PORT":            "8081",
		"FRED_BASE_URL":   "http://localhost:9999/fred",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "./bin/fred-mcp", cfg.Server.Command)
	assert.Equal(t, ":8081", cfg.HTTP.Addr)
	assert.Equal(t, "http://localhost:9999/fred", cfg.FRED.BaseURL)

	err := cfg.ApplyEnv(func(k string) string {
		if k == "PORT" {
			return "eighty"
		}
		return ""
	})
	assert.Error(t, err)
}
