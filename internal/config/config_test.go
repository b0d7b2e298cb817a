// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "AI-Agent-Marketplace/1.0", cfg.Webhook.UserAgent)
	assert.Equal(t, 60*time.Second, cfg.Webhook.DefaultTimeout)
	require.Len(t, cfg.Webhook.Policies, 1)
	assert.Equal(t, "lyzr.ai", cfg.Webhook.Policies[0].Pattern)
	assert.Equal(t, 15*time.Second, cfg.Webhook.Policies[0].Timeout)
}

func TestNewConfig_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
webhook:
  default_timeout: 5s
  policies:
    - pattern: slow.example.com
      timeout: 2m
tracing:
  enabled: true
  exporter: stdout
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Webhook.DefaultTimeout)
	require.Len(t, cfg.Webhook.Policies, 1)
	assert.Equal(t, 2*time.Minute, cfg.Webhook.Policies[0].Timeout)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestNewConfig_RejectsInvalidExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracing:\n  exporter: zipkin\n"), 0o644))

	_, err := NewConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing.exporter")
}

func TestWebhookConfig_PolicyFor(t *testing.T) {
	wc := defaultConfig().Webhook

	timeout, fallback := wc.PolicyFor("agent-prod.studio.lyzr.ai")
	assert.Equal(t, 15*time.Second, timeout)
	assert.Equal(t, "grammar_correction", fallback)

	timeout, fallback = wc.PolicyFor("api.example.com")
	assert.Equal(t, 60*time.Second, timeout)
	assert.Empty(t, fallback)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Database: ":memory:"}
	assert.Equal(t, "file::memory:?cache=shared", sqlite.GetDSN())

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Username: "u", Password: "p", Database: "market", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=market sslmode=disable", pg.GetDSN())
}
