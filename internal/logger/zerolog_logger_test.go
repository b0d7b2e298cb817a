// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PackageLevels(t *testing.T) {
	cfg := &config.LogConfig{
		Level: "info",
		Levels: map[string]string{
			"webhook": "debug",
			"cli":     "error",
		},
	}
	var buf bytes.Buffer
	m := NewManagerWithWriter(cfg, &buf)

	tests := []struct {
		pkg      string
		expected zerolog.Level
	}{
		{"webhook", zerolog.DebugLevel},
		{"cli", zerolog.ErrorLevel},
		{"api", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.GetLogger(tt.pkg).GetLevel())
		})
	}
}

func TestManager_WritesPackageField(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerWithWriter(&config.LogConfig{Level: "debug"}, &buf)

	l := m.GetLogger("normalize")
	l.Info().Str("agent_id", "agent_1").Msg("normalized")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "normalize", entry["pkg"])
	assert.Equal(t, "agent_1", entry["agent_id"])
	assert.Equal(t, "normalized", entry["message"])
}

func TestManager_SetPackageLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewManagerWithWriter(&config.LogConfig{Level: "info"}, &buf)

	l := m.GetLogger("database")
	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	m.SetPackageLevel("database", "debug")
	l = m.GetLogger("database")
	l.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewManager_FileOutputWithRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agentmarket.log")
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "file", Enabled: true, Path: path, Rotate: config.LogRotateConfig{MaxSizeMB: 1}},
		},
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)

	l := m.GetLogger("api")
	l.Info().Msg("to file")
	require.NoError(t, m.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))
}

func TestNewManager_UnsupportedOutput(t *testing.T) {
	_, err := NewManager(&config.LogConfig{
		Level:  "info",
		Output: []config.LogOutputConfig{{Type: "syslog", Enabled: true}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output type")
}

func TestGetLogger_BeforeInitializeDiscards(t *testing.T) {
	SetGlobal(nil)
	l := GetWebhookLogger()
	assert.NotPanics(t, func() { l.Info().Msg("dropped") })
}

func TestStaticGetters_UseGlobalManager(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(NewManagerWithWriter(&config.LogConfig{Level: "info"}, &buf))
	t.Cleanup(func() { SetGlobal(nil) })

	getters := map[string]func() zerolog.Logger{
		"api":         GetAPILogger,
		"database":    GetDatabaseLogger,
		"marketplace": GetMarketplaceLogger,
		"webhook":     GetWebhookLogger,
		"normalize":   GetNormalizeLogger,
		"cli":         GetCLILogger,
	}
	for pkg, get := range getters {
		buf.Reset()
		l := get()
		l.Info().Msg("hello")
		assert.Contains(t, buf.String(), `"pkg":"`+pkg+`"`)
	}
}
