// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"path/filepath"
	"testing"

	"github.com/noldarim/agentmarket/internal/config"

	"github.com/stretchr/testify/require"
)

// UseFreshDatabase creates a migrated SQLite database in a per-test temporary
// directory. The connection is closed when the test ends.
func UseFreshDatabase(t *testing.T) *GormDB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "agentmarket_test.db"),
	}

	db, err := NewGormDB(cfg)
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.AutoMigrate(), "Failed to run migrations on test database")
	return db
}
