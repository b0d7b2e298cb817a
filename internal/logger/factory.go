// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config.yaml log.levels.

// GetAPILogger returns a logger for the HTTP API
func GetAPILogger() zerolog.Logger {
	return GetLogger("api")
}

// GetDatabaseLogger returns a logger for database operations
func GetDatabaseLogger() zerolog.Logger {
	return GetLogger("database")
}

// GetMarketplaceLogger returns a logger for agent and execution services
func GetMarketplaceLogger() zerolog.Logger {
	return GetLogger("marketplace")
}

// GetWebhookLogger returns a logger for payload building and outbound webhook calls
func GetWebhookLogger() zerolog.Logger {
	return GetLogger("webhook")
}

// GetNormalizeLogger returns a logger for response normalization and local generators
func GetNormalizeLogger() zerolog.Logger {
	return GetLogger("normalize")
}

// GetCLILogger returns a logger for CLI commands
func GetCLILogger() zerolog.Logger {
	return GetLogger("cli")
}
