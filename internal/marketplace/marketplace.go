// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package marketplace wires the agent catalogue, the webhook caller and the
// execution history into one unit shared by the API server and the CLI.
package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace/database"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/payload"
	"github.com/noldarim/agentmarket/internal/marketplace/services"
	"github.com/noldarim/agentmarket/internal/marketplace/templates"
	"github.com/noldarim/agentmarket/internal/marketplace/webhook"
	"github.com/noldarim/agentmarket/internal/protocol"
)

// Marketplace owns the database connection and the services built on it.
type Marketplace struct {
	db         *database.GormDB
	templates  *templates.Registry
	adapters   *normalize.Adapters
	agents     *services.AgentService
	executions *services.ExecutionService
	config     *config.AppConfig
}

// New opens the database, loads the template and provider tables and builds
// the services. eventChan may be nil when nobody listens for lifecycle
// events.
func New(cfg *config.AppConfig, eventChan chan<- protocol.Event) (*Marketplace, error) {
	log := logger.GetMarketplaceLogger()

	tmpl, err := templates.Default(cfg.Templates.File)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	adapters, err := normalize.DefaultAdapters(cfg.Providers.File)
	if err != nil {
		return nil, fmt.Errorf("load provider adapters: %w", err)
	}

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.ValidateSchema(); err != nil {
		db.Close()
		return nil, err
	}

	agents, err := services.NewAgentService(db, cfg.Webhook, cfg.Agents.CacheSize,
		services.WithTemplates(tmpl),
		services.WithProviders(adapters),
		services.WithAgentEvents(eventChan),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	caller := webhook.NewCaller(
		payload.NewMerger(payload.WithUserAgent(cfg.Webhook.UserAgent)),
		normalize.New(adapters, tmpl),
		webhook.WithDefaultTimeout(cfg.Webhook.DefaultTimeout),
	)

	log.Info().
		Strs("templates", tmpl.IDs()).
		Strs("providers", adapters.IDs()).
		Str("driver", cfg.Database.Driver).
		Msg("Marketplace initialized")

	return &Marketplace{
		db:         db,
		templates:  tmpl,
		adapters:   adapters,
		agents:     agents,
		executions: services.NewExecutionService(agents, db, caller, eventChan),
		config:     cfg,
	}, nil
}

// ImportSeed loads the configured seed file, if any.
func (m *Marketplace) ImportSeed(ctx context.Context) error {
	if m.config.Agents.SeedFile == "" {
		return nil
	}
	n, err := m.agents.ImportSeedFile(ctx, m.config.Agents.SeedFile)
	if err != nil {
		return fmt.Errorf("import seed agents: %w", err)
	}
	log := logger.GetMarketplaceLogger()
	log.Info().Int("count", n).Str("file", m.config.Agents.SeedFile).Msg("Seed agents imported")
	return nil
}

// Agents returns the agent catalogue service.
func (m *Marketplace) Agents() *services.AgentService {
	return m.agents
}

// Executions returns the execution service.
func (m *Marketplace) Executions() *services.ExecutionService {
	return m.executions
}

// Templates returns the local template registry.
func (m *Marketplace) Templates() *templates.Registry {
	return m.templates
}

// Close releases the database connection.
func (m *Marketplace) Close() error {
	if m.db == nil {
		return errors.New("marketplace not initialized")
	}
	return m.db.Close()
}
