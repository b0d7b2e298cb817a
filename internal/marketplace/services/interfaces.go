// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package services holds the agent catalogue and execution flows shared by
// the HTTP API and the CLI.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/protocol"
	"github.com/rs/zerolog"
)

var (
	// ErrAgentNotFound is returned when no agent has the requested id.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrExecutionNotFound is returned when no execution matches the user and id.
	ErrExecutionNotFound = errors.New("execution not found")
)

// InvalidRequestError reports a request rejected before any side effect.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return e.Message }

// AgentStore persists agents. Owned by the services package so the GORM
// database and test fakes both satisfy it.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpsertAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	ListAgentsByCreator(ctx context.Context, creatorID string) ([]*models.Agent, error)
}

// ExecutionStore persists executions.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	CompleteExecution(ctx context.Context, executionID string, status models.ExecutionStatus, result []byte, errMsg string, completedAt time.Time) error
	GetExecution(ctx context.Context, executionID string) (*models.Execution, error)
	ListExecutionsByUser(ctx context.Context, userID string) ([]*models.Execution, error)
}

// Executor performs one agent call. *webhook.Caller satisfies it.
type Executor interface {
	Call(ctx context.Context, agent *models.Agent, inputs map[string]any, userID string) (normalize.Result, error)
}

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetMarketplaceLogger().With().Str("component", "service").Logger()
		log = &l
	})
	return log
}

// publish sends without blocking; a full or nil channel drops the event.
func publish(events chan<- protocol.Event, event protocol.Event) {
	if events == nil {
		return
	}
	select {
	case events <- event:
	default:
		getLog().Warn().Str("event", protocol.GetIdempotencyKey(event)).Msg("Event channel full, dropping event")
	}
}
