// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noldarim/agentmarket/internal/marketplace/database"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/schema"
	"github.com/noldarim/agentmarket/internal/protocol"
	"github.com/samber/lo"
)

// SubmitRequest asks for one execution of an agent.
type SubmitRequest struct {
	AgentID string         `json:"agent_id" validate:"required"`
	UserID  string         `json:"user_id" validate:"required"`
	Inputs  map[string]any `json:"inputs" validate:"required"`
}

// Submission is the outcome of a submitted execution. Result is a
// *normalize.Failure when the agent call failed.
type Submission struct {
	Execution *models.Execution
	Result    normalize.Result
}

// Failed reports whether the agent call failed.
func (s *Submission) Failed() bool {
	return s.Result != nil && s.Result.Failed()
}

// ExecutionService runs agents and keeps the execution history.
type ExecutionService struct {
	agents   *AgentService
	store    ExecutionStore
	executor Executor
	events   chan<- protocol.Event
	now      func() time.Time
}

// NewExecutionService wires the execution flow. events may be nil.
func NewExecutionService(agents *AgentService, store ExecutionStore, executor Executor, events chan<- protocol.Event) *ExecutionService {
	return &ExecutionService{
		agents:   agents,
		store:    store,
		executor: executor,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates the request, records a running execution, calls the agent
// and records the terminal state. Rejected requests return an
// *InvalidRequestError or *schema.ValidationError and leave no record.
//
// The agent call and the terminal write are not bound to ctx: a client that
// disconnects mid-call still gets its execution completed in the history.
func (s *ExecutionService) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if err := schema.Struct().Struct(req); err != nil {
		return nil, &InvalidRequestError{Message: "Missing required fields: agent_id, user_id, inputs"}
	}

	agent, err := s.agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != models.AgentStatusActive {
		return nil, &InvalidRequestError{Message: fmt.Sprintf("Agent %s is not active", agent.ID)}
	}

	if err := schema.ValidateInput(agent.InputSchema, req.Inputs); err != nil {
		getLog().Debug().Str("agent_id", agent.ID).Err(err).Msg("Rejected execution inputs")
		return nil, err
	}

	exec := &models.Execution{
		ID:        uuid.NewString(),
		AgentID:   agent.ID,
		UserID:    req.UserID,
		Status:    models.ExecutionStatusRunning,
		Inputs:    models.ValueMap(req.Inputs),
		CreatedAt: s.now(),
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	publish(s.events, protocol.NewExecutionStartedEvent(exec))

	runCtx := context.WithoutCancel(ctx)
	log := getLog().With().Str("execution_id", exec.ID).Str("agent_id", agent.ID).Logger()
	log.Info().Str("user_id", req.UserID).Msg("Executing agent")

	result, err := s.executor.Call(runCtx, agent, req.Inputs, req.UserID)
	if err != nil {
		// The inputs already passed validation, so this is a payload build
		// problem in the agent definition.
		result = &normalize.Failure{Message: err.Error(), Details: normalize.NoDetails, Status: 500}
	}

	status := models.ExecutionStatusCompleted
	errMsg := ""
	if failure, ok := result.(*normalize.Failure); ok {
		status = models.ExecutionStatusFailed
		errMsg = failure.Message
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	completedAt := s.now()
	if err := s.store.CompleteExecution(runCtx, exec.ID, status, body, errMsg, completedAt); err != nil {
		log.Error().Err(err).Msg("Failed to record execution result")
		publish(s.events, protocol.ErrorEvent{
			Metadata:    protocol.NewMetadata(""),
			Message:     err.Error(),
			Context:     "complete execution",
			ExecutionID: exec.ID,
		})
		return nil, fmt.Errorf("complete execution: %w", err)
	}

	exec.Status = status
	exec.Result = body
	exec.Error = errMsg
	exec.CompletedAt = &completedAt
	publish(s.events, protocol.NewExecutionFinishedEvent(exec))

	log.Info().Str("status", string(status)).Dur("duration", completedAt.Sub(exec.CreatedAt)).Msg("Execution finished")
	return &Submission{Execution: exec, Result: result}, nil
}

// List returns a user's executions, newest first.
func (s *ExecutionService) List(ctx context.Context, userID string) ([]*models.Execution, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &InvalidRequestError{Message: "Missing required parameter: userId"}
	}
	execs, err := s.store.ListExecutionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return lo.Ternary(execs == nil, []*models.Execution{}, execs), nil
}

// Get returns one execution. Executions of other users are reported as not
// found.
func (s *ExecutionService) Get(ctx context.Context, userID, executionID string) (*models.Execution, error) {
	exec, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec.UserID != userID {
		return nil, ErrExecutionNotFound
	}
	return exec, nil
}
