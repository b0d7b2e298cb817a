// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the events the marketplace publishes while agents
// are registered and executed. API clients receive them over the WebSocket
// stream.
package protocol

import (
	"encoding/json"

	"github.com/noldarim/agentmarket/internal/common"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
)

// GetIdempotencyKey extracts the idempotency key from any event
func GetIdempotencyKey(event Event) string {
	return event.GetMetadata().IdempotencyKey
}

// ExecutionLifecycleType defines the type of execution lifecycle event
type ExecutionLifecycleType string

const (
	// ExecutionStarted - a running record was created and the webhook is being called
	ExecutionStarted ExecutionLifecycleType = "started"
	// ExecutionCompleted - the agent returned a usable result
	ExecutionCompleted ExecutionLifecycleType = "completed"
	// ExecutionFailed - the agent call failed
	ExecutionFailed ExecutionLifecycleType = "failed"
)

// ExecutionLifecycleEvent reports a state change of one execution.
type ExecutionLifecycleEvent struct {
	Metadata
	Type        ExecutionLifecycleType `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	AgentID     string                 `json:"agent_id"`
	UserID      string                 `json:"user_id"`
	// Result is the normalized result, set once the execution is terminal.
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (e ExecutionLifecycleEvent) GetMetadata() Metadata {
	return e.Metadata
}

// NewExecutionStartedEvent creates an ExecutionStarted lifecycle event
func NewExecutionStartedEvent(exec *models.Execution) ExecutionLifecycleEvent {
	return ExecutionLifecycleEvent{
		Metadata:    common.NewMetadata(exec.ID + ":" + string(ExecutionStarted)),
		Type:        ExecutionStarted,
		ExecutionID: exec.ID,
		AgentID:     exec.AgentID,
		UserID:      exec.UserID,
	}
}

// NewExecutionFinishedEvent creates a Completed or Failed event from a
// terminal execution record.
func NewExecutionFinishedEvent(exec *models.Execution) ExecutionLifecycleEvent {
	t := ExecutionCompleted
	if exec.Status == models.ExecutionStatusFailed {
		t = ExecutionFailed
	}
	return ExecutionLifecycleEvent{
		Metadata:    common.NewMetadata(exec.ID + ":" + string(t)),
		Type:        t,
		ExecutionID: exec.ID,
		AgentID:     exec.AgentID,
		UserID:      exec.UserID,
		Result:      json.RawMessage(exec.Result),
		Error:       exec.Error,
	}
}

// AgentLifecycleType defines the type of agent lifecycle event
type AgentLifecycleType string

const (
	AgentRegistered AgentLifecycleType = "registered"
	AgentUpdated    AgentLifecycleType = "updated"
	// AgentImported - the agent was loaded from the seed file
	AgentImported AgentLifecycleType = "imported"
)

// AgentLifecycleEvent reports catalogue changes.
type AgentLifecycleEvent struct {
	Metadata
	Type      AgentLifecycleType `json:"type"`
	AgentID   string             `json:"agent_id"`
	CreatorID string             `json:"creator_id"`
	Title     string             `json:"title"`
}

func (e AgentLifecycleEvent) GetMetadata() Metadata {
	return e.Metadata
}

// NewAgentEvent creates an agent lifecycle event.
func NewAgentEvent(t AgentLifecycleType, agent *models.Agent) AgentLifecycleEvent {
	return AgentLifecycleEvent{
		Metadata:  common.NewMetadata(""),
		Type:      t,
		AgentID:   agent.ID,
		CreatorID: agent.CreatorID,
		Title:     agent.Title,
	}
}

// ErrorEvent is sent when a background step fails after the HTTP response
// was already written, e.g. persisting a result.
type ErrorEvent struct {
	Metadata
	Message     string `json:"message"`
	Context     string `json:"context,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"` // Optional - identifies which execution the error is related to
}

func (e ErrorEvent) GetMetadata() Metadata {
	return e.Metadata
}
