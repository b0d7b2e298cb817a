// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/schema"
	"github.com/noldarim/agentmarket/internal/marketplace/services"

	"github.com/go-chi/chi/v5"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	agents     *services.AgentService
	executions *services.ExecutionService
}

// NewHandlers creates the handler set.
func NewHandlers(agents *services.AgentService, executions *services.ExecutionService) *Handlers {
	return &Handlers{agents: agents, executions: executions}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		getLog().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeRequestError maps rejections to 400 and everything else to 500 with
// the given error label. 500 bodies carry the request id for log lookup.
func writeRequestError(w http.ResponseWriter, r *http.Request, label string, err error) {
	var invalid *services.InvalidRequestError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: invalid.Message})
		return
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Input validation failed",
			"message": verr.Error(),
			"details": verr.Errors,
		})
		return
	}
	reqID := requestIDFrom(r.Context())
	getLog().Error().Err(err).Str("request_id", reqID).Msg(label)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: label, Message: err.Error(), RequestID: reqID})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error:   "Request body too large",
				Message: fmt.Sprintf("Request bodies are limited to %d bytes", tooLarge.Limit),
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body", Message: err.Error()})
		return false
	}
	return true
}

// --- service info ---

// Root handles GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "AI Agent Marketplace API",
		"version": Version,
		"endpoints": map[string]string{
			"health":     "/api/health",
			"agents":     "/api/agents",
			"executions": "/api/executions",
			"submit":     "/api/submit-execution",
		},
	})
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"message":   "AI Agent Marketplace API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// NotFound answers unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Message: "The requested endpoint does not exist"})
}

// --- agents ---

// ListAgents handles GET /api/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.List(r.Context())
	if err != nil {
		writeRequestError(w, r, "Failed to fetch agents", err)
		return
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// GetAgent handles GET /api/agents/{agentId}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	agent, err := h.agents.Get(r.Context(), agentID)
	if err != nil {
		h.writeAgentError(w, r, agentID, "Failed to fetch agent", err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type agentFormResponse struct {
	AgentID     string             `json:"agent_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Fields      []schema.FormField `json:"fields"`
	SampleInput map[string]any     `json:"sample_input"`
}

// GetAgentForm handles GET /api/agents/{agentId}/form
func (h *Handlers) GetAgentForm(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	agent, err := h.agents.Get(r.Context(), agentID)
	if err != nil {
		h.writeAgentError(w, r, agentID, "Failed to fetch agent", err)
		return
	}
	writeJSON(w, http.StatusOK, agentFormResponse{
		AgentID:     agent.ID,
		Title:       agent.Title,
		Description: agent.Description,
		Fields:      schema.FormFields(agent.InputSchema),
		SampleInput: schema.SampleInput(agent.InputSchema),
	})
}

// CreateAgent handles POST /api/create-agent
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var body services.AgentDefinition
	if !decodeBody(w, r, &body) {
		return
	}

	agent, err := h.agents.Create(r.Context(), body)
	if err != nil {
		writeRequestError(w, r, "Failed to create agent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agent":   agent,
		"message": "Agent created successfully",
	})
}

// UpdateAgent handles PUT /api/agents/{agentId}
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	var body services.AgentDefinition
	if !decodeBody(w, r, &body) {
		return
	}

	agent, err := h.agents.Update(r.Context(), agentID, body)
	if err != nil {
		h.writeAgentError(w, r, agentID, "Failed to update agent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agent":   agent,
		"message": "Agent updated successfully",
	})
}

// ListCreatorAgents handles GET /api/creator/{creatorId}/agents
func (h *Handlers) ListCreatorAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListByCreator(r.Context(), chi.URLParam(r, "creatorId"))
	if err != nil {
		writeRequestError(w, r, "Failed to fetch creator agents", err)
		return
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agents":  agents,
		"count":   len(agents),
	})
}

func (h *Handlers) writeAgentError(w http.ResponseWriter, r *http.Request, agentID, label string, err error) {
	if errors.Is(err, services.ErrAgentNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Agent not found", Message: "No agent found with ID: " + agentID})
		return
	}
	writeRequestError(w, r, label, err)
}

// --- executions ---

// SubmitExecution handles POST /api/submit-execution
func (h *Handlers) SubmitExecution(w http.ResponseWriter, r *http.Request) {
	var body services.SubmitRequest
	if !decodeBody(w, r, &body) {
		return
	}

	sub, err := h.executions.Submit(r.Context(), body)
	if err != nil {
		if errors.Is(err, services.ErrAgentNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "Agent not found", Message: "No agent found with ID: " + body.AgentID})
			return
		}
		writeRequestError(w, r, "Execution failed", err)
		return
	}

	if failure, ok := sub.Result.(*normalize.Failure); ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":      false,
			"execution_id": sub.Execution.ID,
			"error":        normalize.DefaultFailure,
			"message":      failure.Message,
			"details":      failure.Details,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"execution_id": sub.Execution.ID,
		"result":       sub.Result,
		"message":      "Agent execution completed successfully",
	})
}

// ListExecutions handles GET /api/executions/{userId}
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.executions.List(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeRequestError(w, r, "Failed to fetch executions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"executions": execs,
		"count":      len(execs),
	})
}

// GetExecution handles GET /api/executions/{userId}/{executionId}
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.executions.Get(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "executionId"))
	if err != nil {
		if errors.Is(err, services.ErrExecutionNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "Execution not found"})
			return
		}
		writeRequestError(w, r, "Failed to fetch execution", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"execution": exec,
	})
}
