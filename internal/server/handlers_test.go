// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/marketplace/database"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/payload"
	"github.com/noldarim/agentmarket/internal/marketplace/services"
	"github.com/noldarim/agentmarket/internal/marketplace/templates"
	"github.com/noldarim/agentmarket/internal/marketplace/webhook"
	"github.com/noldarim/agentmarket/internal/protocol"
	"github.com/noldarim/agentmarket/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	api    *httptest.Server
	events chan protocol.Event
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()

	tmpl, err := templates.Default("")
	require.NoError(t, err)
	adapters, err := normalize.DefaultAdapters("")
	require.NoError(t, err)

	db := database.UseFreshDatabase(t)
	events := make(chan protocol.Event, 64)
	webhookCfg := config.WebhookConfig{UserAgent: "test", DefaultTimeout: 5 * time.Second}

	agents, err := services.NewAgentService(db, webhookCfg, 16,
		services.WithTemplates(tmpl), services.WithProviders(adapters), services.WithAgentEvents(events))
	require.NoError(t, err)
	caller := webhook.NewCaller(payload.NewMerger(), normalize.New(adapters, tmpl))
	executions := services.NewExecutionService(agents, db, caller, events)

	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 0, MaxBodyBytes: 1 << 20}
	api := httptest.NewServer(NewRouter(cfg, NewHandlers(agents, executions), NewClientRegistry()))
	t.Cleanup(api.Close)
	return &apiFixture{api: api, events: events}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.api.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func agentBody(url string) map[string]any {
	return map[string]any{
		"creator_id":    "creator-1",
		"title":         "Social Post Writer",
		"description":   "Writes posts",
		"execution_url": url,
		"http_method":   "POST",
		"input_schema":  testutil.SocialPostSchema(),
	}
}

func TestRootAndHealth(t *testing.T) {
	f := newAPI(t)

	status, body := f.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AI Agent Marketplace API", body["message"])

	status, body = f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])

	status, body = f.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", body["error"])
}

func TestCreateAgentAndFetch(t *testing.T) {
	f := newAPI(t)

	status, body := f.do(t, http.MethodPost, "/api/create-agent", agentBody("https://agents.example.com/run"))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Agent created successfully", body["message"])
	agent := body["agent"].(map[string]any)
	agentID := agent["agent_id"].(string)
	assert.Regexp(t, `^agent_`, agentID)

	status, body = f.do(t, http.MethodGet, "/api/agents/"+agentID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Social Post Writer", body["title"])

	status, body = f.do(t, http.MethodGet, "/api/creator/creator-1/agents", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = f.do(t, http.MethodGet, "/api/agents/"+agentID+"/form", nil)
	assert.Equal(t, http.StatusOK, status)
	fields := body["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "select", fields[1].(map[string]any)["type"])
	assert.Contains(t, body["sample_input"], "topic")

	status, body = f.do(t, http.MethodGet, "/api/agents/agent_missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No agent found with ID: agent_missing", body["message"])
}

func TestListAgentsReturnsArray(t *testing.T) {
	f := newAPI(t)

	resp, err := http.Get(f.api.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	var agents []any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agents))
	assert.Empty(t, agents)
	assert.NotNil(t, agents)
}

func TestCreateAgentRejections(t *testing.T) {
	f := newAPI(t)

	missing := agentBody("https://agents.example.com/run")
	delete(missing, "title")
	status, body := f.do(t, http.MethodPost, "/api/create-agent", missing)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields: title", body["error"])

	badMethod := agentBody("https://agents.example.com/run")
	badMethod["http_method"] = "TRACE"
	status, body = f.do(t, http.MethodPost, "/api/create-agent", badMethod)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid HTTP method. Must be one of: GET, POST, PUT, PATCH, DELETE", body["error"])
}

func TestUpdateAgent(t *testing.T) {
	f := newAPI(t)
	_, body := f.do(t, http.MethodPost, "/api/create-agent", agentBody("https://agents.example.com/run"))
	agentID := body["agent"].(map[string]any)["agent_id"].(string)

	update := agentBody("https://agents.example.com/v2")
	update["title"] = "Renamed"
	status, body := f.do(t, http.MethodPut, "/api/agents/"+agentID, update)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Renamed", body["agent"].(map[string]any)["title"])

	status, _ = f.do(t, http.MethodPut, "/api/agents/agent_missing", update)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubmitExecutionLifecycle(t *testing.T) {
	agentSrv := testutil.NewAgentServer(t, http.StatusOK, `{"response":"Ship it #golang"}`)

	f := newAPI(t)
	_, body := f.do(t, http.MethodPost, "/api/create-agent", agentBody(agentSrv.URL))
	agentID := body["agent"].(map[string]any)["agent_id"].(string)

	status, body := f.do(t, http.MethodPost, "/api/submit-execution", map[string]any{
		"agent_id": agentID,
		"user_id":  "user-7",
		"inputs":   map[string]any{"topic": "Go"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Agent execution completed successfully", body["message"])
	execID := body["execution_id"].(string)
	result := body["result"].(map[string]any)
	assert.Equal(t, "Ship it #golang", result["text_output"])

	status, body = f.do(t, http.MethodGet, "/api/executions/user-7", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = f.do(t, http.MethodGet, "/api/executions/user-7/"+execID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", body["execution"].(map[string]any)["status"])

	status, body = f.do(t, http.MethodGet, "/api/executions/other-user/"+execID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Execution not found", body["error"])
}

func TestSubmitExecutionAgentFailure(t *testing.T) {
	agentSrv := testutil.NewAgentServer(t, http.StatusUnauthorized, `{"detail":"bad key"}`)

	f := newAPI(t)
	_, body := f.do(t, http.MethodPost, "/api/create-agent", agentBody(agentSrv.URL))
	agentID := body["agent"].(map[string]any)["agent_id"].(string)

	status, body := f.do(t, http.MethodPost, "/api/submit-execution", map[string]any{
		"agent_id": agentID,
		"user_id":  "user-7",
		"inputs":   map[string]any{"topic": "Go"},
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Agent execution failed", body["error"])
	assert.Equal(t, "Authentication failed. Please check your API key.", body["message"])
	assert.Equal(t, map[string]any{"detail": "bad key"}, body["details"])
	assert.NotEmpty(t, body["execution_id"])

	status, body = f.do(t, http.MethodGet, "/api/executions/user-7", nil)
	assert.Equal(t, http.StatusOK, status)
	execs := body["executions"].([]any)
	require.Len(t, execs, 1)
	assert.Equal(t, "failed", execs[0].(map[string]any)["status"])
}

func TestSubmitExecutionRejections(t *testing.T) {
	f := newAPI(t)
	_, body := f.do(t, http.MethodPost, "/api/create-agent", agentBody("https://agents.example.com/run"))
	agentID := body["agent"].(map[string]any)["agent_id"].(string)

	status, body := f.do(t, http.MethodPost, "/api/submit-execution", map[string]any{"agent_id": agentID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required fields: agent_id, user_id, inputs", body["error"])

	status, body = f.do(t, http.MethodPost, "/api/submit-execution", map[string]any{
		"agent_id": agentID,
		"user_id":  "user-7",
		"inputs":   map[string]any{"platform": "myspace"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Input validation failed", body["error"])
	assert.Len(t, body["details"], 2)

	status, _ = f.do(t, http.MethodPost, "/api/submit-execution", map[string]any{
		"agent_id": "agent_missing",
		"user_id":  "user-7",
		"inputs":   map[string]any{},
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = f.do(t, http.MethodGet, "/api/executions/user-7", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])
}

func TestInvalidJSONBody(t *testing.T) {
	f := newAPI(t)
	resp, err := http.Post(f.api.URL+"/api/create-agent", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
