// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/marketplace/database"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/payload"
	"github.com/noldarim/agentmarket/internal/marketplace/schema"
	"github.com/noldarim/agentmarket/internal/marketplace/templates"
	"github.com/noldarim/agentmarket/internal/marketplace/webhook"
	"github.com/noldarim/agentmarket/internal/protocol"
	"github.com/noldarim/agentmarket/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWebhookConfig() config.WebhookConfig {
	return config.WebhookConfig{
		UserAgent:      "AI-Agent-Marketplace/1.0",
		DefaultTimeout: 60 * time.Second,
		Policies: []config.HostPolicyConfig{
			{Pattern: "lyzr.ai", Timeout: 15 * time.Second, FallbackTemplate: "grammar_correction"},
		},
	}
}

type fixture struct {
	db         *database.GormDB
	agents     *AgentService
	executions *ExecutionService
	events     chan protocol.Event
}

func newFixture(t *testing.T, executor Executor) *fixture {
	t.Helper()

	tmpl, err := templates.Default("")
	require.NoError(t, err)
	adapters, err := normalize.DefaultAdapters("")
	require.NoError(t, err)

	if executor == nil {
		executor = webhook.NewCaller(payload.NewMerger(), normalize.New(adapters, tmpl))
	}

	db := database.UseFreshDatabase(t)
	events := make(chan protocol.Event, 32)
	agents, err := NewAgentService(db, testWebhookConfig(), 8,
		WithTemplates(tmpl), WithProviders(adapters), WithAgentEvents(events))
	require.NoError(t, err)

	return &fixture{
		db:         db,
		agents:     agents,
		executions: NewExecutionService(agents, db, executor, events),
		events:     events,
	}
}

func (f *fixture) drain() []protocol.Event {
	return testutil.DrainEvents(f.events)
}

func writerDefinition(url string) AgentDefinition {
	return AgentDefinition{
		CreatorID:    "creator-1",
		Title:        "Blog Writer",
		Description:  "Writes blog posts",
		ExecutionURL: url,
		Headers:      map[string]string{"Authorization": "Bearer {{API_KEY}}"},
		StaticFields: map[string]any{"tone": "friendly"},
		InputSchema: models.Schema{
			{Name: "topic", Type: models.FieldTypeText, Required: true},
		},
	}
}

type stubExecutor struct {
	result normalize.Result
	onCall func()
	calls  int
	ctxErr error
}

func (s *stubExecutor) Call(ctx context.Context, _ *models.Agent, _ map[string]any, _ string) (normalize.Result, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	s.ctxErr = ctx.Err()
	return s.result, nil
}

func TestAgentService_Create(t *testing.T) {
	f := newFixture(t, &stubExecutor{})
	ctx := context.Background()

	agent, err := f.agents.Create(ctx, writerDefinition("https://agents.example.com/run"))
	require.NoError(t, err)

	assert.Regexp(t, `^agent_[0-9a-f]{8}$`, agent.ID)
	assert.Equal(t, "POST", agent.HTTPMethod)
	assert.Equal(t, models.AgentStatusActive, agent.Status)
	assert.Equal(t, int64(60000), agent.Policy.TimeoutMS)
	assert.Empty(t, agent.Policy.FallbackTemplate)

	stored, err := f.db.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "friendly", stored.StaticFields["tone"])

	events := f.drain()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.AgentRegistered, events[0].(protocol.AgentLifecycleEvent).Type)
}

func TestAgentService_CreateResolvesHostPolicy(t *testing.T) {
	f := newFixture(t, &stubExecutor{})

	agent, err := f.agents.Create(context.Background(), writerDefinition("https://agent-prod.studio.lyzr.ai/v3/inference/chat/"))
	require.NoError(t, err)
	assert.Equal(t, int64(15000), agent.Policy.TimeoutMS)
	assert.Equal(t, "grammar_correction", agent.Policy.FallbackTemplate)

	def := writerDefinition("https://agent-prod.studio.lyzr.ai/v3/inference/chat/")
	def.ExecutionPolicy = &models.ExecutionPolicy{TimeoutMS: 5000}
	agent, err = f.agents.Create(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), agent.Policy.TimeoutMS)
	assert.Equal(t, "grammar_correction", agent.Policy.FallbackTemplate)
}

func TestAgentService_CreateRejects(t *testing.T) {
	f := newFixture(t, &stubExecutor{})

	tests := []struct {
		name    string
		mutate  func(*AgentDefinition)
		message string
	}{
		{
			name:    "missing fields",
			mutate:  func(d *AgentDefinition) { d.Title = ""; d.Description = "" },
			message: "Missing required fields: title, description",
		},
		{
			name:    "bad method",
			mutate:  func(d *AgentDefinition) { d.HTTPMethod = "TRACE" },
			message: "Invalid HTTP method. Must be one of: GET, POST, PUT, PATCH, DELETE",
		},
		{
			name:    "bad url",
			mutate:  func(d *AgentDefinition) { d.ExecutionURL = "not a url" },
			message: "execution_url must be a valid url",
		},
		{
			name:    "unknown field type",
			mutate:  func(d *AgentDefinition) { d.InputSchema[0].Type = "color" },
			message: "color",
		},
		{
			name:    "unknown provider",
			mutate:  func(d *AgentDefinition) { d.Provider = "nope" },
			message: "Unknown provider: nope",
		},
		{
			name: "unknown fallback template",
			mutate: func(d *AgentDefinition) {
				d.ExecutionPolicy = &models.ExecutionPolicy{FallbackTemplate: "limerick"}
			},
			message: "Unknown fallback template: limerick",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := writerDefinition("https://agents.example.com/run")
			def.InputSchema = models.Schema{{Name: "topic", Type: models.FieldTypeText, Required: true}}
			tt.mutate(&def)

			_, err := f.agents.Create(context.Background(), def)
			var invalid *InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, invalid.Message, tt.message)
		})
	}

	agents, err := f.agents.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestAgentService_LowercaseMethodIsNormalized(t *testing.T) {
	f := newFixture(t, &stubExecutor{})
	def := writerDefinition("https://agents.example.com/run")
	def.HTTPMethod = "get"

	agent, err := f.agents.Create(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "GET", agent.HTTPMethod)
}

func TestAgentService_GetAndListByCreator(t *testing.T) {
	f := newFixture(t, &stubExecutor{})
	ctx := context.Background()

	_, err := f.agents.Get(ctx, "agent_missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	a, err := f.agents.Create(ctx, writerDefinition("https://agents.example.com/a"))
	require.NoError(t, err)
	other := writerDefinition("https://agents.example.com/b")
	other.CreatorID = "creator-2"
	_, err = f.agents.Create(ctx, other)
	require.NoError(t, err)

	got, err := f.agents.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	mine, err := f.agents.ListByCreator(ctx, "creator-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	_, err = f.agents.ListByCreator(ctx, " ")
	var invalid *InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
}

func TestAgentService_Update(t *testing.T) {
	f := newFixture(t, &stubExecutor{})
	ctx := context.Background()

	a, err := f.agents.Create(ctx, writerDefinition("https://agents.example.com/a"))
	require.NoError(t, err)
	f.drain()

	def := writerDefinition("https://agents.example.com/v2")
	def.Title = "Blog Writer v2"
	updated, err := f.agents.Update(ctx, a.ID, def)
	require.NoError(t, err)
	assert.Equal(t, "Blog Writer v2", updated.Title)
	assert.Equal(t, "https://agents.example.com/v2", updated.ExecutionURL)
	assert.Equal(t, a.ID, updated.ID)

	events := f.drain()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.AgentUpdated, events[0].(protocol.AgentLifecycleEvent).Type)

	def.CreatorID = "someone-else"
	_, err = f.agents.Update(ctx, a.ID, def)
	var invalid *InvalidRequestError
	assert.ErrorAs(t, err, &invalid)

	_, err = f.agents.Update(ctx, "agent_missing", def)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

// readingStore reads the agent back through the service while an update is
// being written, the way a concurrent request would.
type readingStore struct {
	*database.GormDB
	svc *AgentService
}

func (s *readingStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	if _, err := s.svc.Get(ctx, agent.ID); err != nil {
		return err
	}
	if err := s.GormDB.UpdateAgent(ctx, agent); err != nil {
		return err
	}
	_, err := s.svc.Get(ctx, agent.ID)
	return err
}

func TestAgentService_UpdateWithConcurrentRead(t *testing.T) {
	db := database.UseFreshDatabase(t)
	store := &readingStore{GormDB: db}
	svc, err := NewAgentService(store, testWebhookConfig(), 8)
	require.NoError(t, err)
	store.svc = svc
	ctx := context.Background()

	a, err := svc.Create(ctx, writerDefinition("https://old.example.com/hook"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, a.ID, writerDefinition("https://new.example.com/hook"))
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com/hook", updated.ExecutionURL)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com/hook", got.ExecutionURL)
}

func TestAgentService_ImportSeedFile(t *testing.T) {
	f := newFixture(t, &stubExecutor{})
	ctx := context.Background()

	seed := `agents:
  - agent_id: agent_cf15c39b
    creator_id: lyzr
    title: Grammar Fixer
    description: Fixes grammar
    execution_url: https://agent-prod.studio.lyzr.ai/v3/inference/chat/
    input_schema:
      - name: text
        type: text
        required: true
  - agent_id: agent_social_001
    creator_id: demo
    title: Social Post
    description: Writes posts
    execution_url: https://httpbin.org/post
    execution_policy:
      timeout_ms: 2000
    input_schema:
      - name: topic
        type: text
`
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	n, err := f.agents.ImportSeedFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	grammar, err := f.agents.Get(ctx, "agent_cf15c39b")
	require.NoError(t, err)
	assert.Equal(t, "grammar_correction", grammar.Policy.FallbackTemplate)
	assert.Equal(t, "POST", grammar.HTTPMethod)

	social, err := f.agents.Get(ctx, "agent_social_001")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), social.Policy.TimeoutMS)

	// Importing again upserts instead of failing on the primary key.
	n, err = f.agents.ImportSeedFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := f.agents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAgentService_ImportSeedFileRequiresIDs(t *testing.T) {
	f := newFixture(t, &stubExecutor{})
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - title: nameless\n"), 0o600))

	_, err := f.agents.ImportSeedFile(context.Background(), path)
	assert.ErrorContains(t, err, "agent_id is required")
}

func TestExecutionService_SubmitSuccess(t *testing.T) {
	srv := testutil.NewAgentServer(t, http.StatusOK, `{"text_output":"Post about Go"}`)

	f := newFixture(t, nil)
	ctx := context.Background()
	agent, err := f.agents.Create(ctx, writerDefinition(srv.URL))
	require.NoError(t, err)
	f.drain()

	sub, err := f.executions.Submit(ctx, SubmitRequest{AgentID: agent.ID, UserID: "u1", Inputs: map[string]any{"topic": "Go"}})
	require.NoError(t, err)
	assert.False(t, sub.Failed())

	success, ok := sub.Result.(*normalize.Success)
	require.True(t, ok)
	assert.Equal(t, "Post about Go", success.TextOutput)
	assert.Equal(t, normalize.GenericSummary, success.Summary)

	stored, err := f.executions.Get(ctx, "u1", sub.Execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.JSONEq(t, `{
		"summary": "Agent execution completed successfully",
		"text_output": "Post about Go",
		"original_response": {"text_output": "Post about Go"}
	}`, string(stored.Result))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Go", reqs[0].Body["topic"])
	assert.Equal(t, "friendly", reqs[0].Body["tone"])
	assert.Equal(t, "u1", reqs[0].Body["user_id"])

	events := f.drain()
	require.Len(t, events, 2)
	assert.Equal(t, protocol.ExecutionStarted, events[0].(protocol.ExecutionLifecycleEvent).Type)
	assert.Equal(t, protocol.ExecutionCompleted, events[1].(protocol.ExecutionLifecycleEvent).Type)
}

func TestExecutionService_SubmitAgentFailureIsRecorded(t *testing.T) {
	stub := &stubExecutor{result: &normalize.Failure{
		Message: "Rate limit exceeded. Please try again later.",
		Details: map[string]any{"retry_after": 30.0},
		Status:  429,
	}}
	f := newFixture(t, stub)
	ctx := context.Background()
	agent, err := f.agents.Create(ctx, writerDefinition("https://agents.example.com/run"))
	require.NoError(t, err)

	sub, err := f.executions.Submit(ctx, SubmitRequest{AgentID: agent.ID, UserID: "u1", Inputs: map[string]any{"topic": "Go"}})
	require.NoError(t, err)
	assert.True(t, sub.Failed())

	stored, err := f.db.GetExecution(ctx, sub.Execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", stored.Error)
	assert.Contains(t, string(stored.Result), `"error":true`)
}

func TestExecutionService_SubmitSurvivesCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client goes away while the agent is running.
	stub := &stubExecutor{result: &normalize.Success{Summary: "done"}, onCall: cancel}
	f := newFixture(t, stub)
	agent, err := f.agents.Create(context.Background(), writerDefinition("https://agents.example.com/run"))
	require.NoError(t, err)

	sub, err := f.executions.Submit(ctx, SubmitRequest{AgentID: agent.ID, UserID: "u1", Inputs: map[string]any{"topic": "Go"}})
	require.NoError(t, err)
	assert.NoError(t, stub.ctxErr)

	stored, err := f.db.GetExecution(context.Background(), sub.Execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
}

func TestExecutionService_SubmitRejectsWithoutRecord(t *testing.T) {
	stub := &stubExecutor{result: &normalize.Success{}}
	f := newFixture(t, stub)
	ctx := context.Background()
	agent, err := f.agents.Create(ctx, writerDefinition("https://agents.example.com/run"))
	require.NoError(t, err)

	_, err = f.executions.Submit(ctx, SubmitRequest{AgentID: agent.ID, UserID: "u1"})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Missing required fields: agent_id, user_id, inputs", invalid.Message)

	_, err = f.executions.Submit(ctx, SubmitRequest{AgentID: agent.ID, UserID: "u1", Inputs: map[string]any{}})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "Missing required field: topic")

	_, err = f.executions.Submit(ctx, SubmitRequest{AgentID: "agent_missing", UserID: "u1", Inputs: map[string]any{}})
	assert.ErrorIs(t, err, ErrAgentNotFound)

	assert.Zero(t, stub.calls)
	execs, err := f.executions.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestExecutionService_GetScopedToUser(t *testing.T) {
	f := newFixture(t, &stubExecutor{result: &normalize.Success{Summary: "ok"}})
	ctx := context.Background()
	agent, err := f.agents.Create(ctx, writerDefinition("https://agents.example.com/run"))
	require.NoError(t, err)

	sub, err := f.executions.Submit(ctx, SubmitRequest{AgentID: agent.ID, UserID: "u1", Inputs: map[string]any{"topic": "Go"}})
	require.NoError(t, err)

	_, err = f.executions.Get(ctx, "u2", sub.Execution.ID)
	assert.ErrorIs(t, err, ErrExecutionNotFound)
	_, err = f.executions.Get(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	list, err := f.executions.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sub.Execution.ID, list[0].ID)
}
