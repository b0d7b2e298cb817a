// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/marketplace/database"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/schema"
	"github.com/noldarim/agentmarket/internal/protocol"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const defaultCacheSize = 256

// AgentDefinition is what a creator submits to register or update an agent.
type AgentDefinition struct {
	CreatorID       string                  `json:"creator_id" yaml:"creator_id" validate:"required"`
	Title           string                  `json:"title" yaml:"title" validate:"required"`
	Description     string                  `json:"description" yaml:"description" validate:"required"`
	ExecutionURL    string                  `json:"execution_url" yaml:"execution_url" validate:"required,url"`
	HTTPMethod      string                  `json:"http_method" yaml:"http_method"`
	Headers         map[string]string       `json:"headers" yaml:"headers"`
	StaticFields    map[string]any          `json:"static_fields" yaml:"static_fields"`
	InputSchema     models.Schema           `json:"input_schema" yaml:"input_schema" validate:"required"`
	Provider        string                  `json:"provider,omitempty" yaml:"provider,omitempty"`
	ExecutionPolicy *models.ExecutionPolicy `json:"execution_policy,omitempty" yaml:"execution_policy,omitempty"`
}

// TemplateLookup reports whether a local template exists.
type TemplateLookup interface {
	Has(id string) bool
}

// ProviderLookup reports whether a provider adapter id exists.
type ProviderLookup interface {
	IDs() []string
}

// AgentService manages the agent catalogue.
type AgentService struct {
	store     AgentStore
	cache     *lru.Cache[string, *models.Agent]
	webhook   config.WebhookConfig
	events    chan<- protocol.Event
	templates TemplateLookup
	providers ProviderLookup
	now       func() time.Time
}

// AgentOption configures an AgentService.
type AgentOption func(*AgentService)

// WithTemplates rejects fallback templates that are not registered.
func WithTemplates(t TemplateLookup) AgentOption {
	return func(s *AgentService) { s.templates = t }
}

// WithProviders rejects provider ids that are not registered.
func WithProviders(p ProviderLookup) AgentOption {
	return func(s *AgentService) { s.providers = p }
}

// WithAgentEvents publishes agent lifecycle events to ch.
func WithAgentEvents(ch chan<- protocol.Event) AgentOption {
	return func(s *AgentService) { s.events = ch }
}

// NewAgentService creates the catalogue service. cacheSize <= 0 uses the default.
func NewAgentService(store AgentStore, webhook config.WebhookConfig, cacheSize int, opts ...AgentOption) (*AgentService, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *models.Agent](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create agent cache: %w", err)
	}
	s := &AgentService{
		store:   store,
		cache:   cache,
		webhook: webhook,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates and stores a new agent. Rejected definitions return an
// *InvalidRequestError.
func (s *AgentService) Create(ctx context.Context, def AgentDefinition) (*models.Agent, error) {
	agent, err := s.build(def)
	if err != nil {
		return nil, err
	}
	agent.ID = newAgentID()
	agent.Status = models.AgentStatusActive
	agent.CreatedAt = s.now()
	agent.UpdatedAt = agent.CreatedAt

	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("store agent: %w", err)
	}

	getLog().Info().
		Str("agent_id", agent.ID).
		Str("creator_id", agent.CreatorID).
		Str("method", agent.HTTPMethod).
		Int("headers", len(agent.Headers)).
		Int("static_fields", len(agent.StaticFields)).
		Int("input_fields", len(agent.InputSchema)).
		Int64("timeout_ms", agent.Policy.TimeoutMS).
		Msg("Agent created")

	s.cache.Add(agent.ID, agent)
	publish(s.events, protocol.NewAgentEvent(protocol.AgentRegistered, agent))
	return agent, nil
}

// Update replaces the mutable definition of an existing agent. The creator
// cannot change.
func (s *AgentService) Update(ctx context.Context, agentID string, def AgentDefinition) (*models.Agent, error) {
	existing, err := s.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if def.CreatorID != existing.CreatorID {
		return nil, &InvalidRequestError{Message: "creator_id does not match the agent owner"}
	}

	agent, err := s.build(def)
	if err != nil {
		return nil, err
	}
	agent.ID = existing.ID
	agent.Status = existing.Status
	agent.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("update agent: %w", err)
	}
	// Invalidate only once the row is written; a read racing the write
	// could otherwise re-cache the old row.
	s.cache.Remove(agentID)

	getLog().Info().Str("agent_id", agent.ID).Msg("Agent updated")
	publish(s.events, protocol.NewAgentEvent(protocol.AgentUpdated, agent))
	return s.Get(ctx, agentID)
}

// Get returns an agent by id through the read cache.
func (s *AgentService) Get(ctx context.Context, agentID string) (*models.Agent, error) {
	if agent, ok := s.cache.Get(agentID); ok {
		return agent, nil
	}
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("load agent %s: %w", agentID, err)
	}
	s.cache.Add(agentID, agent)
	return agent, nil
}

// List returns every agent, newest first.
func (s *AgentService) List(ctx context.Context) ([]*models.Agent, error) {
	return s.store.ListAgents(ctx)
}

// ListByCreator returns a creator's agents, newest first.
func (s *AgentService) ListByCreator(ctx context.Context, creatorID string) ([]*models.Agent, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, &InvalidRequestError{Message: "Missing required parameter: creatorId"}
	}
	return s.store.ListAgentsByCreator(ctx, creatorID)
}

type seedFile struct {
	Agents []*models.Agent `yaml:"agents"`
}

// ImportSeedFile upserts the agents listed in a YAML seed file and returns
// how many were imported. Seeded agents keep their ids.
func (s *AgentService) ImportSeedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i, agent := range f.Agents {
		if agent.ID == "" {
			return i, fmt.Errorf("seed agent %d: agent_id is required", i)
		}
		def := AgentDefinition{
			CreatorID:    agent.CreatorID,
			Title:        agent.Title,
			Description:  agent.Description,
			ExecutionURL: agent.ExecutionURL,
			HTTPMethod:   agent.HTTPMethod,
			Headers:      agent.Headers,
			StaticFields: agent.StaticFields,
			InputSchema:  agent.InputSchema,
			Provider:     agent.Provider,
		}
		if agent.Policy != (models.ExecutionPolicy{}) {
			policy := agent.Policy
			def.ExecutionPolicy = &policy
		}

		built, err := s.build(def)
		if err != nil {
			return i, fmt.Errorf("seed agent %s: %w", agent.ID, err)
		}
		built.ID = agent.ID
		built.Status = lo.Ternary(agent.Status == "", models.AgentStatusActive, agent.Status)
		built.CreatedAt = lo.Ternary(agent.CreatedAt.IsZero(), s.now(), agent.CreatedAt)
		built.UpdatedAt = s.now()

		if err := s.store.UpsertAgent(ctx, built); err != nil {
			return i, fmt.Errorf("store seed agent %s: %w", agent.ID, err)
		}
		s.cache.Remove(built.ID)
		publish(s.events, protocol.NewAgentEvent(protocol.AgentImported, built))
	}

	getLog().Info().Str("path", path).Int("count", len(f.Agents)).Msg("Imported seed agents")
	return len(f.Agents), nil
}

// build validates a definition and resolves its policy.
func (s *AgentService) build(def AgentDefinition) (*models.Agent, error) {
	if err := schema.Struct().Struct(def); err != nil {
		return nil, &InvalidRequestError{Message: describeDefinitionErrors(err)}
	}

	method := strings.ToUpper(strings.TrimSpace(def.HTTPMethod))
	if method == "" {
		method = "POST"
	}
	if !lo.Contains(models.HTTPMethods, method) {
		return nil, &InvalidRequestError{Message: "Invalid HTTP method. Must be one of: " + strings.Join(models.HTTPMethods, ", ")}
	}

	if err := schema.ValidateDefinitions(def.InputSchema); err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}

	if def.Provider != "" && s.providers != nil && !lo.Contains(s.providers.IDs(), def.Provider) {
		return nil, &InvalidRequestError{Message: fmt.Sprintf("Unknown provider: %s", def.Provider)}
	}

	agent := &models.Agent{
		CreatorID:    def.CreatorID,
		Title:        def.Title,
		Description:  def.Description,
		ExecutionURL: def.ExecutionURL,
		HTTPMethod:   method,
		Headers:      models.StringMap(lo.Ternary(def.Headers == nil, map[string]string{}, def.Headers)),
		StaticFields: models.ValueMap(lo.Ternary(def.StaticFields == nil, map[string]any{}, def.StaticFields)),
		InputSchema:  def.InputSchema,
		Provider:     def.Provider,
	}
	agent.Policy = s.resolvePolicy(agent.Host(), def.ExecutionPolicy)

	if fb := agent.Policy.FallbackTemplate; fb != "" && s.templates != nil && !s.templates.Has(fb) {
		return nil, &InvalidRequestError{Message: fmt.Sprintf("Unknown fallback template: %s", fb)}
	}
	return agent, nil
}

// resolvePolicy starts from the host policy table; explicit values win.
func (s *AgentService) resolvePolicy(host string, explicit *models.ExecutionPolicy) models.ExecutionPolicy {
	timeout, fallback := s.webhook.PolicyFor(host)
	policy := models.ExecutionPolicy{TimeoutMS: timeout.Milliseconds(), FallbackTemplate: fallback}
	if explicit != nil {
		if explicit.TimeoutMS > 0 {
			policy.TimeoutMS = explicit.TimeoutMS
		}
		if explicit.FallbackTemplate != "" {
			policy.FallbackTemplate = explicit.FallbackTemplate
		}
	}
	return policy
}

func describeDefinitionErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag()))
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Missing required fields: "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return strings.Join(parts, "; ")
}

func newAgentID() string {
	id, _, _ := strings.Cut(uuid.NewString(), "-")
	return "agent_" + id
}
