// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package payload turns an agent definition plus user inputs into the
// outbound webhook request.
package payload

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/schema"
	"github.com/rs/zerolog"
)

const (
	TokenTimestamp = "{{timestamp}}"
	TokenAPIKey    = "{{API_KEY}}"
	TokenUserID    = "{{USER_ID}}"

	// AnonymousUser replaces {{USER_ID}} when no user id is supplied.
	AnonymousUser = "anonymous"

	// DefaultUserAgent is sent unless the agent overrides User-Agent.
	DefaultUserAgent = "AI-Agent-Marketplace/1.0"

	isoMillis = "2006-01-02T15:04:05.000Z"
)

// apiKeyInputs are checked in order for the {{API_KEY}} value.
var apiKeyInputs = []string{"api_key", "apiKey", "key"}

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetWebhookLogger().With().Str("component", "payload").Logger()
		log = &l
	})
	return log
}

// Payload is a fully resolved outbound request.
type Payload struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Body     map[string]any    `json:"body"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Merger builds payloads. The zero value is not usable; call NewMerger.
type Merger struct {
	userAgent string
	now       func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(m *Merger) {
		if ua != "" {
			m.userAgent = ua
		}
	}
}

// WithClock sets the clock used for {{timestamp}}.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// NewMerger creates a Merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{userAgent: DefaultUserAgent, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Build validates inputs against the agent schema and assembles the request.
// Invalid inputs return a *schema.ValidationError and no payload.
//
// The body is layered so later sources win: user_id, then the agent's static
// fields after placeholder substitution, then the raw user inputs.
func (m *Merger) Build(agent *models.Agent, inputs map[string]any, userID string) (*Payload, error) {
	if err := schema.ValidateInput(agent.InputSchema, inputs); err != nil {
		return nil, err
	}

	r := &resolver{
		timestamp: m.now().UTC().Format(isoMillis),
		inputs:    inputs,
		userID:    userID,
	}

	body := make(map[string]any, len(agent.StaticFields)+len(inputs)+1)
	if userID != "" {
		body["user_id"] = userID
	}
	for k, v := range agent.StaticFields {
		body[k] = r.resolve(v)
	}
	for k, v := range inputs {
		body[k] = v
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   m.userAgent,
	}
	for k, v := range agent.Headers {
		headers[http.CanonicalHeaderKey(k)] = r.resolveString(v)
	}

	method := strings.ToUpper(strings.TrimSpace(agent.HTTPMethod))
	if method == "" {
		method = http.MethodPost
	}

	return &Payload{
		URL:      agent.ExecutionURL,
		Method:   method,
		Headers:  headers,
		Body:     body,
		Warnings: r.warnings,
	}, nil
}

// resolver substitutes placeholders for one Build call.
type resolver struct {
	timestamp string
	inputs    map[string]any
	userID    string
	warnings  []string
	warned    bool
}

func (r *resolver) resolve(v any) any {
	switch val := v.(type) {
	case string:
		return r.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = r.resolve(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = r.resolve(inner)
		}
		return out
	default:
		return v
	}
}

// resolveString runs two passes: {{timestamp}} and {{API_KEY}} first, then
// {{USER_ID}}.
func (r *resolver) resolveString(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	s = strings.ReplaceAll(s, TokenTimestamp, r.timestamp)
	if strings.Contains(s, TokenAPIKey) {
		if key, ok := r.apiKey(); ok {
			s = strings.ReplaceAll(s, TokenAPIKey, key)
		} else if !r.warned {
			r.warned = true
			msg := "API key placeholder found but no API key provided in inputs"
			r.warnings = append(r.warnings, msg)
			getLog().Warn().Msg(msg)
		}
	}

	user := r.userID
	if user == "" {
		user = AnonymousUser
	}
	return strings.ReplaceAll(s, TokenUserID, user)
}

func (r *resolver) apiKey() (string, bool) {
	for _, name := range apiKeyInputs {
		v, ok := r.inputs[name]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s != "" {
			return s, true
		}
	}
	return "", false
}
