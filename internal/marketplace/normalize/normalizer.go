// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package normalize maps raw webhook responses onto the marketplace result
// shape.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/templates"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	GenericSummary = "Agent execution completed successfully"
	DefaultFailure = "Agent execution failed"
	NoDetails      = "No additional details available"

	textOutputKey = "text_output"
)

// genericFields are checked in order when no adapter applies.
var genericFields = []string{"text_output", "response", "answer", "output"}

// StatusMessages are used for these upstream statuses instead of the status text.
var StatusMessages = map[int]string{
	http.StatusUnauthorized:        "Authentication failed. Please check your API key.",
	http.StatusForbidden:           "Access denied. Please check your API permissions.",
	http.StatusTooManyRequests:     "Rate limit exceeded. Please try again later.",
	http.StatusInternalServerError: "Agent service internal error. Please try again later.",
}

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetNormalizeLogger().With().Str("component", "normalizer").Logger()
		log = &l
	})
	return log
}

// RawResponse is what the caller received.
type RawResponse struct {
	StatusCode int
	// StatusText is the reason phrase, e.g. "Not Found". May be empty.
	StatusText string
	Body       []byte
}

// Normalizer turns raw responses into Results. Safe for concurrent use.
type Normalizer struct {
	adapters  *Adapters
	templates *templates.Registry
}

// New creates a Normalizer.
func New(adapters *Adapters, tmpl *templates.Registry) *Normalizer {
	return &Normalizer{adapters: adapters, templates: tmpl}
}

// Adapter returns the adapter that applies to agent, if any.
func (n *Normalizer) Adapter(agent *models.Agent) (*Adapter, bool) {
	if n.adapters == nil {
		return nil, false
	}
	return n.adapters.Resolve(agent.Provider, agent.Host())
}

// Normalize maps raw onto a Result. It never fails: unexpected shapes are
// passed through.
func (n *Normalizer) Normalize(agent *models.Agent, inputs map[string]any, raw *RawResponse) Result {
	if raw.StatusCode < 200 || raw.StatusCode >= 300 {
		return statusFailure(raw)
	}

	doc, body := parseBody(raw.Body)

	var result Result
	if adapter, ok := n.Adapter(agent); ok {
		result = n.applyAdapter(adapter, agent, inputs, doc, body)
	} else {
		result = generic(doc, body)
	}

	if s, ok := result.(*Success); ok && s.Summary == "" && truthy(s.TextOutput) {
		s.Summary = fmt.Sprintf("Generated %d output(s)", outputCount(s.TextOutput))
	}
	return result
}

// Fallback renders the local template as a successful result after the
// upstream call failed.
func (n *Normalizer) Fallback(templateID string, inputs map[string]any, originalError string) (*Success, bool) {
	if n.templates == nil || templateID == "" {
		return nil, false
	}
	out, err := n.templates.Render(templateID, inputs)
	if err != nil {
		getLog().Error().Err(err).Str("template", templateID).Msg("Fallback template failed")
		return nil, false
	}
	return &Success{
		Summary:       out.Summary,
		TextOutput:    out.Text,
		FallbackUsed:  true,
		OriginalError: originalError,
	}, true
}

func (n *Normalizer) applyAdapter(a *Adapter, agent *models.Agent, inputs map[string]any, doc []byte, body map[string]any) Result {
	if a.Kind == KindLocal {
		if n.templates == nil {
			return generic(doc, body)
		}
		out, err := n.templates.RenderForAgent(agent.ID, agent.Title, inputs)
		if err != nil {
			getLog().Error().Err(err).Str("agent_id", agent.ID).Msg("Local template failed")
			return generic(doc, body)
		}
		return &Success{Summary: out.Summary, TextOutput: out.Text}
	}

	field := gjson.GetBytes(doc, a.Field)
	if !field.Exists() || !truthy(field.Value()) {
		if fb, ok := n.Fallback(a.MissingFallback, inputs, ""); ok {
			getLog().Info().Str("provider", a.ID).Str("agent_id", agent.ID).
				Msg("Provider response missing expected field, using local fallback")
			fb.OriginalResponse = body
			return fb
		}
		return passThrough(body)
	}

	s := &Success{
		Summary:          a.Summary,
		TextOutput:       field.Value(),
		OriginalResponse: body,
	}
	for _, e := range a.Extras {
		v := gjson.GetBytes(doc, e.path())
		switch {
		case v.Exists() && truthy(v.Value()):
			s.setExtra(e.Name, v.Value())
		case e.Default != nil:
			s.setExtra(e.Name, e.Default)
		case v.Exists():
			s.setExtra(e.Name, v.Value())
		}
	}
	return s
}

func (s *Success) setExtra(k string, v any) {
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	s.Extra[k] = v
}

func generic(doc []byte, body map[string]any) Result {
	for _, f := range genericFields {
		v := gjson.GetBytes(doc, f)
		if v.Exists() && truthy(v.Value()) {
			return &Success{
				Summary:          GenericSummary,
				TextOutput:       v.Value(),
				OriginalResponse: body,
			}
		}
	}
	return passThrough(body)
}

// passThrough keeps the body, except that a truthy "error" key marks the
// call failed.
func passThrough(body map[string]any) Result {
	if errVal, ok := body["error"]; ok && truthy(errVal) {
		msg, isString := errVal.(string)
		if !isString {
			msg = DefaultFailure
		}
		return &Failure{Message: msg, Details: body["details"], OriginalResponse: body}
	}
	return successFromBody(body)
}

// statusFailure maps a non-2xx response. For 401, 403, 429 and 500 the
// category message in StatusMessages is used even when the upstream sent a
// reason phrase; other codes fall back to the reason phrase.
func statusFailure(raw *RawResponse) *Failure {
	msg, ok := StatusMessages[raw.StatusCode]
	if !ok {
		msg = strings.TrimSpace(raw.StatusText)
		if msg == "" {
			msg = http.StatusText(raw.StatusCode)
		}
		if msg == "" {
			msg = DefaultFailure
		}
	}

	var details any = NoDetails
	if len(bytes.TrimSpace(raw.Body)) > 0 {
		var parsed any
		if err := json.Unmarshal(raw.Body, &parsed); err == nil {
			details = parsed
		} else {
			details = string(raw.Body)
		}
	}

	return &Failure{Message: msg, Details: details, Status: raw.StatusCode}
}

// parseBody returns the body as a JSON object document and its decoded map.
// Anything that is not a JSON object becomes {"text_output": <body>}.
func parseBody(raw []byte) ([]byte, map[string]any) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return raw, obj
	}

	var text any = string(raw)
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed != nil {
		text = parsed
	}
	obj = map[string]any{textOutputKey: text}
	doc, err := json.Marshal(obj)
	if err != nil {
		doc = []byte("{}")
	}
	return doc, obj
}

func outputCount(v any) int {
	if list, ok := v.([]any); ok {
		return len(list)
	}
	return 1
}
