// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package templates renders local content for agents whose webhook is a
// placeholder and for providers that fall back after a timeout.
package templates

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"
)

// GenericID is the template used when no generator matches an agent.
const GenericID = "generic"

//go:embed builtin.yaml
var builtinYAML []byte

// Output is what a generator produces.
type Output struct {
	Summary string
	Text    string
}

// Generator renders an Output from stringified inputs.
type Generator interface {
	Generate(data map[string]string) (Output, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(data map[string]string) (Output, error)

func (f GeneratorFunc) Generate(data map[string]string) (Output, error) { return f(data) }

// Definition is one entry of a templates file.
type Definition struct {
	ID       string            `yaml:"id"`
	Agents   []string          `yaml:"agents"`
	Summary  string            `yaml:"summary"`
	Defaults map[string]string `yaml:"defaults"`
	Body     string            `yaml:"body"`
}

type file struct {
	Templates []Definition `yaml:"templates"`
}

// Registry maps template ids and agent ids to generators. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	agents     map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
		agents:     make(map[string]string),
	}
}

// Default returns a registry loaded with the built-in templates, then the
// optional override file. Entries in the override replace built-ins by id.
func Default(overridePath string) (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadYAML(builtinYAML); err != nil {
		return nil, fmt.Errorf("builtin templates: %w", err)
	}
	if overridePath != "" {
		if err := r.LoadFile(overridePath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadFile reads a templates YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read templates file: %w", err)
	}
	if err := r.LoadYAML(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadYAML parses and registers every template in data. Nothing is registered
// if any template fails to parse.
func (r *Registry) LoadYAML(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	compiled := make([]*textGenerator, 0, len(f.Templates))
	for i, def := range f.Templates {
		if def.ID == "" {
			return fmt.Errorf("template %d: id is required", i)
		}
		g, err := compile(def)
		if err != nil {
			return fmt.Errorf("template %q: %w", def.ID, err)
		}
		compiled = append(compiled, g)
	}

	for i, g := range compiled {
		r.Register(f.Templates[i].ID, g, f.Templates[i].Agents...)
	}
	return nil
}

// Register adds or replaces a generator and binds it to the given agent ids.
func (r *Registry) Register(id string, g Generator, agentIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[id] = g
	for _, a := range agentIDs {
		r.agents[a] = id
	}
}

// Has reports whether a template id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.generators[id]
	return ok
}

// IDs lists the registered template ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.generators))
	for id := range r.generators {
		ids = append(ids, id)
	}
	return ids
}

// Render runs the template with the given id.
func (r *Registry) Render(id string, inputs map[string]any) (Output, error) {
	r.mu.RLock()
	g, ok := r.generators[id]
	r.mu.RUnlock()
	if !ok {
		return Output{}, fmt.Errorf("unknown template %q", id)
	}
	return g.Generate(stringify(inputs, nil))
}

// RenderForAgent picks the generator bound to agentID, then one whose id
// equals agentID, then the generic template.
func (r *Registry) RenderForAgent(agentID, title string, inputs map[string]any) (Output, error) {
	r.mu.RLock()
	id, ok := r.agents[agentID]
	if !ok {
		if _, exists := r.generators[agentID]; exists {
			id, ok = agentID, true
		}
	}
	if !ok {
		id = GenericID
	}
	g, found := r.generators[id]
	r.mu.RUnlock()
	if !found {
		return Output{}, fmt.Errorf("no template for agent %q", agentID)
	}

	return g.Generate(stringify(inputs, map[string]string{
		"agent_id":    agentID,
		"agent_title": title,
	}))
}

type textGenerator struct {
	summary  string
	defaults map[string]string
	tmpl     *template.Template
}

func compile(def Definition) (*textGenerator, error) {
	tmpl, err := template.New(def.ID).Option("missingkey=zero").Funcs(funcMap()).Parse(def.Body)
	if err != nil {
		return nil, err
	}
	return &textGenerator{summary: def.Summary, defaults: def.Defaults, tmpl: tmpl}, nil
}

func (g *textGenerator) Generate(data map[string]string) (Output, error) {
	merged := make(map[string]string, len(g.defaults)+len(data))
	for k, v := range g.defaults {
		merged[k] = v
	}
	for k, v := range data {
		if v != "" {
			merged[k] = v
		}
	}

	var sb strings.Builder
	if err := g.tmpl.Execute(&sb, merged); err != nil {
		return Output{}, err
	}
	return Output{Summary: g.summary, Text: sb.String()}, nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["bullets"] = func(list string) string {
		items := splitList(list)
		for i, it := range items {
			items[i] = "• " + it
		}
		return strings.Join(items, "\n")
	}
	fm["firstItem"] = func(list string) string {
		items := splitList(list)
		if len(items) == 0 {
			return ""
		}
		return items[0]
	}
	fm["hashtag"] = func(s string) string {
		return nonAlnum.ReplaceAllString(s, "")
	}
	return fm
}

func splitList(list string) []string {
	parts := strings.Split(list, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// stringify flattens inputs to strings; extra keys are applied last.
func stringify(inputs map[string]any, extra map[string]string) map[string]string {
	out := make(map[string]string, len(inputs)+len(extra))
	for k, v := range inputs {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case map[string]any, []any:
			b, err := json.Marshal(val)
			if err == nil {
				out[k] = string(b)
			}
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
