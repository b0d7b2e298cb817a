// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// AdapterKind selects how an adapter treats a successful response.
type AdapterKind string

const (
	KindField AdapterKind = "field"
	KindLocal AdapterKind = "local"
)

//go:embed providers.yaml
var builtinProviders []byte

// Extra copies one more value from the response into the result.
type Extra struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Default any    `yaml:"default"`
}

func (e Extra) path() string {
	if e.Path != "" {
		return e.Path
	}
	return e.Name
}

// Adapter maps one provider's response shape onto a Result.
type Adapter struct {
	ID              string      `yaml:"id"`
	Kind            AdapterKind `yaml:"kind"`
	Hosts           []string    `yaml:"hosts"`
	Field           string      `yaml:"field"`
	Summary         string      `yaml:"summary"`
	Extras          []Extra     `yaml:"extras"`
	MissingFallback string      `yaml:"missing_fallback"`
}

func (a *Adapter) validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Kind == "" {
		a.Kind = KindField
	}
	switch a.Kind {
	case KindField:
		if a.Field == "" {
			return fmt.Errorf("provider %q: field is required", a.ID)
		}
	case KindLocal:
	default:
		return fmt.Errorf("provider %q: unknown kind %q", a.ID, a.Kind)
	}
	for i, h := range a.Hosts {
		a.Hosts[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return nil
}

// Adapters is an ordered adapter table. Host matching walks it in order.
type Adapters struct {
	list []*Adapter
}

type providersFile struct {
	Providers []*Adapter `yaml:"providers"`
}

// DefaultAdapters loads the built-in provider table, then the optional
// override file. Override entries replace built-ins with the same id and are
// appended otherwise.
func DefaultAdapters(overridePath string) (*Adapters, error) {
	a := &Adapters{}
	if err := a.LoadYAML(builtinProviders); err != nil {
		return nil, fmt.Errorf("builtin providers: %w", err)
	}
	if overridePath == "" {
		return a, nil
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	if err := a.LoadYAML(data); err != nil {
		return nil, fmt.Errorf("%s: %w", overridePath, err)
	}
	return a, nil
}

// LoadYAML merges a providers document into the table.
func (a *Adapters) LoadYAML(data []byte) error {
	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse providers: %w", err)
	}
	for _, p := range f.Providers {
		if err := p.validate(); err != nil {
			return err
		}
	}
	for _, p := range f.Providers {
		a.Add(p)
	}
	return nil
}

// Add inserts or replaces an adapter by id.
func (a *Adapters) Add(p *Adapter) {
	_, idx, found := lo.FindIndexOf(a.list, func(existing *Adapter) bool { return existing.ID == p.ID })
	if found {
		a.list[idx] = p
		return
	}
	a.list = append(a.list, p)
}

// Get returns the adapter with the given id.
func (a *Adapters) Get(id string) (*Adapter, bool) {
	return lo.Find(a.list, func(p *Adapter) bool { return p.ID == id })
}

// IDs lists adapter ids in table order.
func (a *Adapters) IDs() []string {
	return lo.Map(a.list, func(p *Adapter, _ int) string { return p.ID })
}

// Resolve picks the adapter for an agent: the explicit provider id first,
// then the first host pattern contained in the execution URL host.
func (a *Adapters) Resolve(provider, host string) (*Adapter, bool) {
	if provider != "" {
		if p, ok := a.Get(provider); ok {
			return p, true
		}
		getLog().Warn().Str("provider", provider).Msg("Unknown provider id, falling back to host matching")
	}
	if host == "" {
		return nil, false
	}
	host = strings.ToLower(host)
	return lo.Find(a.list, func(p *Adapter) bool {
		return lo.SomeBy(p.Hosts, func(pattern string) bool {
			return pattern != "" && strings.Contains(host, pattern)
		})
	})
}
