// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Default("")
	require.NoError(t, err)
	return r
}

func TestDefault_LoadsBuiltins(t *testing.T) {
	r := defaultRegistry(t)
	for _, id := range []string{
		GenericID, "social_media_post", "grammar_correction", "blog_post", "email",
		"code_explanation", "resume", "meeting_plan", "product_description",
		"study_plan", "travel_plan", "fitness_plan",
	} {
		assert.True(t, r.Has(id), id)
	}
}

func TestGrammarCorrection_CapitalizesPronoun(t *testing.T) {
	out, err := defaultRegistry(t).Render("grammar_correction", map[string]any{
		"text": "i think i am late",
	})
	require.NoError(t, err)
	assert.Equal(t, "Grammar correction completed", out.Summary)
	assert.Contains(t, out.Text, `"i think i am late"`)
	assert.Contains(t, out.Text, `"I think I am late"`)
	assert.Contains(t, out.Text, "**Mode Applied:** Style Improvement")
}

func TestRenderForAgent_BoundAgent(t *testing.T) {
	out, err := defaultRegistry(t).RenderForAgent("agent_social_001", "Social", map[string]any{
		"platform": "Twitter",
		"topics":   "Cloud Native, Go",
		"tone":     "",
	})
	require.NoError(t, err)
	assert.Equal(t, "Social media content generated successfully", out.Summary)
	assert.Contains(t, out.Text, "**Twitter Post**")
	assert.Contains(t, out.Text, "🚀 **Cloud Native**")
	assert.Contains(t, out.Text, "#CloudNativeGo")
	assert.Contains(t, out.Text, "**Tone:** Professional", "empty input keeps the default")
}

func TestRenderForAgent_AgentIDMatchesTemplateID(t *testing.T) {
	out, err := defaultRegistry(t).RenderForAgent("resume_builder", "Resume", map[string]any{
		"key_skills": "Go, SQL",
	})
	require.NoError(t, err)
	// resume_builder is bound explicitly; the bullets helper expands the list.
	assert.Contains(t, out.Text, "• Go\n• SQL")
}

func TestRenderForAgent_UnknownAgentUsesGeneric(t *testing.T) {
	out, err := defaultRegistry(t).RenderForAgent("agent_zzz", "Poem Maker", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "Content generated successfully", out.Summary)
	assert.Equal(t,
		"I've processed your request for Poem Maker with the provided inputs. Here's your generated content based on the parameters you specified.",
		out.Text)
}

func TestRender_IsDeterministic(t *testing.T) {
	r := defaultRegistry(t)
	inputs := map[string]any{"destination": "Lisbon", "interests": "Food"}

	first, err := r.Render("travel_plan", inputs)
	require.NoError(t, err)
	second, err := r.Render("travel_plan", inputs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := defaultRegistry(t).Render("nope", nil)
	assert.Error(t, err)
}

func TestDefault_OverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - id: generic
    summary: Done
    body: "Handled {{ .agent_title | upper }}"
  - id: haiku
    agents: [agent_haiku]
    summary: Haiku ready
    defaults:
      season: autumn
    body: "{{ .season }} leaves fall for {{ .user }}"
`), 0o644))

	r, err := Default(path)
	require.NoError(t, err)

	out, err := r.RenderForAgent("unknown", "thing", nil)
	require.NoError(t, err)
	assert.Equal(t, Output{Summary: "Done", Text: "Handled THING"}, out)

	out, err = r.RenderForAgent("agent_haiku", "Haiku", map[string]any{"user": "ana"})
	require.NoError(t, err)
	assert.Equal(t, "autumn leaves fall for ana", out.Text)

	assert.True(t, r.Has("grammar_correction"), "built-ins stay registered")
}

func TestLoadYAML_RejectsBrokenTemplateAtomically(t *testing.T) {
	r := NewRegistry()
	err := r.LoadYAML([]byte(`
templates:
  - id: good
    body: ok
  - id: bad
    body: "{{ .oops"
`))
	require.Error(t, err)
	assert.False(t, r.Has("good"))
}

func TestRegister_GeneratorFunc(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", GeneratorFunc(func(data map[string]string) (Output, error) {
		return Output{Summary: "s", Text: data["agent_title"] + ":" + data["n"]}, nil
	}), "agent_custom")

	out, err := r.RenderForAgent("agent_custom", "Counter", map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, "Counter:3", out.Text)
}

func TestRenderForAgent_NoGeneric(t *testing.T) {
	_, err := NewRegistry().RenderForAgent("a", "A", nil)
	assert.Error(t, err)
}
