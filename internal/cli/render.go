// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/services"
)

type styles struct {
	dim     lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	success lipgloss.Style
	fail    lipgloss.Style
	accent  lipgloss.Style
	box     lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{dim: plain, label: plain, value: plain, success: plain, fail: plain, accent: plain, box: plain}
	}
	return styles{
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("239")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("35")).Bold(true),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("239")).
			Padding(0, 1),
	}
}

// renderSubmission formats an execution outcome for the terminal.
func (s styles) renderSubmission(sub *services.Submission) string {
	var b strings.Builder
	b.WriteString("\n")

	row := func(k, v string) {
		fmt.Fprintf(&b, "%s %s\n", s.label.Render(fmt.Sprintf("%-12s", k)), s.value.Render(v))
	}

	switch r := sub.Result.(type) {
	case *normalize.Failure:
		b.WriteString(s.fail.Render("✗ Execution failed") + "\n\n")
		row("Execution", sub.Execution.ID)
		if r.Status != 0 {
			row("Status", fmt.Sprintf("%d", r.Status))
		}
		row("Error", r.Message)
		if r.Details != nil {
			b.WriteString("\n" + s.box.Render(formatValue(r.Details)) + "\n")
		}
	case *normalize.Success:
		b.WriteString(s.success.Render("✓ Execution complete") + "\n\n")
		row("Execution", sub.Execution.ID)
		if r.Summary != "" {
			row("Summary", r.Summary)
		}
		if r.FallbackUsed {
			row("Fallback", "local template (agent error: "+r.OriginalError+")")
		}
		if r.TextOutput != nil {
			b.WriteString("\n" + s.box.Render(formatValue(r.TextOutput)) + "\n")
		}
		if len(r.MediaLinks) > 0 {
			b.WriteString("\n" + s.label.Render("Media") + "\n")
			for _, link := range r.MediaLinks {
				line := s.accent.Render(link.URL())
				if t := link.Type(); t != "" {
					line = "[" + t + "] " + line
				}
				if d := link.Description(); d != "" {
					line += "  " + s.dim.Render(d)
				}
				b.WriteString("  " + line + "\n")
			}
		}
	}

	b.WriteString(s.dim.Render("\nSaved to execution history.") + "\n")
	return b.String()
}

// formatValue prints strings as-is and everything else as indented JSON.
func formatValue(v any) string {
	if str, ok := v.(string); ok {
		return str
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
