// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"github.com/noldarim/agentmarket/internal/marketplace/models"
)

// FormField is the rendering hint for one schema field.
type FormField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder,omitempty"`
	Description string   `json:"description,omitempty"`
	Options     []string `json:"options,omitempty"`
}

var inputTypes = map[models.FieldType]string{
	models.FieldTypeString:   "text",
	models.FieldTypeText:     "textarea",
	models.FieldTypeDropdown: "select",
	models.FieldTypeEmail:    "email",
	models.FieldTypeURL:      "url",
	models.FieldTypeNumber:   "number",
	models.FieldTypePassword: "password",
	models.FieldTypeFile:     "file",
}

// InputType maps a field type to the form control used to collect it.
func InputType(t models.FieldType) string {
	if it, ok := inputTypes[t]; ok {
		return it
	}
	return "text"
}

// FormFields describes how each field should be collected from a user.
func FormFields(fields models.Schema) []FormField {
	out := make([]FormField, 0, len(fields))
	for _, f := range fields {
		out = append(out, FormField{
			Name:        f.Name,
			Type:        InputType(f.Type),
			Required:    f.Required,
			Label:       f.DisplayName(),
			Placeholder: f.Placeholder,
			Description: f.Description,
			Options:     f.Options,
		})
	}
	return out
}

// SampleInput builds an input map that passes Validate, for smoke-testing an
// agent. Declared test examples win; optional fields without one are left out.
func SampleInput(fields models.Schema) map[string]any {
	sample := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.TestExample != nil {
			sample[f.Name] = f.TestExample
			continue
		}
		if !f.Required {
			continue
		}
		sample[f.Name] = sampleValue(f)
	}
	return sample
}

func sampleValue(f models.FieldDefinition) any {
	switch f.Type {
	case models.FieldTypeURL:
		return "https://example.com"
	case models.FieldTypeEmail:
		return "user@example.com"
	case models.FieldTypeNumber:
		return 42
	case models.FieldTypeDropdown:
		if len(f.Options) > 0 {
			return f.Options[0]
		}
		return ""
	default:
		s := "Sample " + f.DisplayName()
		if f.MinLength != nil {
			for len([]rune(s)) < *f.MinLength {
				s += "."
			}
		}
		if f.MaxLength != nil && len([]rune(s)) > *f.MaxLength {
			s = string([]rune(s)[:*f.MaxLength])
		}
		return s
	}
}
