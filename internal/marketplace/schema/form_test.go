// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"testing"

	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormFields_MapsInputTypes(t *testing.T) {
	fields := models.Schema{
		{Name: "title", Type: models.FieldTypeString, Required: true},
		{Name: "body", Label: "Body", Type: models.FieldTypeText},
		{Name: "tone", Type: models.FieldTypeDropdown, Options: []string{"a", "b"}},
		{Name: "secret", Type: models.FieldTypePassword},
	}

	form := FormFields(fields)
	require.Len(t, form, 4)
	assert.Equal(t, "text", form[0].Type)
	assert.True(t, form[0].Required)
	assert.Equal(t, "title", form[0].Label)
	assert.Equal(t, "textarea", form[1].Type)
	assert.Equal(t, "Body", form[1].Label)
	assert.Equal(t, "select", form[2].Type)
	assert.Equal(t, []string{"a", "b"}, form[2].Options)
	assert.Equal(t, "password", form[3].Type)

	assert.Equal(t, "text", InputType("unknown"))
}

func TestSampleInput_PassesValidation(t *testing.T) {
	fields := models.Schema{
		{Name: "topic", Label: "Topic", Type: models.FieldTypeString, Required: true},
		{Name: "site", Type: models.FieldTypeURL, Required: true},
		{Name: "mail", Type: models.FieldTypeEmail, Required: true},
		{Name: "count", Type: models.FieldTypeNumber, Required: true},
		{Name: "tone", Type: models.FieldTypeDropdown, Required: true, Options: []string{"formal", "casual"}},
		{Name: "long", Type: models.FieldTypeText, Required: true, MinLength: intPtr(20)},
		{Name: "optional", Type: models.FieldTypeText},
		{Name: "example", Type: models.FieldTypeText, TestExample: "from the creator"},
	}

	sample := SampleInput(fields)

	assert.Equal(t, "Sample Topic", sample["topic"])
	assert.Equal(t, "formal", sample["tone"])
	assert.Equal(t, "from the creator", sample["example"])
	assert.NotContains(t, sample, "optional")
	assert.True(t, Validate(fields, sample).Valid, "errors: %v", Validate(fields, sample).Errors)
}
