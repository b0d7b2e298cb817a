// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/protocol"
)

// Sample data creators for consistent testing

// SocialPostSchema is the input schema of the demo social media agent.
func SocialPostSchema() models.Schema {
	return models.Schema{
		{Name: "topic", Type: models.FieldTypeText, Required: true, Label: "Topic"},
		{Name: "platform", Type: models.FieldTypeDropdown, Options: []string{"twitter", "linkedin"}},
	}
}

// DrainEvents returns every event currently buffered in ch without blocking.
func DrainEvents(ch <-chan protocol.Event) []protocol.Event {
	var out []protocol.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
