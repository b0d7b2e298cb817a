// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package common provides shared types used across multiple packages.
package common

import "time"

// Metadata contains common fields for all events pushed to API clients.
type Metadata struct {
	// IdempotencyKey lets clients drop duplicates after reconnecting.
	// Optional - events without this key will always be processed
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Version indicates the protocol version for backward compatibility.
	// Format: "v{major}.{minor}.{patch}" (e.g., "v1.0.0")
	Version string `json:"version"`

	// EmittedAt is when the event was created.
	EmittedAt time.Time `json:"emitted_at"`
}

// NewMetadata stamps the current protocol version and time.
func NewMetadata(idempotencyKey string) Metadata {
	return Metadata{
		IdempotencyKey: idempotencyKey,
		Version:        CurrentProtocolVersion,
		EmittedAt:      time.Now().UTC(),
	}
}

// CurrentProtocolVersion defines the current version of the protocol.
// This should be updated when making breaking changes to the protocol.
const CurrentProtocolVersion = "v1.0.0"

// Event represents anything the marketplace publishes to subscribers.
// Any type implementing this interface can be sent through the event channel.
type Event interface {
	GetMetadata() Metadata
}
