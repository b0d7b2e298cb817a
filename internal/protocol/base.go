// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import "github.com/noldarim/agentmarket/internal/common"

// Metadata is re-exported so event producers only import protocol.
type Metadata = common.Metadata

// Event is re-exported from common.
type Event = common.Event

// CurrentProtocolVersion is re-exported from common.
const CurrentProtocolVersion = common.CurrentProtocolVersion

// NewMetadata is re-exported from common.
func NewMetadata(idempotencyKey string) Metadata {
	return common.NewMetadata(idempotencyKey)
}
