// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

// GetAgentID / GetUserID / GetExecutionID methods allow the API server's
// WebSocket filter to match events without maintaining an exhaustive type switch.

func (e ExecutionLifecycleEvent) GetAgentID() string     { return e.AgentID }
func (e ExecutionLifecycleEvent) GetUserID() string      { return e.UserID }
func (e ExecutionLifecycleEvent) GetExecutionID() string { return e.ExecutionID }
func (e AgentLifecycleEvent) GetAgentID() string         { return e.AgentID }
func (e ErrorEvent) GetExecutionID() string              { return e.ExecutionID }
