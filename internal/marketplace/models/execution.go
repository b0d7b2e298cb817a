// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Execution is one invocation of an agent by a user.
type Execution struct {
	ID          string          `gorm:"primaryKey;type:text;column:execution_id" json:"execution_id"`
	AgentID     string          `gorm:"not null;type:text;index" json:"agent_id"`
	UserID      string          `gorm:"not null;type:text;index:idx_executions_user_created,priority:1" json:"user_id"`
	Status      ExecutionStatus `gorm:"not null;type:text;index" json:"status"`
	Inputs      ValueMap        `gorm:"type:text" json:"inputs"`
	Result      datatypes.JSON  `json:"result,omitempty"`
	Error       string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time       `gorm:"index:idx_executions_user_created,priority:2" json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// TableName returns the table name for Execution
func (Execution) TableName() string {
	return "executions"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (e *Execution) BeforeCreate(tx *gorm.DB) error {
	if e.Status == "" {
		e.Status = ExecutionStatusRunning
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}
