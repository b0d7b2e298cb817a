// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

// FieldType enumerates the input field kinds an agent schema may declare.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeText     FieldType = "text"
	FieldTypeDropdown FieldType = "dropdown"
	FieldTypeEmail    FieldType = "email"
	FieldTypeURL      FieldType = "url"
	FieldTypeNumber   FieldType = "number"
	FieldTypePassword FieldType = "password"
	FieldTypeFile     FieldType = "file"
)

// FieldTypes lists every accepted FieldType in display order.
var FieldTypes = []FieldType{
	FieldTypeString, FieldTypeText, FieldTypeDropdown, FieldTypeEmail,
	FieldTypeURL, FieldTypeNumber, FieldTypePassword, FieldTypeFile,
}

// HTTPMethods lists the methods an agent webhook may use.
var HTTPMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// FieldDefinition describes one user-supplied input of an agent.
type FieldDefinition struct {
	Name        string    `json:"name" yaml:"name" validate:"required"`
	Type        FieldType `json:"type" yaml:"type" validate:"required"`
	Required    bool      `json:"required" yaml:"required"`
	Options     []string  `json:"options,omitempty" yaml:"options,omitempty"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	TestExample any       `json:"test_example,omitempty" yaml:"test_example,omitempty"`
	MinLength   *int      `json:"min_length,omitempty" yaml:"min_length,omitempty" validate:"omitempty,min=0"`
	MaxLength   *int      `json:"max_length,omitempty" yaml:"max_length,omitempty" validate:"omitempty,min=1"`
	Pattern     string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// DisplayName is the label when set, otherwise the field name.
func (f FieldDefinition) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusDisabled AgentStatus = "disabled"
)

// ExecutionPolicy bounds a single webhook call. It is resolved when the agent
// is registered and travels with the agent afterwards.
type ExecutionPolicy struct {
	TimeoutMS        int64  `gorm:"column:timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
	FallbackTemplate string `gorm:"column:fallback_template;type:text" json:"fallback_template,omitempty" yaml:"fallback_template,omitempty"`
}

// Timeout returns the policy timeout as a duration.
func (p ExecutionPolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Agent represents the GORM model for a registered webhook agent
type Agent struct {
	ID           string          `gorm:"primaryKey;type:text;column:agent_id" json:"agent_id" yaml:"agent_id"`
	CreatorID    string          `gorm:"not null;type:text;index" json:"creator_id" yaml:"creator_id"`
	Title        string          `gorm:"not null;type:text" json:"title" yaml:"title"`
	Description  string          `gorm:"type:text" json:"description" yaml:"description"`
	ExecutionURL string          `gorm:"not null;type:text" json:"execution_url" yaml:"execution_url"`
	HTTPMethod   string          `gorm:"not null;type:text;default:POST" json:"http_method" yaml:"http_method"`
	Headers      StringMap       `gorm:"type:text" json:"headers" yaml:"headers"`
	StaticFields ValueMap        `gorm:"type:text" json:"static_fields" yaml:"static_fields"`
	InputSchema  Schema          `gorm:"type:text" json:"input_schema" yaml:"input_schema"`
	Provider     string          `gorm:"type:text" json:"provider,omitempty" yaml:"provider,omitempty"`
	Policy       ExecutionPolicy `gorm:"embedded;embeddedPrefix:policy_" json:"execution_policy" yaml:"execution_policy"`
	Status       AgentStatus     `gorm:"not null;type:text;default:active" json:"status" yaml:"status"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at" yaml:"updated_at"`
}

// TableName returns the table name for Agent
func (Agent) TableName() string {
	return "agents"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.Status == "" {
		a.Status = AgentStatusActive
	}
	if a.HTTPMethod == "" {
		a.HTTPMethod = "POST"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Host returns the lower-cased host of the execution URL, or "" when the URL
// does not parse.
func (a *Agent) Host() string {
	u, err := url.Parse(a.ExecutionURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
