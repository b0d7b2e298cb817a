// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/marketplace/models"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrExecutionNotRunning is returned when completing an execution that
	// already reached a terminal state.
	ErrExecutionNotRunning = errors.New("execution is not running")
)

// agentUpdateColumns are the columns an explicit agent update may change.
var agentUpdateColumns = []string{
	"title", "description", "execution_url", "http_method", "headers",
	"static_fields", "input_schema", "provider", "policy_timeout_ms",
	"policy_fallback_template", "status", "updated_at",
}

// GormDB wraps the GORM database connection
type GormDB struct {
	db *gorm.DB
}

// NewGormDB creates a new GORM database connection
func NewGormDB(cfg *config.DatabaseConfig) (*GormDB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &GormDB{db: db}, nil
}

// AutoMigrate runs database migrations
func (db *GormDB) AutoMigrate() error {
	return db.db.AutoMigrate(
		&models.Agent{},
		&models.Execution{},
	)
}

// ValidateSchema checks if GORM models match the database schema
func (db *GormDB) ValidateSchema() error {
	var missingTables []string
	var missingColumns []string

	m := db.db.Migrator()

	if !m.HasTable(&models.Agent{}) {
		missingTables = append(missingTables, "agents")
	}
	if !m.HasTable(&models.Execution{}) {
		missingTables = append(missingTables, "executions")
	}
	if len(missingTables) > 0 {
		return fmt.Errorf("missing tables: %v\n\nRun 'agentmarket-migrate' to create the required tables", missingTables)
	}

	agentColumns := []string{
		"agent_id", "creator_id", "title", "execution_url", "http_method", "headers",
		"static_fields", "input_schema", "provider", "policy_timeout_ms", "status", "created_at",
	}
	for _, col := range agentColumns {
		if !m.HasColumn(&models.Agent{}, col) {
			missingColumns = append(missingColumns, "agents."+col)
		}
	}

	executionColumns := []string{
		"execution_id", "agent_id", "user_id", "status", "inputs", "result", "error", "created_at", "completed_at",
	}
	for _, col := range executionColumns {
		if !m.HasColumn(&models.Execution{}, col) {
			missingColumns = append(missingColumns, "executions."+col)
		}
	}

	if len(missingColumns) > 0 {
		return fmt.Errorf("missing columns: %v\n\nRun 'agentmarket-migrate' to add the required columns", missingColumns)
	}

	return nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAgent inserts a new agent. It fails if the id is taken.
func (db *GormDB) CreateAgent(ctx context.Context, agent *models.Agent) error {
	return db.db.WithContext(ctx).Create(agent).Error
}

// UpsertAgent inserts an agent or replaces the stored row with the same id.
func (db *GormDB) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	return db.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns(append([]string{"creator_id"}, agentUpdateColumns...)),
		}).
		Create(agent).Error
}

// UpdateAgent overwrites the mutable columns of an existing agent.
func (db *GormDB) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()
	result := db.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("agent_id = ?", agent.ID).
		Select(agentUpdateColumns).
		Updates(agent)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAgent retrieves a single agent by ID
func (db *GormDB) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	var agent models.Agent
	err := db.db.WithContext(ctx).First(&agent, "agent_id = ?", agentID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &agent, nil
}

// ListAgents returns all agents, newest first.
func (db *GormDB) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	var agents []*models.Agent
	err := db.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&agents).Error
	return agents, err
}

// ListAgentsByCreator returns the agents registered by creatorID, newest first.
func (db *GormDB) ListAgentsByCreator(ctx context.Context, creatorID string) ([]*models.Agent, error) {
	var agents []*models.Agent
	err := db.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&agents).Error
	return agents, err
}

// CreateExecution inserts a new execution record.
func (db *GormDB) CreateExecution(ctx context.Context, execution *models.Execution) error {
	return db.db.WithContext(ctx).Create(execution).Error
}

// CompleteExecution moves a running execution to a terminal status in a
// single conditional update. A second completion fails with
// ErrExecutionNotRunning.
func (db *GormDB) CompleteExecution(ctx context.Context, executionID string, status models.ExecutionStatus, result []byte, errMsg string, completedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("cannot complete execution with non-terminal status %q", status)
	}

	res := db.db.WithContext(ctx).
		Model(&models.Execution{}).
		Where("execution_id = ? AND status = ?", executionID, models.ExecutionStatusRunning).
		Updates(map[string]any{
			"status":       status,
			"result":       datatypes.JSON(result),
			"error":        errMsg,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.db.WithContext(ctx).Model(&models.Execution{}).
		Where("execution_id = ?", executionID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrExecutionNotRunning
}

// GetExecution retrieves a single execution by ID
func (db *GormDB) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	var execution models.Execution
	err := db.db.WithContext(ctx).First(&execution, "execution_id = ?", executionID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &execution, nil
}

// ListExecutionsByUser returns a user's executions, newest first.
func (db *GormDB) ListExecutionsByUser(ctx context.Context, userID string) ([]*models.Execution, error) {
	var executions []*models.Execution
	err := db.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&executions).Error
	return executions, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
