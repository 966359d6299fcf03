// Copyright 2025 The Launcher Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists agent instances, projects, secrets, tasks and
// executions in a SQL database. SQLite, PostgreSQL and MySQL are supported;
// queries are written with ? placeholders and rebound for PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQL persistence layer shared by the scheduler, the execution
// engine and the admin surface.
type Store struct {
	db            *sql.DB
	dialect       string
	cipher        *Cipher
	remoteEnabled bool
	logger        *slog.Logger
}

// Options configures optional Store behaviour.
type Options struct {
	// SecretKey enables at-rest encryption of API keys and project secrets.
	SecretKey string
	// RemoteEnabled mirrors the remote-execution toggle; instances requesting
	// lambda dispatch are rejected at save time when it is off.
	RemoteEnabled bool
	Logger        *slog.Logger
	MaxConns      int
	MaxIdle       int
}

// Open connects to the database and initializes the schema. Supported
// dialects are sqlite, postgres and mysql.
func Open(dialect, dsn string, opts Options) (*Store, error) {
	driver := dialect
	if dialect == "sqlite" || dialect == "sqlite3" {
		driver = "sqlite3"
		dialect = "sqlite"
	}

	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}

	return New(db, dialect, opts)
}

// New wraps an existing database connection. The connection should be shared
// with other services using the same database to prevent SQLite "database is
// locked" errors.
func New(db *sql.DB, dialect string, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	cipher, err := NewCipher(opts.SecretKey)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:            db,
		dialect:       dialect,
		cipher:        cipher,
		remoteEnabled: opts.RemoteEnabled,
		logger:        logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const (
	createInstancesTableSQL = `
CREATE TABLE IF NOT EXISTS agent_instances (
    id VARCHAR(64) PRIMARY KEY,
    friendly_name VARCHAR(255) NOT NULL,
    provider VARCHAR(32) NOT NULL,
    model_name VARCHAR(255) NOT NULL,
    api_key TEXT,
    target_url TEXT,
    agent_type VARCHAR(32) NOT NULL,
    use_lambda BOOLEAN NOT NULL DEFAULT FALSE,
    user_id VARCHAR(64) NOT NULL,
    instruction TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createProjectsTableSQL = `
CREATE TABLE IF NOT EXISTS agent_projects (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    user_id VARCHAR(64) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createSecretsTableSQL = `
CREATE TABLE IF NOT EXISTS project_environment_secrets (
    id VARCHAR(64) PRIMARY KEY,
    project_id VARCHAR(64) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    secret_key VARCHAR(255) NOT NULL,
    secret_value TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (project_id, user_id, secret_key)
)`

	createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS agent_tasks (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    agent_instance_id VARCHAR(64) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    instruction TEXT NOT NULL,
    input_sources_json TEXT,
    schedule_type VARCHAR(32) NOT NULL,
    scheduled_at TIMESTAMP NULL,
    interval_minutes INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(32) NOT NULL,
    last_executed_at TIMESTAMP NULL,
    next_execution_at TIMESTAMP NULL,
    max_executions INTEGER NULL,
    execution_count INTEGER NOT NULL DEFAULT 0,
    triggered_by_task_id VARCHAR(64),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createExecutionsTableSQL = `
CREATE TABLE IF NOT EXISTS agent_task_executions (
    id VARCHAR(64) PRIMARY KEY,
    agent_task_id VARCHAR(64) NOT NULL,
    status VARCHAR(32) NOT NULL,
    started_at TIMESTAMP NULL,
    completed_at TIMESTAMP NULL,
    execution_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    input_data_json TEXT,
    output_data_json TEXT,
    error_message TEXT,
    api_security_summary_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`
)

var createIndexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_agent_instances_user_id ON agent_instances(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_tasks_user_id ON agent_tasks(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_tasks_status_next ON agent_tasks(status, next_execution_at)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_tasks_triggered_by ON agent_tasks(triggered_by_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_task_id ON agent_task_executions(agent_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_task_status ON agent_task_executions(agent_task_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_secrets_project ON project_environment_secrets(project_id, user_id)`,
}

// initSchema creates tables and indexes. Separate statements keep SQLite
// compatibility.
func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tables := []string{
		createInstancesTableSQL,
		createProjectsTableSQL,
		createSecretsTableSQL,
		createTasksTableSQL,
		createExecutionsTableSQL,
	}
	for _, stmt := range tables {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, stmt := range createIndexSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
