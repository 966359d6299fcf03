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

// Package config holds the immutable runtime configuration for the task
// orchestration core. All values come from environment variables (optionally
// seeded from a .env file); provider API keys are always per-instance and
// never read from the environment.
package config

import (
	"fmt"
	"time"
)

// Config is the full runtime configuration, injected at construction into
// every component that needs it.
type Config struct {
	LogLevel  string
	LogFormat string

	// SecretKey encrypts agent API keys and project secrets at rest.
	// Empty disables encryption (development only).
	SecretKey string

	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Fetch     FetchConfig
	Remote    RemoteConfig
}

// DatabaseConfig configures the SQL persistence layer.
type DatabaseConfig struct {
	Driver   string // sqlite, postgres, mysql
	DSN      string
	MaxConns int
	MaxIdle  int
}

// SchedulerConfig configures the pending scan and the worker pool.
type SchedulerConfig struct {
	Workers      int
	ScanInterval time.Duration
	QueueSize    int
}

// FetchConfig configures the input source downloader.
type FetchConfig struct {
	// Production enables the loopback/private-range URL blocklist.
	Production bool

	// S3Bucket is the bucket whose virtual-hosted URLs are fetched with
	// configured credentials instead of plain HTTP.
	S3Bucket string

	MaxFileSizeMB int
	Timeout       time.Duration
	UserAgent     string
}

// RemoteConfig configures the serverless (Lambda) execution path.
type RemoteConfig struct {
	// Enabled is the global remote-execution toggle. Instances with
	// UseLambda set are rejected when this is off.
	Enabled bool

	Region          string
	FunctionName    string
	AccessKeyID     string
	SecretAccessKey string
	BedrockModelID  string
}

// Validate checks cross-field constraints that cannot be expressed as
// per-field defaults.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler workers must be at least 1")
	}

	if c.Remote.Enabled {
		if c.Remote.Region == "" {
			return fmt.Errorf("AWS_LAMBDA_REGION is required when remote execution is enabled")
		}
		if c.Remote.FunctionName == "" {
			return fmt.Errorf("LAMBDA_AGENT_FUNCTION_NAME is required when remote execution is enabled")
		}
	}

	return nil
}
