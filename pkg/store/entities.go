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

package store

import (
	"fmt"
	"regexp"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderGemini    Provider = "GEMINI"
	ProviderOpenAI    Provider = "OPENAI"
	ProviderOllama    Provider = "OLLAMA"
	ProviderAnthropic Provider = "ANTHROPIC"
	ProviderBedrock   Provider = "BEDROCK"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderOllama, ProviderAnthropic, ProviderBedrock:
		return true
	}
	return false
}

// AgentType distinguishes interactive agents from scheduled one-shot agents.
type AgentType string

const (
	AgentTypeChat    AgentType = "chat"
	AgentTypeOneShot AgentType = "one-shot"
)

// ScheduleType selects how a task's next execution time is derived.
type ScheduleType string

const (
	ScheduleManual         ScheduleType = "manual"
	ScheduleOnce           ScheduleType = "once" // legacy alias for manual
	ScheduleHourly         ScheduleType = "hourly"
	ScheduleDaily          ScheduleType = "daily"
	ScheduleWeekly         ScheduleType = "weekly"
	ScheduleMonthly        ScheduleType = "monthly"
	ScheduleCustomInterval ScheduleType = "custom_interval"
	ScheduleAgent          ScheduleType = "agent"
)

func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleManual, ScheduleOnce, ScheduleHourly, ScheduleDaily,
		ScheduleWeekly, ScheduleMonthly, ScheduleCustomInterval, ScheduleAgent:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ExecutionStatus is the lifecycle state of a single execution attempt.
// pending and running are in-flight; completed and failed are terminal.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// AgentInstance is the configuration of a single LLM endpoint.
type AgentInstance struct {
	ID           string    `json:"id"`
	FriendlyName string    `json:"friendly_name"`
	Provider     Provider  `json:"provider"`
	ModelName    string    `json:"model_name"`
	APIKey       string    `json:"-"`
	TargetURL    string    `json:"target_url,omitempty"`
	AgentType    AgentType `json:"agent_type"`
	UseLambda    bool      `json:"use_lambda"`
	UserID       string    `json:"user_id"`
	Instruction  string    `json:"instruction,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate enforces provider invariants. remoteEnabled is the global
// remote-execution toggle; instances requesting lambda dispatch are rejected
// when it is off.
func (a *AgentInstance) Validate(remoteEnabled bool) error {
	if !a.Provider.Valid() {
		return fmt.Errorf("unknown provider: %s", a.Provider)
	}

	if a.Provider == ProviderBedrock {
		if !a.UseLambda {
			return fmt.Errorf("BEDROCK instances must use remote execution")
		}
	} else if a.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %s", a.Provider)
	}

	if a.UseLambda && !remoteEnabled {
		return fmt.Errorf("remote execution is disabled; cannot save instance with use_lambda")
	}

	switch a.AgentType {
	case AgentTypeChat, AgentTypeOneShot:
	default:
		return fmt.Errorf("unknown agent type: %s", a.AgentType)
	}

	return nil
}

// AgentProject groups agent instances owned by one user and scopes
// environment secrets.
type AgentProject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var secretKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ProjectEnvironmentSecret is a named secret scoped to (project, user).
// Value is encrypted at rest; only MaskedValue appears in listings.
type ProjectEnvironmentSecret struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *ProjectEnvironmentSecret) Validate() error {
	if !secretKeyPattern.MatchString(s.Key) {
		return fmt.Errorf("secret key %q must match [A-Z_][A-Z0-9_]*", s.Key)
	}
	if s.Value == "" {
		return fmt.Errorf("secret value is required")
	}
	return nil
}

// MaskedValue returns the value with everything but the last four characters
// hidden, for audit listings.
func (s *ProjectEnvironmentSecret) MaskedValue() string {
	if len(s.Value) <= 4 {
		return "****"
	}
	return "****" + s.Value[len(s.Value)-4:]
}

// InputSource describes one input attached to a task: where to fetch it and
// how to preprocess it. Chain triggers store the parent's output directly in
// ProcessedContent with an agent-output URL.
type InputSource struct {
	URL                   string `json:"url"`
	SourceType            string `json:"source_type,omitempty"`
	Filename              string `json:"filename,omitempty"`
	ContentType           string `json:"content_type,omitempty"`
	Size                  int64  `json:"size,omitempty"`
	SkipPreprocessing     bool   `json:"skip_preprocessing,omitempty"`
	PreprocessImage       bool   `json:"preprocess_image,omitempty"`
	IsDocumentWithText    bool   `json:"is_document_with_text,omitempty"`
	ReplaceImagesWithDesc bool   `json:"replace_images_with_descriptions,omitempty"`
	ContainsImages        bool   `json:"contains_images,omitempty"`
	ExtractImagesAsText   bool   `json:"extract_images_as_text,omitempty"`
	AgentExecutionID      string `json:"agent_execution_id,omitempty"`
	ProcessedContent      string `json:"processed_content,omitempty"`
}

// AgentTask is a scheduled invocation unit bound to a one-shot instance.
type AgentTask struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	AgentInstanceID   string        `json:"agent_instance_id"`
	UserID            string        `json:"user_id"`
	Instruction       string        `json:"instruction"`
	InputSources      []InputSource `json:"input_sources,omitempty"`
	ScheduleType      ScheduleType  `json:"schedule_type"`
	ScheduledAt       *time.Time    `json:"scheduled_at,omitempty"`
	IntervalMinutes   int           `json:"interval_minutes,omitempty"`
	Status            TaskStatus    `json:"status"`
	LastExecutedAt    *time.Time    `json:"last_executed_at,omitempty"`
	NextExecutionAt   *time.Time    `json:"next_execution_at,omitempty"`
	MaxExecutions     *int          `json:"max_executions,omitempty"`
	ExecutionCount    int           `json:"execution_count"`
	TriggeredByTaskID string        `json:"triggered_by_task_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (t *AgentTask) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.AgentInstanceID == "" {
		return fmt.Errorf("agent_instance_id is required")
	}
	if !t.ScheduleType.Valid() {
		return fmt.Errorf("unknown schedule type: %s", t.ScheduleType)
	}
	if t.ScheduleType == ScheduleCustomInterval && t.IntervalMinutes <= 0 {
		return fmt.Errorf("custom_interval schedule requires interval_minutes > 0")
	}
	if t.ScheduleType == ScheduleAgent {
		if t.TriggeredByTaskID == "" {
			return fmt.Errorf("agent schedule requires triggered_by_task_id")
		}
		if t.NextExecutionAt != nil {
			return fmt.Errorf("agent-triggered tasks must not have next_execution_at")
		}
	}
	return nil
}

// UnderCap reports whether another execution may be recorded for this task.
func (t *AgentTask) UnderCap() bool {
	return t.MaxExecutions == nil || t.ExecutionCount < *t.MaxExecutions
}

// IsReady reports whether the scheduler should dispatch the task now.
func (t *AgentTask) IsReady(now time.Time) bool {
	return t.Status == TaskActive &&
		t.UnderCap() &&
		t.NextExecutionAt != nil &&
		!t.NextExecutionAt.After(now)
}

// CalcNext derives the next execution time after a run. The base is the last
// execution time, or now for a task that has never run. Returns nil for
// schedule types that never recur on a timer.
func (t *AgentTask) CalcNext(now time.Time) *time.Time {
	base := now
	if t.LastExecutedAt != nil {
		base = *t.LastExecutedAt
	}

	var next time.Time
	switch t.ScheduleType {
	case ScheduleHourly:
		next = base.Add(time.Hour)
	case ScheduleDaily:
		next = base.Add(24 * time.Hour)
	case ScheduleWeekly:
		next = base.Add(7 * 24 * time.Hour)
	case ScheduleMonthly:
		next = base.Add(30 * 24 * time.Hour)
	case ScheduleCustomInterval:
		next = base.Add(time.Duration(t.IntervalMinutes) * time.Minute)
	default:
		// once, manual and agent tasks never reschedule themselves
		return nil
	}
	return &next
}

// InitNextExecution sets next_execution_at for a newly created task:
// scheduled_at when given, otherwise now plus the schedule interval.
func (t *AgentTask) InitNextExecution(now time.Time) {
	if t.ScheduleType == ScheduleAgent {
		t.NextExecutionAt = nil
		return
	}
	if t.ScheduledAt != nil {
		at := *t.ScheduledAt
		t.NextExecutionAt = &at
		return
	}
	t.NextExecutionAt = t.CalcNext(now)
	if t.NextExecutionAt == nil && (t.ScheduleType == ScheduleManual || t.ScheduleType == ScheduleOnce) {
		// manual tasks become ready immediately; they run once when forced
		// or when the scan finds them due
		at := now
		t.NextExecutionAt = &at
	}
}

// AgentTaskExecution is the audit record of one execution attempt.
type AgentTaskExecution struct {
	ID                   string          `json:"id"`
	AgentTaskID          string          `json:"agent_task_id"`
	Status               ExecutionStatus `json:"status"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	ExecutionTimeSeconds float64         `json:"execution_time_seconds,omitempty"`
	InputData            map[string]any  `json:"input_data,omitempty"`
	OutputData           map[string]any  `json:"output_data,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	APISecuritySummary   map[string]any  `json:"api_security_summary,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Result returns the output_data.result string, if any.
func (e *AgentTaskExecution) Result() (string, bool) {
	if e.OutputData == nil {
		return "", false
	}
	s, ok := e.OutputData["result"].(string)
	return s, ok && s != ""
}
