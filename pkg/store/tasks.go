package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateTask persists a new task, initializing next_execution_at from the
// schedule.
func (s *Store) CreateTask(ctx context.Context, t *AgentTask) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.requireOneShotInstance(ctx, t.AgentInstanceID); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = TaskActive
	}
	if t.NextExecutionAt == nil {
		t.InitNextExecution(now)
	}

	sourcesJSON, err := marshalSources(t.InputSources)
	if err != nil {
		return err
	}

	query := s.rebind(`
INSERT INTO agent_tasks (id, name, agent_instance_id, user_id, instruction, input_sources_json, schedule_type, scheduled_at, interval_minutes, status, last_executed_at, next_execution_at, max_executions, execution_count, triggered_by_task_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Name, t.AgentInstanceID, t.UserID, t.Instruction, sourcesJSON,
		string(t.ScheduleType), nullTime(t.ScheduledAt), t.IntervalMinutes,
		string(t.Status), nullTime(t.LastExecutedAt), nullTime(t.NextExecutionAt),
		nullInt(t.MaxExecutions), t.ExecutionCount, t.TriggeredByTaskID,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*AgentTask, error) {
	query := s.rebind(taskSelectSQL + ` WHERE id = ?`)
	t, err := s.scanTask(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return t, nil
}

// SaveTask rewrites all mutable task fields.
func (s *Store) SaveTask(ctx context.Context, t *AgentTask) error {
	t.UpdatedAt = time.Now().UTC()

	sourcesJSON, err := marshalSources(t.InputSources)
	if err != nil {
		return err
	}

	query := s.rebind(`
UPDATE agent_tasks
SET name = ?, instruction = ?, input_sources_json = ?, schedule_type = ?, scheduled_at = ?, interval_minutes = ?, status = ?, last_executed_at = ?, next_execution_at = ?, max_executions = ?, execution_count = ?, updated_at = ?
WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query,
		t.Name, t.Instruction, sourcesJSON, string(t.ScheduleType),
		nullTime(t.ScheduledAt), t.IntervalMinutes, string(t.Status),
		nullTime(t.LastExecutedAt), nullTime(t.NextExecutionAt),
		nullInt(t.MaxExecutions), t.ExecutionCount, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task and its executions.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM agent_task_executions WHERE agent_task_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete task executions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM agent_tasks WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ListDueTasks returns active tasks whose next_execution_at has passed.
// Readiness (execution cap, in-flight guard) is re-checked by the scheduler.
func (s *Store) ListDueTasks(ctx context.Context, now time.Time) ([]*AgentTask, error) {
	query := s.rebind(taskSelectSQL + `
WHERE status = ? AND next_execution_at IS NOT NULL AND next_execution_at <= ?
ORDER BY next_execution_at`)

	rows, err := s.db.QueryContext(ctx, query, string(TaskActive), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}
	defer rows.Close()

	return s.collectTasks(rows)
}

// ListTasks returns all tasks owned by a user.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]*AgentTask, error) {
	query := s.rebind(taskSelectSQL + ` WHERE user_id = ? ORDER BY created_at`)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return s.collectTasks(rows)
}

// ListTriggeredBy returns the tasks chained to run after the given parent
// task completes.
func (s *Store) ListTriggeredBy(ctx context.Context, parentTaskID string) ([]*AgentTask, error) {
	query := s.rebind(taskSelectSQL + ` WHERE triggered_by_task_id = ? ORDER BY created_at`)

	rows, err := s.db.QueryContext(ctx, query, parentTaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggered tasks: %w", err)
	}
	defer rows.Close()

	return s.collectTasks(rows)
}

// ReactivateTask resets a completed or failed task back to active and
// recomputes its next execution time. A task at its execution cap stays
// terminal; raise max_executions first.
func (s *Store) ReactivateTask(ctx context.Context, id string) error {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !t.UnderCap() {
		return fmt.Errorf("task %s reached max_executions (%d)", id, *t.MaxExecutions)
	}
	t.Status = TaskActive
	t.InitNextExecution(time.Now().UTC())
	return s.SaveTask(ctx, t)
}

// requireOneShotInstance rejects tasks bound to interactive chat instances.
func (s *Store) requireOneShotInstance(ctx context.Context, instanceID string) error {
	inst, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.AgentType != AgentTypeOneShot {
		return fmt.Errorf("agent instance %s is %s; scheduled tasks require a one-shot instance", instanceID, inst.AgentType)
	}
	return nil
}

const taskSelectSQL = `
SELECT id, name, agent_instance_id, user_id, instruction, input_sources_json, schedule_type, scheduled_at, interval_minutes, status, last_executed_at, next_execution_at, max_executions, execution_count, triggered_by_task_id, created_at, updated_at
FROM agent_tasks`

func (s *Store) scanTask(row rowScanner) (*AgentTask, error) {
	var t AgentTask
	var scheduleType, status string
	var sourcesJSON, triggeredBy sql.NullString
	var scheduledAt, lastExecutedAt, nextExecutionAt sql.NullTime
	var maxExecutions sql.NullInt64

	err := row.Scan(&t.ID, &t.Name, &t.AgentInstanceID, &t.UserID, &t.Instruction,
		&sourcesJSON, &scheduleType, &scheduledAt, &t.IntervalMinutes, &status,
		&lastExecutedAt, &nextExecutionAt, &maxExecutions, &t.ExecutionCount,
		&triggeredBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.ScheduleType = ScheduleType(scheduleType)
	t.Status = TaskStatus(status)
	t.ScheduledAt = timePtr(scheduledAt)
	t.LastExecutedAt = timePtr(lastExecutedAt)
	t.NextExecutionAt = timePtr(nextExecutionAt)
	t.MaxExecutions = intPtr(maxExecutions)
	t.TriggeredByTaskID = triggeredBy.String

	if sourcesJSON.Valid && sourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &t.InputSources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input sources: %w", err)
		}
	}

	return &t, nil
}

func (s *Store) collectTasks(rows *sql.Rows) ([]*AgentTask, error) {
	var out []*AgentTask
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalSources(sources []InputSource) (string, error) {
	if len(sources) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("failed to marshal input sources: %w", err)
	}
	return string(b), nil
}
