package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateExecution records a new pending execution for a task. Callers must
// have checked the in-flight guard and the execution cap first.
func (s *Store) CreateExecution(ctx context.Context, taskID string) (*AgentTaskExecution, error) {
	now := time.Now().UTC()
	e := &AgentTaskExecution{
		ID:          uuid.NewString(),
		AgentTaskID: taskID,
		Status:      ExecutionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := s.rebind(`
INSERT INTO agent_task_executions (id, agent_task_id, status, started_at, completed_at, execution_time_seconds, input_data_json, output_data_json, error_message, api_security_summary_json, created_at, updated_at)
VALUES (?, ?, ?, NULL, NULL, 0, NULL, NULL, NULL, NULL, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query, e.ID, e.AgentTaskID, string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}
	return e, nil
}

// GetExecution loads an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*AgentTaskExecution, error) {
	query := s.rebind(executionSelectSQL + ` WHERE id = ?`)
	e, err := s.scanExecution(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns the executions of a task, newest first.
func (s *Store) ListExecutions(ctx context.Context, taskID string) ([]*AgentTaskExecution, error) {
	query := s.rebind(executionSelectSQL + ` WHERE agent_task_id = ? ORDER BY created_at DESC`)

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*AgentTaskExecution
	for rows.Next() {
		e, err := s.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HasActiveExecution reports whether any execution of the task is pending or
// running. The scheduler uses this to keep at most one execution in flight
// per task.
func (s *Store) HasActiveExecution(ctx context.Context, taskID string) (bool, error) {
	query := s.rebind(`
SELECT COUNT(*) FROM agent_task_executions
WHERE agent_task_id = ? AND status IN (?, ?)`)

	var n int
	err := s.db.QueryRowContext(ctx, query, taskID,
		string(ExecutionPending), string(ExecutionRunning)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count active executions: %w", err)
	}
	return n > 0, nil
}

// MarkRunning transitions a pending execution to running and stamps
// started_at. Returns false without error if the execution is no longer
// pending, which happens when it was cancelled before a worker picked it up.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	query := s.rebind(`
UPDATE agent_task_executions
SET status = ?, started_at = ?, updated_at = ?
WHERE id = ? AND status = ?`)

	res, err := s.db.ExecContext(ctx, query,
		string(ExecutionRunning), now, now, id, string(ExecutionPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark execution running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark execution running: %w", err)
	}
	return n == 1, nil
}

// CompleteExecution moves an in-flight execution to completed with its
// output. Terminal executions are never rewritten.
func (s *Store) CompleteExecution(ctx context.Context, id string, output map[string]any, securitySummary map[string]any, duration time.Duration) error {
	return s.finishExecution(ctx, id, ExecutionCompleted, output, securitySummary, "", duration)
}

// FailExecution moves an in-flight execution to failed with an error message.
func (s *Store) FailExecution(ctx context.Context, id, message string, duration time.Duration) error {
	return s.finishExecution(ctx, id, ExecutionFailed, nil, nil, message, duration)
}

// CancelExecution marks a pending or running execution failed with a
// cancellation message. Workers observing the flipped status skip the work.
func (s *Store) CancelExecution(ctx context.Context, id string) error {
	return s.finishExecution(ctx, id, ExecutionFailed, nil, nil, "Cancelled by user", 0)
}

// SetExecutionInput records the resolved input data of a running execution.
func (s *Store) SetExecutionInput(ctx context.Context, id string, input map[string]any) error {
	inputJSON, err := marshalMap(input)
	if err != nil {
		return err
	}

	query := s.rebind(`
UPDATE agent_task_executions SET input_data_json = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, inputJSON, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to save execution input: %w", err)
	}
	return nil
}

func (s *Store) finishExecution(ctx context.Context, id string, status ExecutionStatus, output, securitySummary map[string]any, message string, duration time.Duration) error {
	now := time.Now().UTC()

	outputJSON, err := marshalMap(output)
	if err != nil {
		return err
	}
	summaryJSON, err := marshalMap(securitySummary)
	if err != nil {
		return err
	}

	// Guard against rewriting terminal states.
	query := s.rebind(`
UPDATE agent_task_executions
SET status = ?, completed_at = ?, execution_time_seconds = ?, output_data_json = ?, error_message = ?, api_security_summary_json = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`)

	res, err := s.db.ExecContext(ctx, query,
		string(status), now, duration.Seconds(), outputJSON, message, summaryJSON, now,
		id, string(ExecutionPending), string(ExecutionRunning))
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s is not in flight: %w", id, ErrNotFound)
	}
	return nil
}

const executionSelectSQL = `
SELECT id, agent_task_id, status, started_at, completed_at, execution_time_seconds, input_data_json, output_data_json, error_message, api_security_summary_json, created_at, updated_at
FROM agent_task_executions`

func (s *Store) scanExecution(row rowScanner) (*AgentTaskExecution, error) {
	var e AgentTaskExecution
	var status string
	var startedAt, completedAt sql.NullTime
	var inputJSON, outputJSON, errorMessage, summaryJSON sql.NullString

	err := row.Scan(&e.ID, &e.AgentTaskID, &status, &startedAt, &completedAt,
		&e.ExecutionTimeSeconds, &inputJSON, &outputJSON, &errorMessage,
		&summaryJSON, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = ExecutionStatus(status)
	e.StartedAt = timePtr(startedAt)
	e.CompletedAt = timePtr(completedAt)
	e.ErrorMessage = errorMessage.String

	if e.InputData, err = unmarshalMap(inputJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}
	if e.OutputData, err = unmarshalMap(outputJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
	}
	if e.APISecuritySummary, err = unmarshalMap(summaryJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal security summary: %w", err)
	}

	return &e, nil
}

func marshalMap(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMap(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
