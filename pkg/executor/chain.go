package executor

import (
	"context"
	"fmt"

	"github.com/agenthub/launcher/pkg/store"
)

// Enqueuer schedules a task for execution. The scheduler implements it; the
// indirection breaks the scheduler/executor construction cycle.
type Enqueuer interface {
	Schedule(ctx context.Context, taskID string, force bool) error
}

// chainInputSource builds the input descriptor a triggered task receives:
// the parent's filtered output, addressable again through the execution id.
// Preprocessing flags are copied from the parent's first source when present.
func chainInputSource(parent *store.AgentTask, executionID, output string) store.InputSource {
	entry := store.InputSource{
		URL:              fmt.Sprintf("agent-output://%s", executionID),
		SourceType:       "agent_output",
		Filename:         fmt.Sprintf("%s_output.txt", parent.Name),
		ContentType:      "text/plain",
		AgentExecutionID: executionID,
		ProcessedContent: output,
	}
	if len(parent.InputSources) > 0 {
		first := parent.InputSources[0]
		entry.SkipPreprocessing = first.SkipPreprocessing
		entry.PreprocessImage = first.PreprocessImage
		entry.IsDocumentWithText = first.IsDocumentWithText
		entry.ReplaceImagesWithDesc = first.ReplaceImagesWithDesc
		entry.ContainsImages = first.ContainsImages
		entry.ExtractImagesAsText = first.ExtractImagesAsText
	}
	return entry
}

// triggerChains fans the parent's output into every task triggered by it.
// Each child's input sources are replaced, not appended to: a chained task
// always runs against exactly the latest parent output. Children are enqueued
// through the scheduler's force path, never executed in-process. Chain
// failures are logged and never fail the parent execution.
func (e *Engine) triggerChains(ctx context.Context, parent *store.AgentTask, executionID, output string) {
	children, err := e.store.ListTriggeredBy(ctx, parent.ID)
	if err != nil {
		e.logger.Error("failed to list chained tasks", "task_id", parent.ID, "error", err)
		return
	}

	for _, child := range children {
		// A child still working on the previous trigger is skipped; this also
		// breaks trigger cycles.
		active, err := e.store.HasActiveExecution(ctx, child.ID)
		if err != nil {
			e.logger.Error("chain trigger skipped", "child_task_id", child.ID, "error", err)
			continue
		}
		if active {
			e.logger.Warn("chain trigger skipped, child has an in-flight execution",
				"child_task_id", child.ID, "parent_task_id", parent.ID)
			continue
		}

		child.InputSources = []store.InputSource{chainInputSource(parent, executionID, output)}
		if err := e.store.SaveTask(ctx, child); err != nil {
			e.logger.Error("failed to save chained task inputs", "child_task_id", child.ID, "error", err)
			continue
		}

		if e.scheduler == nil {
			e.logger.Warn("no scheduler bound, chained task not enqueued", "child_task_id", child.ID)
			continue
		}
		if err := e.scheduler.Schedule(ctx, child.ID, true); err != nil {
			e.logger.Error("failed to enqueue chained task", "child_task_id", child.ID, "error", err)
			continue
		}
		e.logger.Info("chained task enqueued",
			"parent_task_id", parent.ID, "child_task_id", child.ID, "execution_id", executionID)
	}
}
