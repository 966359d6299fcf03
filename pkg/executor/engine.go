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

// Package executor runs a single task execution end to end: claim the
// execution record, fetch and preprocess inputs, render the instruction,
// dispatch to the provider (locally or through the remote function), persist
// the result and fan out chained tasks.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agenthub/launcher/pkg/fetch"
	"github.com/agenthub/launcher/pkg/llms"
	"github.com/agenthub/launcher/pkg/preprocess"
	"github.com/agenthub/launcher/pkg/remote"
	"github.com/agenthub/launcher/pkg/sandbox"
	"github.com/agenthub/launcher/pkg/store"
	"github.com/agenthub/launcher/pkg/template"
	"github.com/agenthub/launcher/pkg/tools"
)

// Engine orchestrates single executions. Safe for concurrent use across
// distinct executions; one execution is always processed by one worker.
type Engine struct {
	store     *store.Store
	fetcher   *fetch.Fetcher
	processor *preprocess.Processor
	renderer  *template.Renderer
	invoker   *remote.Invoker
	scheduler Enqueuer
	newClient func(*store.AgentInstance) (llms.Client, error)
	logger    *slog.Logger
}

// New builds an Engine. invoker may be nil when remote execution is disabled;
// instances requesting it then fail at dispatch.
func New(st *store.Store, fetcher *fetch.Fetcher, invoker *remote.Invoker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		fetcher:   fetcher,
		processor: preprocess.NewProcessor(logger),
		renderer:  template.NewRenderer(st, logger),
		invoker:   invoker,
		newClient: llms.NewClient,
		logger:    logger,
	}
}

// SetScheduler binds the scheduler used to enqueue chained tasks. Set after
// construction because the scheduler itself depends on the engine.
func (e *Engine) SetScheduler(s Enqueuer) {
	e.scheduler = s
}

// Execute drives execution id through its full lifecycle. A pending record
// that was cancelled before a worker claimed it is skipped silently. Any
// failure marks both the execution and its task failed.
func (e *Engine) Execute(ctx context.Context, executionID string) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	task, err := e.store.GetTask(ctx, exec.AgentTaskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", exec.AgentTaskID, err)
	}

	inst, err := e.store.GetInstance(ctx, task.AgentInstanceID)
	if err != nil {
		e.fail(ctx, exec, task, time.Now(), fmt.Errorf("failed to load agent instance: %w", err))
		return err
	}

	claimed, err := e.store.MarkRunning(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to claim execution %s: %w", executionID, err)
	}
	if !claimed {
		e.logger.Info("execution no longer pending, skipping", "execution_id", executionID)
		return nil
	}

	started := time.Now()
	e.logger.Info("execution started",
		"execution_id", executionID, "task_id", task.ID, "task", task.Name)

	output, audit, err := e.run(ctx, exec, task, inst)
	if err != nil {
		e.fail(ctx, exec, task, started, err)
		return err
	}

	duration := time.Since(started)
	var summary map[string]any
	if audit != nil {
		summary = audit.Summary()
	}
	if err := e.store.CompleteExecution(ctx, executionID, output, summary, duration); err != nil {
		return fmt.Errorf("failed to persist execution result: %w", err)
	}

	if err := e.advanceTask(ctx, task); err != nil {
		return err
	}

	result, _ := output["result"].(string)
	e.triggerChains(ctx, task, executionID, result)

	e.logger.Info("execution completed",
		"execution_id", executionID, "task_id", task.ID, "duration", duration)
	return nil
}

// run performs the fallible middle of an execution and returns the output
// payload to persist.
func (e *Engine) run(ctx context.Context, exec *store.AgentTaskExecution, task *store.AgentTask, inst *store.AgentInstance) (map[string]any, *tools.Audit, error) {
	var batch *preprocess.Batch
	err := sandbox.With("agent_task_sandbox_", func(sb *sandbox.Sandbox) error {
		batch = e.collectInputs(ctx, sb, task)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox setup failed: %w", err)
	}

	projectID := e.projectContext(ctx, task)
	rendered := e.renderer.Render(ctx, task.Instruction, projectID, task.UserID)
	sourcesBlock := formatSources(batch)
	enhanced := enhanceInstruction(rendered, sourcesBlock)

	input := map[string]any{
		"instruction":          task.Instruction,
		"enhanced_instruction": enhanced,
		"task_name":            task.Name,
		"execution_id":         exec.ID,
		"has_raw_files":        batch.HasRawFiles,
	}
	if sources := sanitizedSources(batch); len(sources) > 0 {
		input["input_sources"] = sources
	}
	if err := e.store.SetExecutionInput(ctx, exec.ID, input); err != nil {
		return nil, nil, fmt.Errorf("failed to persist execution input: %w", err)
	}

	if inst.UseLambda {
		output, err := e.dispatchRemote(ctx, inst, task, rendered, sourcesBlock, batch)
		return output, nil, err
	}
	return e.dispatchLocal(ctx, inst, task, enhanced, batch)
}

// collectInputs downloads and preprocesses every input source. Fetch failures
// degrade to placeholder entries so a broken URL never fails the run. Chain
// inputs carrying preloaded content skip the fetch entirely.
func (e *Engine) collectInputs(ctx context.Context, sb *sandbox.Sandbox, task *store.AgentTask) *preprocess.Batch {
	batch := &preprocess.Batch{}
	for _, src := range task.InputSources {
		if src.ProcessedContent != "" {
			batch.Sources = append(batch.Sources, &preprocess.Processed{
				Source:           src,
				Filename:         src.Filename,
				ContentType:      src.ContentType,
				Strategy:         preprocess.StrategyAlwaysText,
				ProcessedContent: src.ProcessedContent,
				ContentPreview:   src.ProcessedContent,
				SizeBytes:        int64(len(src.ProcessedContent)),
			})
			continue
		}

		fetched, err := e.fetcher.Fetch(ctx, sb, src)
		if err != nil {
			e.logger.Warn("input source fetch failed", "url", src.URL, "error", err)
			batch.Sources = append(batch.Sources, &preprocess.Processed{
				Source: src,
				Err:    err.Error(),
			})
			continue
		}

		processed := e.processor.Process(src, fetched)
		batch.Sources = append(batch.Sources, processed)
		if processed.Raw {
			batch.HasRawFiles = true
		}
	}
	return batch
}

// projectContext resolves the project whose secrets the instruction renders
// against: the owner's first project, or none.
func (e *Engine) projectContext(ctx context.Context, task *store.AgentTask) string {
	projects, err := e.store.ListProjects(ctx, task.UserID)
	if err != nil {
		e.logger.Warn("failed to resolve project context", "user_id", task.UserID, "error", err)
		return ""
	}
	if len(projects) == 0 {
		return ""
	}
	return projects[0].ID
}

// dispatchLocal runs the provider client in-process with the agent tool set.
// Raw passthrough files travel as multimodal attachments.
func (e *Engine) dispatchLocal(ctx context.Context, inst *store.AgentInstance, task *store.AgentTask, enhanced string, batch *preprocess.Batch) (map[string]any, *tools.Audit, error) {
	client, err := e.newClient(inst)
	if err != nil {
		return nil, nil, err
	}

	req := &llms.Request{
		Prompt:       enhanced,
		SystemPrompt: inst.Instruction,
	}
	for _, src := range batch.Sources {
		if src.Raw && len(src.BinaryData) > 0 {
			req.Attachments = append(req.Attachments, llms.Attachment{
				Filename:  src.Filename,
				MediaType: src.MediaType,
				Data:      src.BinaryData,
			})
		}
	}

	var result *llms.Result
	var audit *tools.Audit
	if client.SupportsTools() {
		registry, a := e.buildToolset(task)
		audit = a
		for _, tool := range registry.List() {
			info := tool.GetInfo()
			req.Tools = append(req.Tools, llms.ToolDef{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  info.Schema(),
			})
		}
		result, err = llms.RunWithTools(ctx, client, req, &registryRunner{registry: registry})
	} else {
		result, err = client.Generate(ctx, req)
	}
	if err != nil {
		return nil, audit, fmt.Errorf("provider dispatch failed: %w", err)
	}

	output := map[string]any{
		"result":   StripThinkTags(result.Output),
		"provider": string(inst.Provider),
		"model":    client.ModelName(),
	}
	if result.Usage != nil {
		output["token_usage"] = result.Usage
	}
	return output, audit, nil
}

// dispatchRemote sends the base instruction through the remote function.
// Input sources travel in the context field; raw files are dropped, the
// remote path is text-only.
func (e *Engine) dispatchRemote(ctx context.Context, inst *store.AgentInstance, task *store.AgentTask, rendered, sourcesBlock string, batch *preprocess.Batch) (map[string]any, error) {
	if e.invoker == nil {
		return nil, fmt.Errorf("instance %s requires remote execution but it is disabled", inst.ID)
	}
	if batch.HasRawFiles {
		e.logger.Warn("raw files are not forwarded to remote execution", "task_id", task.ID)
	}

	req := e.invoker.BuildRequest(inst, rendered, inst.Instruction, nil)
	if sourcesBlock != "" {
		req.Context = map[string]any{
			"input_sources": sourcesBlock,
			"task_name":     task.Name,
		}
	}

	resp, err := e.invoker.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote dispatch failed: %w", err)
	}

	output := map[string]any{
		"result":   StripThinkTags(resp.Response),
		"provider": resp.Provider,
		"model":    resp.Model,
	}
	if resp.TokenUsage != nil {
		output["token_usage"] = resp.TokenUsage
	}
	return output, nil
}

// buildToolset wires the per-execution tool registry and its audit sink.
func (e *Engine) buildToolset(task *store.AgentTask) (*tools.Registry, *tools.Audit) {
	audit := tools.NewAudit()
	registry := tools.NewRegistry(e.logger)
	for _, tool := range []tools.Tool{
		tools.NewSecureAPITool(e.store, audit, task.UserID, e.logger),
		tools.NewListProjectsTool(e.store, task.UserID, e.logger),
		tools.NewFormatOutputTool(),
		tools.NewAPIDiscoveryTool(),
	} {
		if err := registry.Register(tool); err != nil {
			e.logger.Error("failed to register tool", "tool", tool.GetName(), "error", err)
		}
	}
	return registry, audit
}

// advanceTask applies the post-completion task bookkeeping: counters, the
// next occurrence, and terminal states for schedules that never recur.
func (e *Engine) advanceTask(ctx context.Context, task *store.AgentTask) error {
	now := time.Now().UTC()
	task.ExecutionCount++
	task.LastExecutedAt = &now
	task.NextExecutionAt = task.CalcNext(now)

	// A task at its execution cap is done regardless of schedule type;
	// recurring tasks must not keep a future occurrence on the books.
	if !task.UnderCap() {
		task.Status = store.TaskCompleted
		task.NextExecutionAt = nil
	} else if task.ScheduleType == store.ScheduleOnce {
		task.Status = store.TaskCompleted
	}

	if err := e.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to update task after execution: %w", err)
	}
	return nil
}

// fail records a terminal failure on both the execution and its task.
func (e *Engine) fail(ctx context.Context, exec *store.AgentTaskExecution, task *store.AgentTask, started time.Time, cause error) {
	duration := time.Since(started)
	if err := e.store.FailExecution(ctx, exec.ID, cause.Error(), duration); err != nil {
		e.logger.Error("failed to record execution failure", "execution_id", exec.ID, "error", err)
	}

	task.Status = store.TaskFailed
	if err := e.store.SaveTask(ctx, task); err != nil {
		e.logger.Error("failed to mark task failed", "task_id", task.ID, "error", err)
	}

	e.logger.Error("execution failed",
		"execution_id", exec.ID, "task_id", task.ID, "duration", duration, "error", cause)
}

// registryRunner adapts the tool registry to the generation tool loop.
type registryRunner struct {
	registry *tools.Registry
}

func (r *registryRunner) Run(ctx context.Context, call llms.ToolCall) (string, error) {
	result, err := r.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%s", result.Error)
	}
	if result.Content == "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
	return result.Content, nil
}
