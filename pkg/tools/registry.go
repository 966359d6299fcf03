package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Registry holds the tools bound to one execution's agent.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

func (r *Registry) Register(tool Tool) error {
	name := tool.GetName()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Execute dispatches one call, stamping timing and tool name onto the
// result. Unknown tools return an unsuccessful result, not an error; the
// model sees the failure and can correct itself.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	tool, ok := r.tools[name]
	if !ok {
		return ToolResult{
			Success:  false,
			Error:    fmt.Sprintf("unknown tool: %s", name),
			ToolName: name,
		}, nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	result.ToolName = name
	result.ExecutionTime = time.Since(start)

	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		result.Success = false
		if result.Error == "" {
			result.Error = err.Error()
		}
		return result, nil
	}

	r.logger.Debug("tool executed", "tool", name, "duration", result.ExecutionTime)
	return result, nil
}
