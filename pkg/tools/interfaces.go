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

// Package tools implements the agent-callable tools bound to scheduled
// executions: authenticated API calls with response sanitization, project
// listings, output formatting and auth discovery.
package tools

import (
	"context"
	"time"
)

type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolResult struct {
	Success       bool           `json:"success"`
	Content       string         `json:"content,omitempty"`
	Error         string         `json:"error,omitempty"`
	ToolName      string         `json:"tool_name"`
	ExecutionTime time.Duration  `json:"execution_time,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]any) (ToolResult, error)

	GetName() string

	GetDescription() string
}

// Schema converts the declared parameters into a JSON-schema object for the
// provider tool binding.
func (i ToolInfo) Schema() map[string]any {
	properties := map[string]any{}
	var required []string
	for _, p := range i.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
