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

// Package llms dispatches prompts to LLM providers over their native HTTP
// APIs. One Client per agent instance; BEDROCK has no local client and must
// go through remote execution.
package llms

import "context"

// Role values follow the OpenAI chat convention; providers translate as
// needed.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation. An assistant turn that paused for
// tools carries the calls it made in ToolCalls; the tool turns answering them
// reference the call by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDef describes a callable tool offered to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage is the provider-reported token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Attachment is a binary part sent alongside the prompt, used for raw
// passthrough files. Clients encode it in their provider's multimodal format.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Request is one generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	// Messages, when non-empty, is the full conversation; Prompt is then
	// ignored.
	Messages    []Message
	Tools       []ToolDef
	Attachments []Attachment
	MaxTokens   int
	Temperature float64
}

// Result is a normalized generation outcome. When ToolCalls is non-empty the
// model paused to invoke tools and Output may be partial.
type Result struct {
	Output    string
	ToolCalls []ToolCall
	Usage     *Usage
}

// Client is a single-provider LLM endpoint.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
	ModelName() string
	SupportsTools() bool
}

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

func (r *Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

func (r *Request) temperature() float64 {
	if r.Temperature > 0 {
		return r.Temperature
	}
	return defaultTemperature
}

// conversation returns the request as an ordered message list, synthesizing
// one user message from Prompt when no history is given.
func (r *Request) conversation() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return []Message{{Role: RoleUser, Content: r.Prompt}}
}
