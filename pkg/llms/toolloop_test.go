package llms

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type scriptedClient struct {
	responses []*Result
	requests  []*Request
}

func (c *scriptedClient) Generate(_ context.Context, req *Request) (*Result, error) {
	cp := *req
	cp.Messages = append([]Message(nil), req.Messages...)
	c.requests = append(c.requests, &cp)

	if len(c.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	return r, nil
}

func (c *scriptedClient) ModelName() string   { return "scripted" }
func (c *scriptedClient) SupportsTools() bool { return true }

type mapRunner struct {
	outputs map[string]string
	err     error
	calls   []ToolCall
}

func (r *mapRunner) Run(_ context.Context, call ToolCall) (string, error) {
	r.calls = append(r.calls, call)
	if r.err != nil {
		return "", r.err
	}
	return r.outputs[call.Name], nil
}

func TestRunWithToolsCarriesToolCallsIntoSecondRound(t *testing.T) {
	client := &scriptedClient{responses: []*Result{
		{
			Output: "",
			ToolCalls: []ToolCall{{
				ID:        "call_1",
				Name:      "secure_api_call",
				Arguments: map[string]any{"url": "https://api.example.com"},
			}},
			Usage: &Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
		},
		{Output: "final answer", Usage: &Usage{InputTokens: 20, OutputTokens: 5, TotalTokens: 25}},
	}}
	runner := &mapRunner{outputs: map[string]string{"secure_api_call": `{"ok":true}`}}

	result, err := RunWithTools(context.Background(), client, &Request{Prompt: "call it"}, runner)
	if err != nil {
		t.Fatalf("RunWithTools() error: %v", err)
	}
	if result.Output != "final answer" {
		t.Errorf("Output = %q", result.Output)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 37 {
		t.Errorf("Usage = %+v, want accumulated totals", result.Usage)
	}

	if len(client.requests) != 2 {
		t.Fatalf("rounds = %d, want 2", len(client.requests))
	}
	msgs := client.requests[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("second round messages = %d, want 3", len(msgs))
	}

	// The assistant turn must carry the tool call the tool turn answers.
	assistant := msgs[1]
	if assistant.Role != RoleAssistant {
		t.Errorf("messages[1].Role = %q", assistant.Role)
	}
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call_1" {
		t.Fatalf("assistant.ToolCalls = %+v", assistant.ToolCalls)
	}

	tool := msgs[2]
	if tool.Role != RoleTool || tool.ToolCallID != "call_1" || tool.Content != `{"ok":true}` {
		t.Errorf("tool turn = %+v", tool)
	}
}

func TestRunWithToolsFeedsRunnerErrorsBack(t *testing.T) {
	client := &scriptedClient{responses: []*Result{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "secure_api_call"}}},
		{Output: "recovered"},
	}}
	runner := &mapRunner{err: errors.New("secret not defined")}

	result, err := RunWithTools(context.Background(), client, &Request{Prompt: "go"}, runner)
	if err != nil {
		t.Fatalf("RunWithTools() error: %v", err)
	}
	if result.Output != "recovered" {
		t.Errorf("Output = %q", result.Output)
	}

	tool := client.requests[1].Messages[2]
	if !strings.Contains(tool.Content, "secret not defined") {
		t.Errorf("tool output = %q, want the runner error", tool.Content)
	}
}

func TestRunWithToolsBoundsRounds(t *testing.T) {
	looping := make([]*Result, defaultMaxToolRounds)
	for i := range looping {
		looping[i] = &Result{ToolCalls: []ToolCall{{ID: "call_x", Name: "secure_api_call"}}}
	}
	client := &scriptedClient{responses: looping}
	runner := &mapRunner{outputs: map[string]string{"secure_api_call": "{}"}}

	_, err := RunWithTools(context.Background(), client, &Request{Prompt: "loop"}, runner)
	if err == nil {
		t.Fatal("expected an error when the model never stops calling tools")
	}
}
