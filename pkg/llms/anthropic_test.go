package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", got)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.System != "be terse" {
			t.Errorf("system = %q", req.System)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "short answer"}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("sk-ant", "claude-sonnet-4-5")
	if err != nil {
		t.Fatal(err)
	}
	client.host = srv.URL

	result, err := client.Generate(context.Background(), &Request{
		Prompt:       "hi",
		SystemPrompt: "be terse",
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if result.Output != "short answer" {
		t.Errorf("Output = %q", result.Output)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 12 {
		t.Errorf("Usage = %+v", result.Usage)
	}
}

func TestAnthropicToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "let me check"},
				{"type": "tool_use", "id": "tu_1", "name": "api_discovery",
					"input": map[string]any{"url": "https://api.github.com"}},
			},
			"stop_reason": "tool_use",
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("sk-ant", "claude-sonnet-4-5")
	if err != nil {
		t.Fatal(err)
	}
	client.host = srv.URL

	result, err := client.Generate(context.Background(), &Request{Prompt: "discover"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if result.Output != "let me check" {
		t.Errorf("Output = %q", result.Output)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "api_discovery" {
		t.Errorf("ToolCalls = %+v", result.ToolCalls)
	}
}

func TestAnthropicToolResultTranslation(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "done"}},
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("sk-ant", "claude-sonnet-4-5")
	if err != nil {
		t.Fatal(err)
	}
	client.host = srv.URL

	_, err = client.Generate(context.Background(), &Request{
		Messages: []Message{
			{Role: RoleUser, Content: "call it"},
			{Role: RoleAssistant, Content: "calling", ToolCalls: []ToolCall{{
				ID: "tu_1", Name: "secure_api_call",
				Arguments: map[string]any{"url": "https://api.example.com"},
			}}},
			{Role: RoleTool, Content: `{"ok":true}`, ToolCallID: "tu_1"},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(captured.Messages))
	}

	// The assistant turn must carry a tool_use block matching the result.
	blocks, ok := captured.Messages[1].Content.([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("assistant content = %+v, want text + tool_use blocks", captured.Messages[1].Content)
	}
	toolUse := blocks[1].(map[string]any)
	if toolUse["type"] != "tool_use" || toolUse["id"] != "tu_1" || toolUse["name"] != "secure_api_call" {
		t.Errorf("tool_use block = %+v", toolUse)
	}
	if input, ok := toolUse["input"].(map[string]any); !ok || input["url"] != "https://api.example.com" {
		t.Errorf("tool_use input = %+v", toolUse["input"])
	}

	// Tool results ride a user turn with a tool_result content block.
	last := captured.Messages[2]
	if last.Role != "user" {
		t.Errorf("tool result role = %q, want user", last.Role)
	}
	resultBlocks := last.Content.([]any)
	resultBlock := resultBlocks[0].(map[string]any)
	if resultBlock["type"] != "tool_result" || resultBlock["tool_use_id"] != "tu_1" {
		t.Errorf("tool_result block = %+v", resultBlock)
	}
}

func TestAnthropicAttachmentBlocks(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "an image"}},
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("sk-ant", "claude-sonnet-4-5")
	if err != nil {
		t.Fatal(err)
	}
	client.host = srv.URL

	_, err = client.Generate(context.Background(), &Request{
		Prompt: "describe this",
		Attachments: []Attachment{
			{Filename: "pic.png", MediaType: "image/png", Data: []byte{0x89, 0x50}},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	blocks, ok := captured.Messages[0].Content.([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("content = %+v, want text + image blocks", captured.Messages[0].Content)
	}
	image := blocks[1].(map[string]any)
	if image["type"] != "image" {
		t.Errorf("block type = %v", image["type"])
	}
	source := image["source"].(map[string]any)
	if source["type"] != "base64" || source["media_type"] != "image/png" || source["data"] == "" {
		t.Errorf("image source = %+v", source)
	}
}
