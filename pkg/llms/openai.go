package llms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agenthub/launcher/pkg/httpclient"
)

const openAIDefaultHost = "https://api.openai.com"

// OpenAIClient talks to the OpenAI chat completions API. The same wire
// format serves Ollama through its OpenAI-compatible endpoint.
type OpenAIClient struct {
	model  string
	apiKey string
	host   string
	client *httpclient.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

// openAIMessage carries either a plain string or a content-part list in
// Content; the part list is used for multimodal user turns.
type openAIMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	return newOpenAICompatible(apiKey, model, openAIDefaultHost, true)
}

func newOpenAICompatible(apiKey, model, host string, requireKey bool) (*OpenAIClient, error) {
	if requireKey && apiKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	return &OpenAIClient{
		model:  model,
		apiKey: apiKey,
		host:   strings.TrimSuffix(host, "/"),
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
	}, nil
}

func (c *OpenAIClient) ModelName() string   { return c.model }
func (c *OpenAIClient) SupportsTools() bool { return true }

func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	wire := openAIRequest{
		Model:       c.model,
		MaxTokens:   req.maxTokens(),
		Temperature: req.temperature(),
	}

	if req.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, openAIMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	attached := false
	for _, m := range req.conversation() {
		msg := openAIMessage{
			Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool arguments for %s: %w", tc.Name, err)
			}
			wtc := openAIToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			msg.ToolCalls = append(msg.ToolCalls, wtc)
		}
		// Attachments ride the first user turn as data-URI image parts.
		if !attached && m.Role == RoleUser && len(req.Attachments) > 0 {
			parts := []openAIContentPart{{Type: "text", Text: m.Content}}
			for _, a := range req.Attachments {
				parts = append(parts, openAIContentPart{
					Type: "image_url",
					ImageURL: &openAIImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", a.MediaType, base64.StdEncoding.EncodeToString(a.Data)),
					},
				})
			}
			msg.Content = parts
			attached = true
		}
		wire.Messages = append(wire.Messages, msg)
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, openAITool{
			Type:     "function",
			Function: openAIFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("OpenAI request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API returned HTTP %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI response has no choices")
	}

	choice := parsed.Choices[0]
	result := &Result{Output: choice.Message.Content}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("malformed tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: args,
		})
	}

	if parsed.Usage != nil {
		result.Usage = &Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		}
	}

	return result, nil
}
