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

const (
	anthropicDefaultHost = "https://api.anthropic.com"
	anthropicAPIVersion  = "2023-06-01"
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	model  string
	apiKey string
	host   string
	client *httpclient.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// anthropicContent covers every block shape the conversation uses: text,
// tool_use, tool_result and base64 image blocks. Input is any so an empty
// tool argument object still serializes as {}.
type anthropicContent struct {
	Type      string                `json:"type"`
	Text      string                `json:"text,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     any                   `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	Content   string                `json:"content,omitempty"`
	Source    *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	return &AnthropicClient{
		model:  model,
		apiKey: apiKey,
		host:   anthropicDefaultHost,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders),
		),
	}, nil
}

func (c *AnthropicClient) ModelName() string   { return c.model }
func (c *AnthropicClient) SupportsTools() bool { return true }

func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	wire := anthropicRequest{
		Model:       c.model,
		MaxTokens:   req.maxTokens(),
		Temperature: req.temperature(),
		System:      req.SystemPrompt,
	}

	attached := false
	for _, m := range req.conversation() {
		switch m.Role {
		case RoleTool:
			wire.Messages = append(wire.Messages, anthropicMessage{
				Role: RoleUser,
				Content: []anthropicContent{{
					Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content,
				}},
			})
		case RoleSystem:
			// System turns ride the top-level system field.
			if wire.System == "" {
				wire.System = m.Content
			} else {
				wire.System += "\n\n" + m.Content
			}
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				wire.Messages = append(wire.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
				break
			}
			// Tool results only parse against a preceding tool_use block.
			var blocks []anthropicContent
			if m.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropicContent{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input,
				})
			}
			wire.Messages = append(wire.Messages, anthropicMessage{Role: m.Role, Content: blocks})
		default:
			if !attached && len(req.Attachments) > 0 {
				blocks := []anthropicContent{{Type: "text", Text: m.Content}}
				for _, a := range req.Attachments {
					blocks = append(blocks, anthropicContent{
						Type: "image",
						Source: &anthropicImageSource{
							Type:      "base64",
							MediaType: a.MediaType,
							Data:      base64.StdEncoding.EncodeToString(a.Data),
						},
					})
				}
				wire.Messages = append(wire.Messages, anthropicMessage{Role: m.Role, Content: blocks})
				attached = true
				break
			}
			wire.Messages = append(wire.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
		}
	}

	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, anthropicTool{
			Name: t.Name, Description: t.Description, InputSchema: t.Parameters,
		})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("Anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("Anthropic API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Anthropic API returned HTTP %d", resp.StatusCode)
	}

	result := &Result{}
	var texts []string
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			args, _ := block.Input.(map[string]any)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID: block.ID, Name: block.Name, Arguments: args,
			})
		}
	}
	result.Output = strings.Join(texts, "")

	if parsed.Usage != nil {
		result.Usage = &Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		}
	}

	return result, nil
}
