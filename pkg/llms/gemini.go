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

const geminiDefaultHost = "https://generativelanguage.googleapis.com"

// GeminiClient talks to the Google Generative Language API.
type GeminiClient struct {
	model  string
	apiKey string
	host   string
	client *httpclient.Client
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Tools             []geminiToolList `json:"tools,omitempty"`
	GenerationConfig  geminiGenConfig  `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *geminiInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiToolList struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	return &GeminiClient{
		model:  model,
		apiKey: apiKey,
		host:   geminiDefaultHost,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		),
	}, nil
}

func (c *GeminiClient) ModelName() string   { return c.model }
func (c *GeminiClient) SupportsTools() bool { return true }

func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	wire := geminiRequest{
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens: req.maxTokens(),
			Temperature:     req.temperature(),
		},
	}

	if req.SystemPrompt != "" {
		wire.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	attached := false
	for _, m := range req.conversation() {
		switch m.Role {
		case RoleAssistant:
			// Function responses only parse against a preceding model turn
			// carrying the matching functionCall part.
			var parts []geminiPart
			if m.Content != "" || len(m.ToolCalls) == 0 {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{
					Name: tc.Name, Args: tc.Arguments,
				}})
			}
			wire.Contents = append(wire.Contents, geminiContent{Role: "model", Parts: parts})
		case RoleTool:
			wire.Contents = append(wire.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{FunctionResponse: &geminiFunctionResp{
					Name:     m.Name,
					Response: map[string]any{"content": m.Content},
				}}},
			})
		default:
			parts := []geminiPart{{Text: m.Content}}
			if !attached && len(req.Attachments) > 0 {
				for _, a := range req.Attachments {
					parts = append(parts, geminiPart{InlineData: &geminiInlineData{
						MimeType: a.MediaType,
						Data:     base64.StdEncoding.EncodeToString(a.Data),
					}})
				}
				attached = true
			}
			wire.Contents = append(wire.Contents, geminiContent{Role: "user", Parts: parts})
		}
	}

	if len(req.Tools) > 0 {
		var decls []geminiFunctionDecl
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name: t.Name, Description: t.Description, Parameters: t.Parameters,
			})
		}
		wire.Tools = []geminiToolList{{FunctionDeclarations: decls}}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.host, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("Gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("Gemini API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API returned HTTP %d", resp.StatusCode)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini response has no candidates")
	}

	result := &Result{}
	var texts []string
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
			continue
		}
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	result.Output = strings.Join(texts, "")

	if parsed.UsageMetadata != nil {
		result.Usage = &Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}
