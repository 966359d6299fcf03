package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// APIDiscoveryTool reports which auth methods the secure_api_call tool would
// try for a URL, so the model can plan calls before making them.
type APIDiscoveryTool struct{}

func NewAPIDiscoveryTool() *APIDiscoveryTool { return &APIDiscoveryTool{} }

func (t *APIDiscoveryTool) GetName() string { return "api_discovery" }

func (t *APIDiscoveryTool) GetDescription() string {
	return "Inspect an API URL and report the authentication methods that will be attempted for it."
}

func (t *APIDiscoveryTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{Name: "url", Type: "string", Description: "API URL to inspect", Required: true},
		},
	}
}

func (t *APIDiscoveryTool) Execute(_ context.Context, args map[string]any) (ToolResult, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ToolResult{Success: false, Error: "url is required"}, nil
	}

	methods := DiscoverAuthMethods(rawURL)
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}

	out, err := json.Marshal(map[string]any{
		"url":          rawURL,
		"auth_methods": names,
		"note":         "methods are attempted in order; 401/403 advances to the next",
	})
	if err != nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("failed to encode result: %v", err)}, nil
	}
	return ToolResult{Success: true, Content: string(out)}, nil
}
