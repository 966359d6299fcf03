package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var markdownSyntax = regexp.MustCompile("[*_`#>]|\\[|\\]\\([^)]*\\)")

// FormatOutputTool reshapes text into the format the task's consumer wants:
// pretty-printed JSON, markdown, or plain text with markup stripped.
type FormatOutputTool struct{}

func NewFormatOutputTool() *FormatOutputTool { return &FormatOutputTool{} }

func (t *FormatOutputTool) GetName() string { return "format_output" }

func (t *FormatOutputTool) GetDescription() string {
	return "Reformat content as json, markdown or plain text before returning it."
}

func (t *FormatOutputTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{Name: "content", Type: "string", Description: "Content to reformat", Required: true},
			{Name: "format", Type: "string", Description: "Target format", Required: true,
				Enum: []string{"json", "markdown", "plain"}},
		},
	}
}

func (t *FormatOutputTool) Execute(_ context.Context, args map[string]any) (ToolResult, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return ToolResult{Success: false, Error: "content is required"}, nil
	}
	format, _ := args["format"].(string)

	switch strings.ToLower(format) {
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(content), "", "  "); err != nil {
			// Not already JSON: wrap it.
			wrapped, err := json.MarshalIndent(map[string]string{"content": content}, "", "  ")
			if err != nil {
				return ToolResult{Success: false, Error: err.Error()}, nil
			}
			return ToolResult{Success: true, Content: string(wrapped)}, nil
		}
		return ToolResult{Success: true, Content: buf.String()}, nil

	case "plain":
		return ToolResult{Success: true, Content: markdownSyntax.ReplaceAllString(content, "")}, nil

	case "markdown", "":
		return ToolResult{Success: true, Content: content}, nil

	default:
		return ToolResult{Success: false, Error: fmt.Sprintf("unknown format: %s", format)}, nil
	}
}
