package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthub/launcher/pkg/store"
)

type fakeProjects struct {
	projects []*store.AgentProject
	secrets  map[string][]*store.ProjectEnvironmentSecret
}

func (f *fakeProjects) ListProjects(_ context.Context, _ string) ([]*store.AgentProject, error) {
	return f.projects, nil
}

func (f *fakeProjects) ListSecrets(_ context.Context, projectID, _ string) ([]*store.ProjectEnvironmentSecret, error) {
	return f.secrets[projectID], nil
}

func TestListProjectsToolHidesSecretValues(t *testing.T) {
	source := &fakeProjects{
		projects: []*store.AgentProject{
			{ID: "proj-1", Name: "weather", Description: "weather agents"},
			{ID: "proj-2", Name: "empty"},
		},
		secrets: map[string][]*store.ProjectEnvironmentSecret{
			"proj-1": {
				{Key: "WEATHER_API_KEY", Value: "super-secret-value"},
				{Key: "SLACK_TOKEN", Value: "xoxb-secret"},
			},
		},
	}

	tool := NewListProjectsTool(source, "user-1", nil)
	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.NotContains(t, result.Content, "super-secret-value")
	assert.NotContains(t, result.Content, "xoxb-secret")

	var views []struct {
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		SecretKeys []string `json:"secret_keys"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &views))
	require.Len(t, views, 2)
	assert.Equal(t, []string{"WEATHER_API_KEY", "SLACK_TOKEN"}, views[0].SecretKeys)
	assert.Empty(t, views[1].SecretKeys)
}

func TestAPIDiscoveryTool(t *testing.T) {
	tool := NewAPIDiscoveryTool()

	result, err := tool.Execute(context.Background(), map[string]any{
		"url": "https://api.github.com/user",
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	var payload struct {
		URL         string   `json:"url"`
		AuthMethods []string `json:"auth_methods"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, []string{"Bearer", "Token"}, payload.AuthMethods)

	result, err = tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestFormatOutputTool(t *testing.T) {
	tool := NewFormatOutputTool()

	t.Run("pretty prints json", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{
			"content": `{"b":2,"a":1}`,
			"format":  "json",
		})
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Contains(t, result.Content, "\n  ")
	})

	t.Run("wraps non-json content", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{
			"content": "plain sentence",
			"format":  "json",
		})
		require.NoError(t, err)
		require.True(t, result.Success)
		var wrapped map[string]string
		require.NoError(t, json.Unmarshal([]byte(result.Content), &wrapped))
		assert.Equal(t, "plain sentence", wrapped["content"])
	})

	t.Run("plain strips markdown", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{
			"content": "# Title\n**bold** and [link](https://example.com)",
			"format":  "plain",
		})
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.NotContains(t, result.Content, "#")
		assert.NotContains(t, result.Content, "**")
		assert.NotContains(t, result.Content, "](")
	})

	t.Run("unknown format fails", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{
			"content": "x",
			"format":  "yaml",
		})
		require.NoError(t, err)
		assert.False(t, result.Success)
	})
}

func TestToolInfoSchema(t *testing.T) {
	info := ToolInfo{
		Name: "example",
		Parameters: []ToolParameter{
			{Name: "url", Type: "string", Description: "target", Required: true},
			{Name: "method", Type: "string", Description: "verb", Enum: []string{"GET", "POST"}, Default: "GET"},
		},
	}

	schema := info.Schema()
	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	require.Contains(t, props, "url")
	require.Contains(t, props, "method")
	assert.Equal(t, []string{"url"}, schema["required"])
	method := props["method"].(map[string]any)
	assert.Equal(t, []string{"GET", "POST"}, method["enum"])
	assert.Equal(t, "GET", method["default"])
}
