package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agenthub/launcher/pkg/store"
)

// ProjectSource lists a user's projects and their secrets.
type ProjectSource interface {
	ListProjects(ctx context.Context, userID string) ([]*store.AgentProject, error)
	ListSecrets(ctx context.Context, projectID, userID string) ([]*store.ProjectEnvironmentSecret, error)
}

// ListProjectsTool exposes the user's projects and available secret names to
// the model. Secret values are never included, only keys and masked values.
type ListProjectsTool struct {
	projects ProjectSource
	userID   string
	logger   *slog.Logger
}

func NewListProjectsTool(projects ProjectSource, userID string, logger *slog.Logger) *ListProjectsTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListProjectsTool{projects: projects, userID: userID, logger: logger}
}

func (t *ListProjectsTool) GetName() string { return "list_user_projects" }

func (t *ListProjectsTool) GetDescription() string {
	return "List the user's projects with the names of their stored secrets, for use with secure_api_call."
}

func (t *ListProjectsTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
	}
}

func (t *ListProjectsTool) Execute(ctx context.Context, _ map[string]any) (ToolResult, error) {
	projects, err := t.projects.ListProjects(ctx, t.userID)
	if err != nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("failed to list projects: %v", err)}, nil
	}

	type projectView struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		SecretKeys  []string `json:"secret_keys"`
	}

	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		view := projectView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			SecretKeys:  []string{},
		}
		secrets, err := t.projects.ListSecrets(ctx, p.ID, t.userID)
		if err != nil {
			t.logger.Warn("failed to list project secrets", "project_id", p.ID, "error", err)
		}
		for _, s := range secrets {
			view.SecretKeys = append(view.SecretKeys, s.Key)
		}
		views = append(views, view)
	}

	out, err := json.Marshal(views)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, nil
	}
	return ToolResult{Success: true, Content: string(out)}, nil
}
