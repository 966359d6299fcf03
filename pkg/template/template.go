// Package template renders task instructions, substituting {{KEY}}
// placeholders with project-scoped secrets. Secret values never appear in
// logs; only their presence or absence is recorded.
package template

import (
	"context"
	"log/slog"
	"regexp"
)

// variablePattern matches {{KEY}} placeholders. Keys follow environment
// variable naming: uppercase, digits and underscores, not starting with a
// digit.
var variablePattern = regexp.MustCompile(`\{\{([A-Z_][A-Z0-9_]*)\}\}`)

// SecretSource resolves secret values for a (project, user) scope.
type SecretSource interface {
	GetSecretValues(ctx context.Context, projectID, userID string, keys []string) (map[string]string, error)
}

// Renderer substitutes secrets into instruction templates. It is stateless
// and safe for concurrent use.
type Renderer struct {
	secrets SecretSource
	logger  *slog.Logger
}

func NewRenderer(secrets SecretSource, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{secrets: secrets, logger: logger}
}

// Variables returns the distinct placeholder names in a template, in order
// of first appearance.
func Variables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range variablePattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes every {{KEY}} with its secret value. Missing keys are
// logged and replaced with an empty string, never echoed back raw. A secret
// lookup failure returns the template unchanged.
func (r *Renderer) Render(ctx context.Context, template, projectID, userID string) string {
	names := Variables(template)
	if len(names) == 0 {
		return template
	}

	values, err := r.secrets.GetSecretValues(ctx, projectID, userID, names)
	if err != nil {
		r.logger.Error("failed to resolve template secrets",
			"project_id", projectID, "variables", len(names), "error", err)
		return template
	}

	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := variablePattern.FindStringSubmatch(match)[1]
		value, ok := values[key]
		if !ok {
			r.logger.Warn("template variable has no stored secret",
				"variable", key, "project_id", projectID)
			return ""
		}
		return value
	})
}
