package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateProject persists a new project.
func (s *Store) CreateProject(ctx context.Context, p *AgentProject) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := s.rebind(`
INSERT INTO agent_projects (id, name, description, user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.UserID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject loads a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*AgentProject, error) {
	query := s.rebind(`
SELECT id, name, description, user_id, created_at, updated_at
FROM agent_projects WHERE id = ?`)

	var p AgentProject
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &desc, &p.UserID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	p.Description = desc.String
	return &p, nil
}

// ListProjects returns all projects owned by a user.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*AgentProject, error) {
	query := s.rebind(`
SELECT id, name, description, user_id, created_at, updated_at
FROM agent_projects WHERE user_id = ? ORDER BY created_at`)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*AgentProject
	for rows.Next() {
		var p AgentProject
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.UserID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Description = desc.String
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpsertSecret creates or replaces a project secret. The value is encrypted
// at rest when a cipher is configured.
func (s *Store) UpsertSecret(ctx context.Context, secret *ProjectEnvironmentSecret) error {
	if err := secret.Validate(); err != nil {
		return err
	}
	if secret.ID == "" {
		secret.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	secret.UpdatedAt = now

	value, err := s.cipher.Encrypt(secret.Value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	query := `
INSERT INTO project_environment_secrets (id, project_id, user_id, secret_key, secret_value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_id, user_id, secret_key) DO UPDATE SET
    secret_value = excluded.secret_value,
    updated_at = excluded.updated_at`
	if s.dialect == "mysql" {
		query = `
INSERT INTO project_environment_secrets (id, project_id, user_id, secret_key, secret_value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    secret_value = VALUES(secret_value),
    updated_at = VALUES(updated_at)`
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		secret.ID, secret.ProjectID, secret.UserID, secret.Key, value, now, now)
	if err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}
	return nil
}

// GetSecretValues resolves the decrypted values of the named keys for a
// (project, user) scope. Keys without a stored value are absent from the
// result map.
func (s *Store) GetSecretValues(ctx context.Context, projectID, userID string, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	query := s.rebind(fmt.Sprintf(`
SELECT secret_key, secret_value
FROM project_environment_secrets
WHERE project_id = ? AND user_id = ? AND secret_key IN (%s)`, placeholders))

	args := make([]any, 0, len(keys)+2)
	args = append(args, projectID, userID)
	for _, k := range keys {
		args = append(args, k)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, encrypted string
		if err := rows.Scan(&key, &encrypted); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		value, err := s.cipher.Decrypt(encrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret %s: %w", key, err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// ListSecrets returns the secrets of a project with decrypted values. Callers
// presenting secrets to users should use MaskedValue.
func (s *Store) ListSecrets(ctx context.Context, projectID, userID string) ([]*ProjectEnvironmentSecret, error) {
	query := s.rebind(`
SELECT id, project_id, user_id, secret_key, secret_value, created_at, updated_at
FROM project_environment_secrets
WHERE project_id = ? AND user_id = ? ORDER BY secret_key`)

	rows, err := s.db.QueryContext(ctx, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer rows.Close()

	var out []*ProjectEnvironmentSecret
	for rows.Next() {
		var sec ProjectEnvironmentSecret
		var encrypted string
		if err := rows.Scan(&sec.ID, &sec.ProjectID, &sec.UserID, &sec.Key, &encrypted, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		sec.Value, err = s.cipher.Decrypt(encrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret %s: %w", sec.Key, err)
		}
		out = append(out, &sec)
	}
	return out, rows.Err()
}

// DeleteSecret removes one secret from a project.
func (s *Store) DeleteSecret(ctx context.Context, projectID, userID, key string) error {
	query := s.rebind(`
DELETE FROM project_environment_secrets
WHERE project_id = ? AND user_id = ? AND secret_key = ?`)
	if _, err := s.db.ExecContext(ctx, query, projectID, userID, key); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
