package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateInstance persists a new agent instance. The API key is encrypted at
// rest when a cipher is configured.
func (s *Store) CreateInstance(ctx context.Context, inst *AgentInstance) error {
	if err := inst.Validate(s.remoteEnabled); err != nil {
		return err
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	apiKey, err := s.cipher.Encrypt(inst.APIKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}

	query := s.rebind(`
INSERT INTO agent_instances (id, friendly_name, provider, model_name, api_key, target_url, agent_type, use_lambda, user_id, instruction, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		inst.ID, inst.FriendlyName, string(inst.Provider), inst.ModelName,
		apiKey, inst.TargetURL, string(inst.AgentType), inst.UseLambda,
		inst.UserID, inst.Instruction, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetInstance loads an instance by id, decrypting its API key.
func (s *Store) GetInstance(ctx context.Context, id string) (*AgentInstance, error) {
	query := s.rebind(`
SELECT id, friendly_name, provider, model_name, api_key, target_url, agent_type, use_lambda, user_id, instruction, created_at, updated_at
FROM agent_instances WHERE id = ?`)

	inst, err := s.scanInstance(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}
	return inst, nil
}

// ListInstances returns all instances owned by a user.
func (s *Store) ListInstances(ctx context.Context, userID string) ([]*AgentInstance, error) {
	query := s.rebind(`
SELECT id, friendly_name, provider, model_name, api_key, target_url, agent_type, use_lambda, user_id, instruction, created_at, updated_at
FROM agent_instances WHERE user_id = ? ORDER BY created_at`)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var out []*AgentInstance
	for rows.Next() {
		inst, err := s.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpdateInstance rewrites a mutable instance row.
func (s *Store) UpdateInstance(ctx context.Context, inst *AgentInstance) error {
	if err := inst.Validate(s.remoteEnabled); err != nil {
		return err
	}
	inst.UpdatedAt = time.Now().UTC()

	apiKey, err := s.cipher.Encrypt(inst.APIKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}

	query := s.rebind(`
UPDATE agent_instances
SET friendly_name = ?, provider = ?, model_name = ?, api_key = ?, target_url = ?, agent_type = ?, use_lambda = ?, instruction = ?, updated_at = ?
WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query,
		inst.FriendlyName, string(inst.Provider), inst.ModelName, apiKey,
		inst.TargetURL, string(inst.AgentType), inst.UseLambda,
		inst.Instruction, inst.UpdatedAt, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent instance %s: %w", inst.ID, ErrNotFound)
	}
	return nil
}

// DeleteInstance removes an instance.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	query := s.rebind(`DELETE FROM agent_instances WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanInstance(row rowScanner) (*AgentInstance, error) {
	var inst AgentInstance
	var provider, agentType, apiKey string
	var targetURL, instruction sql.NullString

	err := row.Scan(&inst.ID, &inst.FriendlyName, &provider, &inst.ModelName,
		&apiKey, &targetURL, &agentType, &inst.UseLambda,
		&inst.UserID, &instruction, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inst.Provider = Provider(provider)
	inst.AgentType = AgentType(agentType)
	inst.TargetURL = targetURL.String
	inst.Instruction = instruction.String

	inst.APIKey, err = s.cipher.Decrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt api key: %w", err)
	}

	return &inst, nil
}
