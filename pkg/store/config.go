package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SetConfig persists a configuration value. Values are stored as JSON
// and override environment defaults at load time.
func (s *Store) SetConfig(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode config value: %w", err)
	}

	query := s.q(s.upsert("system_config", "key", []string{"key", "value_json", "updated_at"}))
	if _, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set config %q: %w", key, err)
	}
	return nil
}

// GetConfig loads one configuration value into out. Returns false when
// the key is absent.
func (s *Store) GetConfig(ctx context.Context, key string, out interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT value_json FROM system_config WHERE key = ?`), key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get config %q: %w", key, err)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return false, fmt.Errorf("failed to decode config %q: %w", key, err)
		}
	}
	return true, nil
}

// GetConfigString loads a string config value, or fallback when absent.
func (s *Store) GetConfigString(ctx context.Context, key, fallback string) string {
	var v string
	ok, err := s.GetConfig(ctx, key, &v)
	if err != nil {
		s.log.Warn("config lookup failed", "key", key, "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}
	return v
}

// ListConfig returns all configuration keys and raw JSON values.
func (s *Store) ListConfig(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value_json FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(raw)
	}
	return out, rows.Err()
}

// DeleteConfig removes one configuration key.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM system_config WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("failed to delete config %q: %w", key, err)
	}
	return nil
}
