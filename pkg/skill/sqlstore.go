package skill

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/connexhq/connex/pkg/utils"

	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists skill metadata, embeddings and per-skill configs in
// one SQLite file. Embedding vectors are stored as packed little-endian
// float32 blobs.
type SQLStore struct {
	db *sql.DB
}

const skillSchemaSQL = `
CREATE TABLE IF NOT EXISTS skills (
    name VARCHAR(255) PRIMARY KEY,
    description TEXT,
    category VARCHAR(255),
    sub_category VARCHAR(255),
    json_data TEXT,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
    skill_name VARCHAR(255) PRIMARY KEY,
    vector BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS skill_configs (
    skill_name VARCHAR(255) PRIMARY KEY,
    config_json TEXT NOT NULL
);
`

// OpenStore opens (and migrates) the skill database at path.
func OpenStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open skill database: %w", err)
	}
	for _, stmt := range strings.Split(skillSchemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply skill schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// SaveInfo upserts a skill's metadata row. The full Info is kept as
// JSON; the indexed columns exist for retrieval.
func (s *SQLStore) SaveInfo(ctx context.Context, info *Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode skill info: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO skills (name, description, category, sub_category, json_data, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    description = excluded.description,
    category = excluded.category,
    sub_category = excluded.sub_category,
    json_data = excluded.json_data,
    updated_at = excluded.updated_at`,
		info.Name, info.Description, info.Category, info.SubCategory, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save skill %q: %w", info.Name, err)
	}
	return nil
}

// LoadInfos returns all persisted skill metadata.
func (s *SQLStore) LoadInfos(ctx context.Context) ([]*Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT json_data FROM skills`)
	if err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	defer rows.Close()

	var out []*Info
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var info Info
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("failed to decode skill info: %w", err)
		}
		out = append(out, &info)
	}
	return out, rows.Err()
}

// DeleteSkill removes a skill's metadata, embedding and config.
func (s *SQLStore) DeleteSkill(ctx context.Context, name string) error {
	for _, stmt := range []string{
		`DELETE FROM skills WHERE name = ?`,
		`DELETE FROM embeddings WHERE skill_name = ?`,
		`DELETE FROM skill_configs WHERE skill_name = ?`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt, name); err != nil {
			return fmt.Errorf("failed to delete skill %q: %w", name, err)
		}
	}
	return nil
}

// SaveEmbedding stores a vector as a packed little-endian float32 blob.
func (s *SQLStore) SaveEmbedding(ctx context.Context, name string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO embeddings (skill_name, vector) VALUES (?, ?)
ON CONFLICT(skill_name) DO UPDATE SET vector = excluded.vector`,
		name, utils.PackFloats(vector))
	if err != nil {
		return fmt.Errorf("failed to save embedding for %q: %w", name, err)
	}
	return nil
}

// GetEmbedding loads one vector, or nil when absent.
func (s *SQLStore) GetEmbedding(ctx context.Context, name string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE skill_name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding for %q: %w", name, err)
	}
	return utils.UnpackFloats(blob)
}

// AllEmbeddings loads every stored vector keyed by skill name.
func (s *SQLStore) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT skill_name, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, err
		}
		vec, err := utils.UnpackFloats(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for %q: %w", name, err)
		}
		out[name] = vec
	}
	return out, rows.Err()
}

// SaveConfig persists a skill's merged config map.
func (s *SQLStore) SaveConfig(ctx context.Context, name string, config map[string]interface{}) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO skill_configs (skill_name, config_json) VALUES (?, ?)
ON CONFLICT(skill_name) DO UPDATE SET config_json = excluded.config_json`,
		name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save config for %q: %w", name, err)
	}
	return nil
}

// GetConfig loads a skill's persisted config, or an empty map.
func (s *SQLStore) GetConfig(ctx context.Context, name string) (map[string]interface{}, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM skill_configs WHERE skill_name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config for %q: %w", name, err)
	}
	var config map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("failed to decode config for %q: %w", name, err)
	}
	return config, nil
}
