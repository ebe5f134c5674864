package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MemoryRow is one long-term memory entry. Entries are immutable once
// written; they are only ever inserted or deleted.
type MemoryRow struct {
	ID        int64
	Content   string
	Embedding []float32
	Metadata  map[string]interface{}
	Timestamp time.Time
}

// InsertMemory stores one memory with its embedding and returns the id.
func (s *Store) InsertMemory(ctx context.Context, content string, embedding []float32, metadata map[string]interface{}) (int64, error) {
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return 0, fmt.Errorf("failed to encode embedding: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}

	if s.dialect == "postgres" {
		var id int64
		err := s.db.QueryRowContext(ctx, s.q(`
INSERT INTO memories (content, embedding_json, metadata_json, timestamp)
VALUES (?, ?, ?, ?) RETURNING id`),
			content, string(embJSON), string(metaJSON), time.Now().UTC()).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert memory: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO memories (content, embedding_json, metadata_json, timestamp)
VALUES (?, ?, ?, ?)`,
		content, string(embJSON), string(metaJSON), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}
	return res.LastInsertId()
}

// AllMemories loads every entry with its embedding for in-process
// similarity scoring.
func (s *Store) AllMemories(ctx context.Context) ([]MemoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, embedding_json, metadata_json, timestamp FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		var m MemoryRow
		var embJSON, metaJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.Content, &embJSON, &metaJSON, &m.Timestamp); err != nil {
			return nil, err
		}
		if embJSON.Valid && embJSON.String != "" {
			if err := json.Unmarshal([]byte(embJSON.String), &m.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for memory %d: %w", m.ID, err)
			}
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for memory %d: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMemory removes one entry by id.
func (s *Store) DeleteMemory(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM memories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete memory %d: %w", id, err)
	}
	return nil
}
