package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PerceptionRecord is the persisted registration of a sensing module.
type PerceptionRecord struct {
	Name        string
	Description string
	Category    string
	SubCategory string
	Type        string
	Version     string
	Enabled     bool
	LastUpdated time.Time
	Embedding   []float32
}

// UpsertPerception registers or refreshes a perception module record.
func (s *Store) UpsertPerception(ctx context.Context, rec *PerceptionRecord) error {
	var embJSON string
	if len(rec.Embedding) > 0 {
		data, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		embJSON = string(data)
	}

	query := s.q(s.upsert("perceptions", "name", []string{
		"name", "description", "category", "sub_category", "type",
		"version", "enabled", "last_updated", "embedding_json",
	}))
	_, err := s.db.ExecContext(ctx, query,
		rec.Name, rec.Description, rec.Category, rec.SubCategory, rec.Type,
		rec.Version, rec.Enabled, time.Now().UTC(), embJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert perception %q: %w", rec.Name, err)
	}
	return nil
}

// GetPerception loads one record by name, or nil when absent.
func (s *Store) GetPerception(ctx context.Context, name string) (*PerceptionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT name, description, category, sub_category, type, version, enabled, last_updated, embedding_json
FROM perceptions WHERE name = ?`), name)

	rec, err := scanPerception(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListPerceptions returns all records, optionally only enabled ones.
func (s *Store) ListPerceptions(ctx context.Context, enabledOnly bool) ([]*PerceptionRecord, error) {
	query := `
SELECT name, description, category, sub_category, type, version, enabled, last_updated, embedding_json
FROM perceptions`
	if enabledOnly {
		query += ` WHERE enabled = ` + s.boolLiteral(true)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list perceptions: %w", err)
	}
	defer rows.Close()

	var out []*PerceptionRecord
	for rows.Next() {
		rec, err := scanPerception(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetPerceptionEnabled toggles one module.
func (s *Store) SetPerceptionEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE perceptions SET enabled = ?, last_updated = ? WHERE name = ?`),
		enabled, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("failed to toggle perception %q: %w", name, err)
	}
	return nil
}

func (s *Store) boolLiteral(v bool) string {
	if s.dialect == "postgres" {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPerception(row rowScanner) (*PerceptionRecord, error) {
	var rec PerceptionRecord
	var embJSON sql.NullString
	err := row.Scan(&rec.Name, &rec.Description, &rec.Category, &rec.SubCategory,
		&rec.Type, &rec.Version, &rec.Enabled, &rec.LastUpdated, &embJSON)
	if err != nil {
		return nil, err
	}
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %q: %w", rec.Name, err)
		}
	}
	return &rec, nil
}
