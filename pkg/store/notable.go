package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/connexhq/connex/pkg/utils"
)

// notableThreshold is the minimum hybrid score for a fuzzy match.
const notableThreshold = 0.4

// NotableEntry is one named fact surfaced into planning prompts.
type NotableEntry struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// NotableMatch pairs an entry with its fuzzy-search score.
type NotableMatch struct {
	NotableEntry
	Score float64
}

// SetNotable stores or replaces a named fact.
func (s *Store) SetNotable(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode notable value: %w", err)
	}
	query := s.q(s.upsert("notable_information", "key", []string{"key", "value_json", "updated_at"}))
	if _, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set notable %q: %w", key, err)
	}
	return nil
}

// GetNotable loads one fact by exact key.
func (s *Store) GetNotable(ctx context.Context, key string) (*NotableEntry, error) {
	var e NotableEntry
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT key, value_json, updated_at FROM notable_information WHERE key = ?`), key).
		Scan(&e.Key, &raw, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notable %q: %w", key, err)
	}
	e.Value = json.RawMessage(raw)
	return &e, nil
}

// DeleteNotable removes one fact.
func (s *Store) DeleteNotable(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM notable_information WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("failed to delete notable %q: %w", key, err)
	}
	return nil
}

// ListNotable returns every stored fact.
func (s *Store) ListNotable(ctx context.Context) ([]NotableEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value_json, updated_at FROM notable_information`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notable information: %w", err)
	}
	defer rows.Close()

	var out []NotableEntry
	for rows.Next() {
		var e NotableEntry
		var raw string
		if err := rows.Scan(&e.Key, &raw, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Value = json.RawMessage(raw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchNotable ranks all keys against the query with a hybrid score:
// substring containment scores 1.0 plus a length bonus, everything else
// falls back to a character-level similarity ratio. Matches below the
// threshold are dropped.
func (s *Store) SearchNotable(ctx context.Context, query string, limit int) ([]NotableMatch, error) {
	entries, err := s.ListNotable(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matches := make([]NotableMatch, 0, len(entries))
	for _, e := range entries {
		key := strings.ToLower(e.Key)
		var score float64
		if q != "" && strings.Contains(key, q) {
			score = 1.0 + float64(len(q))/float64(len(key))
		} else {
			score = utils.SimilarityRatio(q, key)
		}
		if score < notableThreshold {
			continue
		}
		matches = append(matches, NotableMatch{NotableEntry: e, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
