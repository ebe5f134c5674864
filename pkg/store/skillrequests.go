package store

import (
	"context"
	"fmt"
	"time"
)

// Skill-request statuses.
const (
	SkillRequestPending     = "pending"
	SkillRequestFoundRemote = "found_remote"
	SkillRequestCreated     = "created"
	SkillRequestFailed      = "failed"
)

// SkillRequest is one logged query the registry could not satisfy.
type SkillRequest struct {
	Query     string
	Count     int
	Status    string
	UpdatedAt time.Time
}

// LogSkillRequest records a missing-skill query, incrementing the count
// on repeats. New entries start pending.
func (s *Store) LogSkillRequest(ctx context.Context, query string) error {
	var stmt string
	if s.dialect == "mysql" {
		stmt = `
INSERT INTO skill_requests (query, count, status, updated_at) VALUES (?, 1, ?, ?)
ON DUPLICATE KEY UPDATE count = count + 1, updated_at = VALUES(updated_at)`
	} else {
		stmt = `
INSERT INTO skill_requests (query, count, status, updated_at) VALUES (?, 1, ?, ?)
ON CONFLICT(query) DO UPDATE SET count = skill_requests.count + 1, updated_at = excluded.updated_at`
	}

	_, err := s.db.ExecContext(ctx, s.q(stmt), query, SkillRequestPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log skill request %q: %w", query, err)
	}
	return nil
}

// UpdateSkillRequestStatus moves a request through the review cycle.
func (s *Store) UpdateSkillRequestStatus(ctx context.Context, query, status string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE skill_requests SET status = ?, updated_at = ? WHERE query = ?`),
		status, time.Now().UTC(), query)
	if err != nil {
		return fmt.Errorf("failed to update skill request %q: %w", query, err)
	}
	return nil
}

// ListSkillRequests returns requests, filtered by status when non-empty,
// most-requested first.
func (s *Store) ListSkillRequests(ctx context.Context, status string) ([]SkillRequest, error) {
	query := `SELECT query, count, status, updated_at FROM skill_requests`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY count DESC, updated_at DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list skill requests: %w", err)
	}
	defer rows.Close()

	var out []SkillRequest
	for rows.Next() {
		var r SkillRequest
		if err := rows.Scan(&r.Query, &r.Count, &r.Status, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
