// Package store is the SQLite-backed persistence layer for runtime
// configuration, notable facts, perception records, long-term memory and
// the missing-skill log. MySQL and PostgreSQL are supported through the
// same database/sql surface for shared deployments.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/connexhq/connex/pkg/logger"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps one database holding all runtime tables.
type Store struct {
	db      *sql.DB
	dialect string
	log     *slog.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS system_config (
    key VARCHAR(255) PRIMARY KEY,
    value_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS notable_information (
    key VARCHAR(255) PRIMARY KEY,
    value_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS perceptions (
    name VARCHAR(255) PRIMARY KEY,
    description TEXT,
    category VARCHAR(255),
    sub_category VARCHAR(255),
    type VARCHAR(50),
    version VARCHAR(50),
    enabled BOOLEAN NOT NULL DEFAULT 1,
    last_updated TIMESTAMP NOT NULL,
    embedding_json TEXT
);

CREATE TABLE IF NOT EXISTS skill_requests (
    query VARCHAR(255) PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 1,
    status VARCHAR(50) NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    embedding_json TEXT,
    metadata_json TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp);
CREATE INDEX IF NOT EXISTS idx_skill_requests_status ON skill_requests(status);
`

// Open opens (and migrates) the store. Driver is one of "sqlite",
// "mysql" or "postgres"; dsn is the driver connection string.
func Open(driver, dsn string) (*Store, error) {
	dialect := driver
	driverName := driver
	switch driver {
	case "sqlite", "sqlite3":
		dialect = "sqlite"
		driverName = "sqlite3"
	case "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: sqlite, mysql, postgres)", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{db: db, dialect: dialect, log: logger.GetLogger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens a local SQLite store at path.
func OpenSQLite(path string) (*Store, error) {
	return Open("sqlite", path)
}

func (s *Store) migrate() error {
	schema := schemaSQL
	if s.dialect != "sqlite" {
		// AUTOINCREMENT is SQLite spelling
		schema = strings.ReplaceAll(schema, "INTEGER PRIMARY KEY AUTOINCREMENT", autoIncrementColumn(s.dialect))
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func autoIncrementColumn(dialect string) string {
	if dialect == "postgres" {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTO_INCREMENT"
}

// q rewrites ? placeholders to $n for postgres.
func (s *Store) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// upsert builds the dialect-specific "insert or update" clause for a
// single-column conflict target.
func (s *Store) upsert(table, keyCol string, cols []string) string {
	placeholders := strings.TrimRight(strings.Repeat("?, ", len(cols)), ", ")
	base := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	updates := make([]string, 0, len(cols)-1)
	for _, col := range cols {
		if col == keyCol {
			continue
		}
		if s.dialect == "mysql" {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", col, col))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	if s.dialect == "mysql" {
		return base + " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	return base + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", keyCol, strings.Join(updates, ", "))
}

// DB exposes the underlying handle for components that share the store.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
