// Package db holds the agent's state file: a single SQLite database in the
// data directory that keeps the API token and the player geometry between
// runs. Clips and the source list never touch it.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// connPragmas are applied by the driver to every connection it opens.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(ON)",
}

const versionTable = `CREATE TABLE IF NOT EXISTS schema_version (
    name TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// StateDB is the opened state file.
type StateDB struct {
	sql    *sql.DB
	logger *slog.Logger
}

// Open creates the state file's directory if needed, opens the file and
// brings its schema up to date.
func Open(ctx context.Context, path string, logger *slog.Logger) (*StateDB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", stateDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	// One writer: the serve process is the only owner, guarded by the data dir lock.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &StateDB{sql: conn, logger: logger}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open state file %s: %w", path, err)
	}
	if err := s.upgrade(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func stateDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	for i, p := range connPragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

func (s *StateDB) Close() error {
	return s.sql.Close()
}

// SQL exposes the handle for repositories.
func (s *StateDB) SQL() *sql.DB {
	return s.sql
}

// upgrade runs every embedded schema file not yet listed in schema_version,
// in file name order, each in its own transaction.
func (s *StateDB) upgrade(ctx context.Context) error {
	if _, err := s.sql.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("prepare schema_version: %w", err)
	}

	done, err := s.appliedSteps(ctx)
	if err != nil {
		return err
	}

	entries, err := schemaFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		if done[name] {
			continue
		}
		if err := s.applyStep(ctx, name); err != nil {
			return err
		}
		s.logger.Info("state schema upgraded", "step", name)
	}
	return nil
}

func (s *StateDB) appliedSteps(ctx context.Context) (map[string]bool, error) {
	rows, err := s.sql.QueryContext(ctx, "SELECT name FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read schema_version: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (s *StateDB) applyStep(ctx context.Context, name string) error {
	body, err := schemaFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read schema step %s: %w", name, err)
	}

	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema step %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("schema step %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("record schema step %s: %w", name, err)
	}
	return tx.Commit()
}
