// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the embedded SQLite persistence layer backing
// every durable entity in internal/model: projects, sessions, tasks,
// workflow state, pipeline executions, cron jobs, memories and prompts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the embedded SQLite backend. All writes go through a single
// connection because SQLite serializes writes at the file level; readers
// may still observe a consistent snapshot under WAL.
type Store struct {
	db *sql.DB
}

// Config controls how the database file is opened.
type Config struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string

	// WAL enables Write-Ahead Logging for concurrent readers.
	WAL bool
}

// Open creates the database file if needed, configures pragmas, and runs
// migrations idempotently.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// churn under concurrent goroutines and lets busy_timeout do its job.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for packages (e.g. action handlers) that need
// to run ad-hoc queries alongside the typed repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("exec %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, stmt)
		}
	}
	return nil
}

// formatTime renders a *time.Time for storage, or nil when absent.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// formatTimeVal renders a non-pointer time.Time for storage.
func formatTimeVal(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a nullable RFC3339Nano column into *time.Time.
func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// parseTimeVal parses a required RFC3339Nano column into time.Time.
func parseTimeVal(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString returns nil if s is empty, otherwise s — so optional text
// columns round-trip as SQL NULL rather than the empty string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt returns nil if n is zero, otherwise n.
func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
