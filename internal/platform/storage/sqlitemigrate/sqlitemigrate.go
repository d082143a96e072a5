// Package sqlitemigrate applies embedded SQL migrations to a sqlite
// database. Files run in lexical order and each applied file is journaled
// by name, so restarting a service never replays a migration.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const journalTable = "schema_migrations"

const upMarker = "-- +migrate Up"
const downMarker = "-- +migrate Down"

// ApplyMigrations runs every pending .sql file under dir in fsys. An empty
// dir means the filesystem root. Each file runs inside its own transaction
// together with its journal entry, so a failed migration stays unrecorded.
func ApplyMigrations(db *sql.DB, fsys fs.FS, dir string) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}

	if err := ensureJournal(db); err != nil {
		return err
	}
	names, err := migrationFiles(fsys, dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := applyFile(db, fsys, dir, name); err != nil {
			return err
		}
	}
	return nil
}

// UpSection returns the SQL between the up and down markers. Files without
// markers run whole.
func UpSection(content string) string {
	up := strings.Index(content, upMarker)
	if up == -1 {
		return content
	}
	body := content[up+len(upMarker):]
	if down := strings.Index(body, downMarker); down != -1 {
		body = body[:down]
	}
	return body
}

func ensureJournal(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)",
		journalTable))
	if err != nil {
		return fmt.Errorf("ensure migration journal: %w", err)
	}
	return nil
}

func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func applyFile(db *sql.DB, fsys fs.FS, dir, name string) error {
	key := name
	if dir != "." {
		key = path.Join(dir, name)
	}

	done, err := journaled(db, key)
	if err != nil {
		return fmt.Errorf("check migration %s: %w", name, err)
	}
	if done {
		return nil
	}

	content, err := fs.ReadFile(fsys, path.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	up := UpSection(string(content))
	if strings.TrimSpace(up) == "" {
		return nil
	}

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.Exec(up); err != nil && !isIdempotentDDL(err) {
		_ = tx.Rollback()
		return fmt.Errorf("exec migration %s: %w", name, err)
	}
	if _, err := tx.Exec(
		fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", journalTable),
		key, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("journal migration %s: %w", name, err)
	}
	return tx.Commit()
}

func journaled(db *sql.DB, name string) (bool, error) {
	var found int
	err := db.QueryRow("SELECT 1 FROM "+journalTable+" WHERE name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// isIdempotentDDL reports whether the error means the DDL already ran, which
// can happen when a journal entry was lost but the schema change stuck.
func isIdempotentDDL(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}
