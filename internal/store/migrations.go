// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// schemaStatements are idempotent CREATE TABLE/INDEX statements, safe to
// run on every bootstrap.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS comparison_projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_active INTEGER NOT NULL CHECK (is_active IN (0,1)),
		last_compared_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS lists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER REFERENCES comparison_projects(id),
		slot TEXT NOT NULL DEFAULT 'A',
		name TEXT,
		source TEXT NOT NULL DEFAULT 'drive_kml',
		drive_file_id TEXT,
		drive_file_name TEXT,
		drive_file_mime TEXT,
		drive_file_size INTEGER,
		drive_modified_time TEXT,
		drive_file_checksum TEXT,
		imported_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS places (
		place_id TEXT PRIMARY KEY,
		name TEXT,
		formatted_address TEXT,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		types TEXT NOT NULL DEFAULT '[]',
		last_checked_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS list_places (
		list_id INTEGER NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
		place_id TEXT NOT NULL REFERENCES places(place_id) ON DELETE CASCADE,
		assigned_at TEXT NOT NULL,
		PRIMARY KEY (list_id, place_id)
	)`,
	`CREATE TABLE IF NOT EXISTS raw_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		list_id INTEGER NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
		source_row_hash TEXT NOT NULL,
		raw_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_items_list_hash ON raw_items(list_id, source_row_hash)`,
	`CREATE TABLE IF NOT EXISTS normalization_cache (
		source_row_hash TEXT PRIMARY KEY,
		place_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comparison_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES comparison_projects(id),
		list_a_id INTEGER,
		list_b_id INTEGER,
		overlap_count INTEGER NOT NULL DEFAULT 0,
		only_a_count INTEGER NOT NULL DEFAULT 0,
		only_b_count INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		completed_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_lists_project_slot ON lists(project_id, slot)`,
	`CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(lat, lng)`,
}

// runMigrations applies schemaStatements, then seeds a default project if
// the registry is empty and ensures exactly one project is active.
func runMigrations(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %s: %w", firstLine(stmt), err)
		}
	}
	return seedDefaultProject(db)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// seedDefaultProject inserts "Default project" if no projects exist yet,
// and ensures exactly one project has is_active=1 (falling back to the
// lowest id when none is marked active).
func seedDefaultProject(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM comparison_projects`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		now := nowRFC3339()
		if _, err := db.Exec(
			`INSERT INTO comparison_projects (name, slug, created_at, updated_at, is_active) VALUES (?, ?, ?, ?, 1)`,
			"Default project", "default-project", now, now,
		); err != nil {
			return err
		}
		return nil
	}

	var activeCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM comparison_projects WHERE is_active = 1`).Scan(&activeCount); err != nil {
		return err
	}
	if activeCount == 0 {
		if _, err := db.Exec(`UPDATE comparison_projects SET is_active = 1 WHERE id = (SELECT MIN(id) FROM comparison_projects)`); err != nil {
			return err
		}
	}
	return nil
}
