// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package projects implements the Project Registry: a named,
// multi-project container with exactly one active project at a time,
// slug disambiguation, and run-history bookkeeping.
package projects

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/weixin07/listcompare/internal/apperr"
)

// Project is a single comparison project.
type Project struct {
	ID             int64
	Name           string
	Slug           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsActive       bool
	LastComparedAt *time.Time
}

// RunRecord is a completed comparison run, recorded for audit.
type RunRecord struct {
	ListAID      *int64
	ListBID      *int64
	OverlapCount int
	OnlyACount   int
	OnlyBCount   int
	DurationMS   int64
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Registry exposes CRUD and activation operations over
// comparison_projects, backed directly by *sql.DB.
type Registry struct {
	db *sql.DB
}

// New constructs a Registry.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// List returns every project, most recently created first.
func (r *Registry) List() ([]Project, error) {
	rows, err := r.db.Query(`SELECT id, name, slug, created_at, updated_at, is_active, last_compared_at FROM comparison_projects ORDER BY id DESC`)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// Get fetches a single project by id.
func (r *Registry) Get(id int64) (*Project, error) {
	row := r.db.QueryRow(`SELECT id, name, slug, created_at, updated_at, is_active, last_compared_at FROM comparison_projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new project with a disambiguated slug. If activate
// is true, it becomes the sole active project in the same transaction.
func (r *Registry) Create(name string, activate bool) (*Project, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, apperr.Config(ErrEmptyName.Error())
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer tx.Rollback()

	slug, err := uniqueSlug(tx, trimmed, 0)
	if err != nil {
		return nil, err
	}

	now := nowRFC3339()
	isActive := 0
	if activate {
		if _, err := tx.Exec(`UPDATE comparison_projects SET is_active = 0 WHERE is_active = 1`); err != nil {
			return nil, apperr.Database(err)
		}
		isActive = 1
	}

	res, err := tx.Exec(
		`INSERT INTO comparison_projects (name, slug, created_at, updated_at, is_active) VALUES (?, ?, ?, ?, ?)`,
		trimmed, slug, now, now, isActive,
	)
	if err != nil {
		return nil, apperr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Database(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Database(err)
	}

	return r.Get(id)
}

// Rename trims and applies a new name, regenerating the slug if the
// trimmed name changed.
func (r *Registry) Rename(id int64, name string) (*Project, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, apperr.Config(ErrEmptyName.Error())
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer tx.Rollback()

	slug, err := uniqueSlug(tx, trimmed, id)
	if err != nil {
		return nil, err
	}

	res, err := tx.Exec(
		`UPDATE comparison_projects SET name = ?, slug = ?, updated_at = ? WHERE id = ?`,
		trimmed, slug, nowRFC3339(), id,
	)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Database(err)
	}
	return r.Get(id)
}

// SetActive flips is_active atomically: the previously active project
// (if any) becomes inactive in the same statement sequence.
func (r *Registry) SetActive(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperr.Database(err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM comparison_projects WHERE id = ?`, id).Scan(&exists); err != nil {
		return apperr.Database(err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`UPDATE comparison_projects SET is_active = 0 WHERE is_active = 1`); err != nil {
		return apperr.Database(err)
	}
	if _, err := tx.Exec(`UPDATE comparison_projects SET is_active = 1, updated_at = ? WHERE id = ?`, nowRFC3339(), id); err != nil {
		return apperr.Database(err)
	}
	return tx.Commit()
}

// ActiveID returns the id of the currently active project.
func (r *Registry) ActiveID() (int64, error) {
	var id int64
	err := r.db.QueryRow(`SELECT id FROM comparison_projects WHERE is_active = 1 LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, apperr.Database(err)
	}
	return id, nil
}

// Delete removes a project and cascades to its Lists (and, via the
// schema's ON DELETE CASCADE, that list's RawItems/ListPlaces) and
// ComparisonRuns. This is additive to the original operation set: the
// core never deletes a project on its own, but an explicit operator
// request may.
func (r *Registry) Delete(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperr.Database(err)
	}
	defer tx.Rollback()

	var wasActive int
	if err := tx.QueryRow(`SELECT is_active FROM comparison_projects WHERE id = ?`, id).Scan(&wasActive); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return apperr.Database(err)
	}

	if _, err := tx.Exec(`DELETE FROM comparison_runs WHERE project_id = ?`, id); err != nil {
		return apperr.Database(err)
	}
	if _, err := tx.Exec(`DELETE FROM lists WHERE project_id = ?`, id); err != nil {
		return apperr.Database(err)
	}
	if _, err := tx.Exec(`DELETE FROM comparison_projects WHERE id = ?`, id); err != nil {
		return apperr.Database(err)
	}

	if wasActive == 1 {
		if _, err := tx.Exec(`UPDATE comparison_projects SET is_active = 1 WHERE id = (SELECT MIN(id) FROM comparison_projects)`); err != nil {
			return apperr.Database(err)
		}
	}

	return tx.Commit()
}

// RecordRun appends an audit row to comparison_runs and stamps the
// project's last_compared_at.
func (r *Registry) RecordRun(projectID int64, run RunRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperr.Database(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO comparison_runs (project_id, list_a_id, list_b_id, overlap_count, only_a_count, only_b_count, duration_ms, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, run.ListAID, run.ListBID, run.OverlapCount, run.OnlyACount, run.OnlyBCount, run.DurationMS,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.CompletedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return apperr.Database(err)
	}

	if _, err := tx.Exec(
		`UPDATE comparison_projects SET last_compared_at = ?, updated_at = ? WHERE id = ?`,
		run.CompletedAt.UTC().Format(time.RFC3339Nano), nowRFC3339(), projectID,
	); err != nil {
		return apperr.Database(err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(scanner rowScanner) (Project, error) {
	var p Project
	var createdAt, updatedAt string
	var lastComparedAt sql.NullString
	var isActive int

	if err := scanner.Scan(&p.ID, &p.Name, &p.Slug, &createdAt, &updatedAt, &isActive, &lastComparedAt); err != nil {
		if err == sql.ErrNoRows {
			return Project{}, err
		}
		return Project{}, apperr.Database(err)
	}

	p.IsActive = isActive == 1
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	if lastComparedAt.Valid && lastComparedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastComparedAt.String); err == nil {
			p.LastComparedAt = &t
		}
	}
	return p, nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	lower := strings.ToLower(name)
	dashed := slugInvalid.ReplaceAllString(lower, "-")
	return strings.Trim(dashed, "-")
}

// uniqueSlug computes a disambiguated slug for name within tx, skipping
// excludeID (used by Rename so a project doesn't collide with itself).
func uniqueSlug(tx *sql.Tx, name string, excludeID int64) (string, error) {
	base := slugify(name)
	if base == "" {
		base = "project"
	}

	candidate := base
	for attempt := 1; ; attempt++ {
		var count int
		err := tx.QueryRow(`SELECT COUNT(*) FROM comparison_projects WHERE slug = ? AND id != ?`, candidate, excludeID).Scan(&count)
		if err != nil {
			return "", apperr.Database(err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = base + "-" + itoa(attempt+1)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
