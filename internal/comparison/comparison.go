// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package comparison implements the Comparison Engine: paginated
// set-algebra queries (overlap, only-A, only-B) over a project's two
// lists, plus the pending-row counts that surface unnormalized rows.
package comparison

import (
	"database/sql"
	"time"

	"github.com/weixin07/listcompare/internal/apperr"
)

const (
	defaultPageSize = 200
	maxPageSize     = 1000
	minPageSize     = 1
)

// PlaceRow is a single resolved place surfaced in a comparison segment.
type PlaceRow struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Lat              float64
	Lng              float64
}

// Page is one page of a segment.
type Page struct {
	Rows     []PlaceRow
	Total    int
	Page     int
	PageSize int
}

// Stats summarizes a project's comparison counts.
type Stats struct {
	OverlapCount int
	OnlyACount   int
	OnlyBCount   int
	PendingA     int
	PendingB     int
}

// ListSummary is the minimal List projection a snapshot reports.
type ListSummary struct {
	ID            int64
	Slot          string
	Name          string
	DriveFileName string
	ImportedAt    *time.Time
}

// Snapshot is the full outcome of comparing a project's two lists.
type Snapshot struct {
	ProjectID  int64
	Stats      Stats
	Lists      []ListSummary
	OverlapPage Page
	OnlyAPage  Page
	OnlyBPage  Page
}

// Pagination requests a specific page of each segment; Page defaults to
// 1 and PageSize defaults to 200 when zero, and PageSize is clamped to
// [1, 1000].
type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) normalize() (page, pageSize int) {
	page = p.Page
	if page < 1 {
		page = 1
	}
	pageSize = p.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// Engine computes comparison snapshots against a *sql.DB.
type Engine struct {
	db *sql.DB
}

// New constructs an Engine.
func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Snapshot computes the full comparison for projectID.
func (e *Engine) Snapshot(projectID int64, pagination Pagination) (*Snapshot, error) {
	lists, err := e.listSummaries(projectID)
	if err != nil {
		return nil, err
	}

	var listA, listB *int64
	for _, l := range lists {
		l := l
		switch l.Slot {
		case "A":
			listA = &l.ID
		case "B":
			listB = &l.ID
		}
	}

	snapshot := &Snapshot{ProjectID: projectID, Lists: lists}

	page, pageSize := pagination.normalize()

	if listA == nil || listB == nil {
		// A project missing either list yields empty segments, never an error.
		snapshot.OverlapPage = Page{Page: page, PageSize: pageSize}
		snapshot.OnlyAPage = Page{Page: page, PageSize: pageSize}
		snapshot.OnlyBPage = Page{Page: page, PageSize: pageSize}
		if listA != nil {
			pending, err := e.pendingCount(*listA)
			if err != nil {
				return nil, err
			}
			snapshot.Stats.PendingA = pending
		}
		if listB != nil {
			pending, err := e.pendingCount(*listB)
			if err != nil {
				return nil, err
			}
			snapshot.Stats.PendingB = pending
		}
		return snapshot, nil
	}

	overlap, err := e.segment(segmentOverlap, *listA, *listB, page, pageSize)
	if err != nil {
		return nil, err
	}
	onlyA, err := e.segment(segmentOnlyA, *listA, *listB, page, pageSize)
	if err != nil {
		return nil, err
	}
	onlyB, err := e.segment(segmentOnlyB, *listB, *listA, page, pageSize)
	if err != nil {
		return nil, err
	}

	pendingA, err := e.pendingCount(*listA)
	if err != nil {
		return nil, err
	}
	pendingB, err := e.pendingCount(*listB)
	if err != nil {
		return nil, err
	}

	snapshot.OverlapPage = overlap
	snapshot.OnlyAPage = onlyA
	snapshot.OnlyBPage = onlyB
	snapshot.Stats = Stats{
		OverlapCount: overlap.Total,
		OnlyACount:   onlyA.Total,
		OnlyBCount:   onlyB.Total,
		PendingA:     pendingA,
		PendingB:     pendingB,
	}
	return snapshot, nil
}

type segmentKind int

const (
	segmentOverlap segmentKind = iota
	segmentOnlyA
	segmentOnlyB
)

// segment runs one of the three set-algebra queries. For segmentOverlap
// and segmentOnlyA, listID is slot A's id and otherListID is slot B's;
// for segmentOnlyB the caller passes them swapped so the same "in
// primary, not in other" shape expresses all three segments.
func (e *Engine) segment(kind segmentKind, listID, otherListID int64, page, pageSize int) (Page, error) {
	var whereClause string
	switch kind {
	case segmentOverlap:
		whereClause = `EXISTS (SELECT 1 FROM list_places o WHERE o.list_id = ? AND o.place_id = p.place_id)`
	case segmentOnlyA, segmentOnlyB:
		whereClause = `NOT EXISTS (SELECT 1 FROM list_places o WHERE o.list_id = ? AND o.place_id = p.place_id)`
	}

	countQuery := `
		SELECT COUNT(*)
		FROM list_places lp
		JOIN places p ON p.place_id = lp.place_id
		WHERE lp.list_id = ? AND ` + whereClause

	var total int
	if err := e.db.QueryRow(countQuery, listID, otherListID).Scan(&total); err != nil {
		return Page{}, apperr.Database(err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	offset := (page - 1) * pageSize

	rowsQuery := `
		SELECT p.place_id, p.name, p.formatted_address, p.lat, p.lng
		FROM list_places lp
		JOIN places p ON p.place_id = lp.place_id
		WHERE lp.list_id = ? AND ` + whereClause + `
		ORDER BY p.name COLLATE NOCASE ASC
		LIMIT ? OFFSET ?`

	rows, err := e.db.Query(rowsQuery, listID, otherListID, pageSize, offset)
	if err != nil {
		return Page{}, apperr.Database(err)
	}
	defer rows.Close()

	var out []PlaceRow
	for rows.Next() {
		var r PlaceRow
		if err := rows.Scan(&r.PlaceID, &r.Name, &r.FormattedAddress, &r.Lat, &r.Lng); err != nil {
			return Page{}, apperr.Database(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, apperr.Database(err)
	}

	return Page{Rows: out, Total: total, Page: page, PageSize: pageSize}, nil
}

func (e *Engine) pendingCount(listID int64) (int, error) {
	var count int
	err := e.db.QueryRow(
		`SELECT COUNT(*) FROM raw_items ri
		 WHERE ri.list_id = ? AND NOT EXISTS (
			SELECT 1 FROM normalization_cache nc WHERE nc.source_row_hash = ri.source_row_hash
		 )`,
		listID,
	).Scan(&count)
	if err != nil {
		return 0, apperr.Database(err)
	}
	return count, nil
}

func (e *Engine) listSummaries(projectID int64) ([]ListSummary, error) {
	rows, err := e.db.Query(
		`SELECT id, slot, COALESCE(name, ''), COALESCE(drive_file_name, ''), imported_at
		 FROM lists WHERE project_id = ?`,
		projectID,
	)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []ListSummary
	for rows.Next() {
		var s ListSummary
		var importedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.Slot, &s.Name, &s.DriveFileName, &importedAt); err != nil {
			return nil, apperr.Database(err)
		}
		if importedAt.Valid && importedAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, importedAt.String); err == nil {
				s.ImportedAt = &t
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}
