// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package ingest implements the Ingestion Orchestrator: it drives a
// single import for a (project, slot) from Drive file selection through
// download, parse, persist, and normalize, emitting staged progress
// events and classifying any failure into a single error event.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weixin07/listcompare/internal/apperr"
	"github.com/weixin07/listcompare/internal/drive"
	"github.com/weixin07/listcompare/internal/kml"
	"github.com/weixin07/listcompare/internal/places"
	"github.com/weixin07/listcompare/internal/store"
)

// Stage names the point an import has reached. Progress events for a
// single import arrive in this order, or end in Error.
type Stage string

const (
	StageDriveFileSelected Stage = "drive_file_selected"
	StageImportStarted     Stage = "import_started"
	StageDownload          Stage = "download"
	StageParse             Stage = "parse"
	StagePersist           Stage = "persist"
	StageNormalize         Stage = "normalize"
	StageComplete          Stage = "complete"
	StageError             Stage = "error"
)

var _ Fetcher = (*drive.Client)(nil)

// Event is a single progress notification for an in-flight import.
// RunID is stable across every event for one Import call, letting a
// caller correlate staged progress and the telemetry it generates.
type Event struct {
	RunID         string
	Stage         Stage
	Slot          string
	BytesReceived int64
	BytesExpected int64
	Summary       string
	Details       []string
}

// ProgressFunc observes import progress.
type ProgressFunc func(Event)

// Recorder is the subset of the Event Sink the Orchestrator uses.
type Recorder interface {
	Record(name string, payload map[string]any)
}

// FileSelection identifies the Drive file chosen for a (project, slot).
type FileSelection struct {
	ProjectID int64
	Slot      string
	FileID    string
}

// Fetcher is the subset of the File Fetcher the Orchestrator needs.
// *drive.Client satisfies this; tests supply a stub.
type Fetcher interface {
	GetMetadata(ctx context.Context, fileID string) (*drive.Metadata, error)
	Download(ctx context.Context, fileID, expectedMime string, expectedSize *int64, expectedChecksum string, progressCB drive.ProgressFunc) (*drive.DownloadResult, bool, error)
}

// Result is the outcome of a completed import.
type Result struct {
	RunID              string
	ListID             int64
	RowCount           int
	RejectedCount      int
	Checksum           string
	NormalizationStats *places.NormalizationStats
}

// Orchestrator drives imports. Only one normalization runs at a time
// process-wide; a package-level mutex taken by places.Normalizer.Normalize
// enforces that —
// the Orchestrator itself imposes no additional serialization beyond
// the transaction boundaries described below.
type Orchestrator struct {
	store      *store.Store
	drive      Fetcher
	normalizer *places.Normalizer
	recorder   Recorder
}

// Config configures an Orchestrator.
type Config struct {
	Store      *store.Store
	Drive      Fetcher
	Normalizer *places.Normalizer
	Recorder   Recorder
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		store:      cfg.Store,
		drive:      cfg.Drive,
		normalizer: cfg.Normalizer,
		recorder:   cfg.Recorder,
	}
}

// Import drives a single import for sel, emitting progress via
// progress. Any failure is mapped to a single error event and recorded
// as import_failed; partial persistence is bounded by the persist
// transaction, so either all rows for the list exist or none do.
func (o *Orchestrator) Import(ctx context.Context, sel FileSelection, progress ProgressFunc, cancel places.CancelFunc) (*Result, error) {
	runID := uuid.New().String()
	emit := func(ev Event) {
		ev.RunID = runID
		if progress != nil {
			progress(ev)
		}
	}

	emit(Event{Stage: StageDriveFileSelected, Slot: sel.Slot})
	o.record("import_started", map[string]any{"run_id": runID, "project_id": sel.ProjectID, "slot": sel.Slot, "file_id": sel.FileID})
	emit(Event{Stage: StageImportStarted, Slot: sel.Slot})

	result, err := o.runImport(ctx, sel, emit)
	if err != nil {
		summary := "operation failed"
		var details []string
		var appErr *apperr.Error
		if apperr.As(err, &appErr) {
			summary = appErr.Summary()
			details = appErr.AllDetails()
		}
		emit(Event{Stage: StageError, Slot: sel.Slot, Summary: summary, Details: details})
		o.record("import_failed", map[string]any{
			"run_id":     runID,
			"project_id": sel.ProjectID,
			"slot":       sel.Slot,
			"summary":    summary,
		})
		return nil, err
	}

	emit(Event{
		Stage:   StageComplete,
		Slot:    sel.Slot,
		Summary: fmt.Sprintf("imported %d rows (%d rejected)", result.RowCount, result.RejectedCount),
	})
	o.record("import_completed", map[string]any{
		"run_id":          runID,
		"project_id":      sel.ProjectID,
		"slot":            sel.Slot,
		"list_id":         result.ListID,
		"row_count":       result.RowCount,
		"rejected_count":  result.RejectedCount,
		"checksum":        result.Checksum,
		"normalize_stats": result.NormalizationStats,
	})
	result.RunID = runID
	return result, nil
}

func (o *Orchestrator) runImport(ctx context.Context, sel FileSelection, emit ProgressFunc) (*Result, error) {
	meta, err := o.drive.GetMetadata(ctx, sel.FileID)
	if err != nil {
		return nil, err
	}

	downloadResult, mimeWarning, err := o.drive.Download(ctx, sel.FileID, meta.MimeType, &meta.Size, meta.MD5Checksum,
		func(received, total int64) {
			emit(Event{Stage: StageDownload, Slot: sel.Slot, BytesReceived: received, BytesExpected: total})
		},
	)
	if err != nil {
		return nil, err
	}
	if mimeWarning {
		o.record("drive_mime_mismatch", map[string]any{"file_id": sel.FileID, "expected": meta.MimeType})
	}

	parsed, err := kml.Parse(downloadResult.Bytes)
	if err != nil {
		return nil, err
	}
	emit(Event{Stage: StageParse, Slot: sel.Slot, Summary: fmt.Sprintf("%d rows parsed", len(parsed.Rows))})

	if len(parsed.Rejected) > 0 {
		examples := make([]string, 0, 3)
		for i, r := range parsed.Rejected {
			if i >= 3 {
				break
			}
			examples = append(examples, fmt.Sprintf("%s: %s", r.Name, r.Reason))
		}
		o.record("kml_rows_rejected", map[string]any{
			"count":    len(parsed.Rejected),
			"examples": examples,
		})
	}

	listID, err := o.persist(sel, meta, downloadResult.ChecksumMD5, parsed)
	if err != nil {
		return nil, err
	}
	emit(Event{Stage: StagePersist, Slot: sel.Slot, Summary: fmt.Sprintf("persisted list %d", listID)})

	stats, err := o.normalizer.Normalize(ctx, listID, sel.Slot, func(pe places.ProgressEvent) {
		emit(Event{
			Stage:         StageNormalize,
			Slot:          sel.Slot,
			BytesReceived: int64(pe.Processed),
			BytesExpected: int64(pe.TotalRows),
			Summary:       fmt.Sprintf("%d/%d resolved", pe.Resolved, pe.TotalRows),
		})
	}, cancel)
	if err != nil {
		return nil, err
	}

	return &Result{
		ListID:             listID,
		RowCount:           len(parsed.Rows),
		RejectedCount:      len(parsed.Rejected),
		Checksum:           downloadResult.ChecksumMD5,
		NormalizationStats: stats,
	}, nil
}

// persist upserts the List row, clears its RawItems, and inserts every
// parsed row, all within one transaction: either the whole list's rows
// exist afterward, or none do.
func (o *Orchestrator) persist(sel FileSelection, meta *drive.Metadata, checksum string, parsed *kml.ParseResult) (int64, error) {
	db := o.store.DB()
	tx, err := db.Begin()
	if err != nil {
		return 0, apperr.Database(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	modified := meta.ModifiedTime.UTC().Format(time.RFC3339Nano)

	listID, err := upsertList(tx, sel, meta, checksum, modified, now)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`DELETE FROM raw_items WHERE list_id = ?`, listID); err != nil {
		return 0, apperr.Database(err)
	}

	for _, row := range parsed.Rows {
		if _, err := tx.Exec(
			`INSERT INTO raw_items (list_id, source_row_hash, raw_json, created_at) VALUES (?, ?, ?, ?)`,
			listID, row.SourceRowHash, row.RawJSON, now,
		); err != nil {
			return 0, apperr.Database(err)
		}
	}

	if _, err := tx.Exec(`UPDATE lists SET imported_at = ? WHERE id = ?`, now, listID); err != nil {
		return 0, apperr.Database(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Database(err)
	}
	return listID, nil
}

func upsertList(tx *sql.Tx, sel FileSelection, meta *drive.Metadata, checksum, modified, now string) (int64, error) {
	var listID int64
	err := tx.QueryRow(`SELECT id FROM lists WHERE project_id = ? AND slot = ?`, sel.ProjectID, sel.Slot).Scan(&listID)
	if err == nil {
		_, err := tx.Exec(
			`UPDATE lists SET name = ?, source = 'drive_kml', drive_file_id = ?, drive_file_name = ?,
			 drive_file_mime = ?, drive_file_size = ?, drive_modified_time = ?, drive_file_checksum = ?
			 WHERE id = ?`,
			meta.Name, meta.FileID, meta.Name, meta.MimeType, meta.Size, modified, checksum, listID,
		)
		if err != nil {
			return 0, apperr.Database(err)
		}
		return listID, nil
	}
	if err != sql.ErrNoRows {
		return 0, apperr.Database(err)
	}

	res, err := tx.Exec(
		`INSERT INTO lists (project_id, slot, name, source, drive_file_id, drive_file_name, drive_file_mime,
		 drive_file_size, drive_modified_time, drive_file_checksum, imported_at)
		 VALUES (?, ?, ?, 'drive_kml', ?, ?, ?, ?, ?, ?, ?)`,
		sel.ProjectID, sel.Slot, meta.Name, meta.FileID, meta.Name, meta.MimeType, meta.Size, modified, checksum, now,
	)
	if err != nil {
		return 0, apperr.Database(err)
	}
	return res.LastInsertId()
}

func (o *Orchestrator) record(name string, payload map[string]any) {
	if o.recorder != nil {
		o.recorder.Record(name, payload)
	}
}
