// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/weixin07/listcompare/internal/apperr"
	"github.com/weixin07/listcompare/internal/kml"
	"github.com/weixin07/listcompare/internal/store"
)

// DefaultTTL is the cache freshness window: an entry older than this is
// stale and must be re-resolved through the remote tier.
const DefaultTTL = 30 * 24 * time.Hour

// Recorder is the subset of the Event Sink the Normalizer uses.
type Recorder interface {
	Record(name string, payload map[string]any)
}

// normalizeMu serializes Normalize calls process-wide, across every
// Normalizer value, so only one normalization runs at a time.
var normalizeMu sync.Mutex

// Normalizer drives the per-row resolution cascade for a single list.
type Normalizer struct {
	store    *store.Store
	lookup   Lookup
	limiter  *RateLimiter
	ttl      time.Duration
	recorder Recorder
}

// Config configures a Normalizer.
type Config struct {
	Store    *store.Store
	Lookup   Lookup
	QPS      int
	TTL      time.Duration
	Recorder Recorder
}

// New constructs a Normalizer. A zero cfg.TTL disables cache expiry
// entirely (every cache entry is treated as fresh) rather than falling
// back to DefaultTTL — callers that want the default must pass it
// explicitly.
func New(cfg Config) *Normalizer {
	ttl := cfg.TTL
	if ttl < 0 {
		ttl = DefaultTTL
	}
	return &Normalizer{
		store:    cfg.Store,
		lookup:   cfg.Lookup,
		limiter:  NewRateLimiter(cfg.QPS),
		ttl:      ttl,
		recorder: cfg.Recorder,
	}
}

type dbRow struct {
	id   int64
	hash string
	row  kml.NormalizedRow
}

// Normalize resolves every RawItem belonging to listID, in insertion
// order, rebuilding that list's ListPlace assignments from scratch.
func (n *Normalizer) Normalize(ctx context.Context, listID int64, slot string, progress ProgressFunc, cancel CancelFunc) (*NormalizationStats, error) {
	normalizeMu.Lock()
	defer normalizeMu.Unlock()

	db := n.store.DB()

	rows, err := n.loadRawItems(db, listID)
	if err != nil {
		return nil, err
	}

	if err := clearListPlaces(db, listID); err != nil {
		return nil, err
	}

	stats := &NormalizationStats{TotalRows: len(rows)}
	now := time.Now().UTC()

	for i, r := range rows {
		if cancel != nil && cancel() {
			stats.Unresolved += len(rows) - i
			break
		}

		resolved, err := n.resolveRow(ctx, db, listID, r, now)
		if err != nil {
			stats.Unresolved++
		} else {
			stats.Resolved++
			switch resolved.source {
			case SourceCache:
				stats.CacheHits++
			case SourceProvided:
				// provided place_ids never touch the cache tier
			default:
				stats.CacheMisses++
			}
			if resolved.source == SourceAPI {
				stats.PlacesCalls++
			}
			if resolved.wasStale {
				stats.StaleCache++
			}
		}

		if progress != nil {
			progress(ProgressEvent{Slot: slot, TotalRows: len(rows), Processed: i + 1, Resolved: stats.Resolved})
		}
	}

	stats.PlacesCounters = snapshotCounters()
	return stats, nil
}

type resolution struct {
	source   Source
	wasStale bool
}

func (n *Normalizer) resolveRow(ctx context.Context, db *sql.DB, listID int64, r dbRow, now time.Time) (*resolution, error) {
	row := r.row

	// Tier 1: provided place_id.
	if row.PlaceID != "" {
		place := Place{PlaceID: row.PlaceID, Lat: row.Latitude, Lng: row.Longitude}
		if existing, err := loadPlace(db, row.PlaceID); err == nil && existing != nil {
			place = *existing
		}
		if err := persistAssignment(db, listID, r.hash, place, row.Title, row.Description, now); err != nil {
			return nil, err
		}
		return &resolution{source: SourceProvided}, nil
	}

	// Tier 2: cache.
	cached, err := lookupCache(db, r.hash, n.ttl, now)
	if err != nil {
		return nil, err
	}
	wasStale := cached != nil && cached.stale
	if cached != nil && cached.fresh {
		place, err := loadPlace(db, cached.placeID)
		if err != nil {
			return nil, err
		}
		if place == nil {
			place = &Place{PlaceID: cached.placeID, Lat: row.Latitude, Lng: row.Longitude}
		}
		if err := persistAssignment(db, listID, r.hash, *place, row.Title, row.Description, now); err != nil {
			return nil, err
		}
		return &resolution{source: SourceCache}, nil
	}

	// Tier 3: geographic neighborhood — skipped when the cache tier
	// already observed a stale entry for this hash.
	if !wasStale {
		if placeID, found, err := lookupGeographic(db, row.Latitude, row.Longitude); err != nil {
			return nil, err
		} else if found {
			place, err := loadPlace(db, placeID)
			if err != nil {
				return nil, err
			}
			if place == nil {
				place = &Place{PlaceID: placeID, Lat: row.Latitude, Lng: row.Longitude}
			}
			if err := persistAssignment(db, listID, r.hash, *place, row.Title, row.Description, now); err != nil {
				return nil, err
			}
			return &resolution{source: SourcePlacesTable, wasStale: wasStale}, nil
		}
	}

	// Tier 4: remote lookup, rate-limited and retried.
	if n.lookup == nil {
		return nil, apperr.Config("no remote place lookup configured")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	place, err := resolveWithRetry(ctx, n.lookup, Query{Title: row.Title, Latitude: row.Latitude, Longitude: row.Longitude})
	if err != nil {
		return nil, err
	}
	if place.Lat == 0 && place.Lng == 0 {
		place.Lat, place.Lng = row.Latitude, row.Longitude
	}
	if err := persistAssignment(db, listID, r.hash, *place, row.Title, row.Description, now); err != nil {
		return nil, err
	}
	return &resolution{source: SourceAPI, wasStale: wasStale}, nil
}

func (n *Normalizer) loadRawItems(db *sql.DB, listID int64) ([]dbRow, error) {
	sqlRows, err := db.Query(`SELECT id, source_row_hash, raw_json FROM raw_items WHERE list_id = ? ORDER BY id ASC`, listID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer sqlRows.Close()

	var out []dbRow
	for sqlRows.Next() {
		var r dbRow
		var rawJSON string
		if err := sqlRows.Scan(&r.id, &r.hash, &rawJSON); err != nil {
			return nil, apperr.Database(err)
		}
		if err := json.Unmarshal([]byte(rawJSON), &r.row); err != nil {
			return nil, apperr.JSON(err)
		}
		out = append(out, r)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}
