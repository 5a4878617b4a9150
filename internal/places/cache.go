// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/weixin07/listcompare/internal/apperr"
)

// geoEpsilon is the lat/lng tolerance for the geographic neighborhood
// cache tier.
const geoEpsilon = 0.00001

// cacheLookup is the outcome of consulting normalization_cache.
type cacheLookup struct {
	placeID string
	fresh   bool
	stale   bool
}

func lookupCache(db *sql.DB, hash string, ttl time.Duration, now time.Time) (*cacheLookup, error) {
	var placeID, createdAtRaw string
	err := db.QueryRow(`SELECT place_id, created_at FROM normalization_cache WHERE source_row_hash = ?`, hash).
		Scan(&placeID, &createdAtRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database(err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return nil, apperr.Database(err)
	}

	// A zero TTL disables expiry entirely: every entry is fresh.
	if ttl == 0 || now.Sub(createdAt) <= ttl {
		return &cacheLookup{placeID: placeID, fresh: true}, nil
	}
	return &cacheLookup{placeID: placeID, stale: true}, nil
}

func lookupGeographic(db *sql.DB, lat, lng float64) (string, bool, error) {
	var placeID string
	err := db.QueryRow(
		`SELECT place_id FROM places WHERE ABS(lat - ?) <= ? AND ABS(lng - ?) <= ? LIMIT 1`,
		lat, geoEpsilon, lng, geoEpsilon,
	).Scan(&placeID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Database(err)
	}
	return placeID, true, nil
}

func loadPlace(db *sql.DB, placeID string) (*Place, error) {
	var p Place
	var typesRaw string
	err := db.QueryRow(
		`SELECT place_id, name, formatted_address, lat, lng, types FROM places WHERE place_id = ?`, placeID,
	).Scan(&p.PlaceID, &p.Name, &p.FormattedAddress, &p.Lat, &p.Lng, &typesRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	if typesRaw != "" {
		_ = json.Unmarshal([]byte(typesRaw), &p.Types)
	}
	return &p, nil
}

// persistAssignment upserts Place, the cache entry, and the ListPlace
// assignment for one row, inside a single transaction.
func persistAssignment(db *sql.DB, listID int64, hash string, place Place, fallbackName, fallbackAddress string, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return apperr.Database(err)
	}
	defer tx.Rollback()

	name := place.Name
	if name == "" {
		name = fallbackName
	}
	address := place.FormattedAddress
	if address == "" {
		address = fallbackAddress
	}
	typesJSON, err := json.Marshal(place.Types)
	if err != nil {
		return apperr.JSON(err)
	}

	nowStr := now.UTC().Format(time.RFC3339Nano)

	if _, err := tx.Exec(
		`INSERT INTO places (place_id, name, formatted_address, lat, lng, types, last_checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(place_id) DO UPDATE SET
			name = excluded.name,
			formatted_address = COALESCE(NULLIF(excluded.formatted_address, ''), places.formatted_address),
			lat = excluded.lat,
			lng = excluded.lng,
			types = excluded.types,
			last_checked_at = excluded.last_checked_at`,
		place.PlaceID, name, address, place.Lat, place.Lng, string(typesJSON), nowStr,
	); err != nil {
		return apperr.Database(err)
	}

	if _, err := tx.Exec(
		`INSERT INTO normalization_cache (source_row_hash, place_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(source_row_hash) DO UPDATE SET place_id = excluded.place_id, created_at = excluded.created_at`,
		hash, place.PlaceID, nowStr,
	); err != nil {
		return apperr.Database(err)
	}

	if _, err := tx.Exec(
		`INSERT INTO list_places (list_id, place_id, assigned_at) VALUES (?, ?, ?)
		 ON CONFLICT(list_id, place_id) DO UPDATE SET assigned_at = excluded.assigned_at`,
		listID, place.PlaceID, nowStr,
	); err != nil {
		return apperr.Database(err)
	}

	return tx.Commit()
}

func clearListPlaces(db *sql.DB, listID int64) error {
	if _, err := db.Exec(`DELETE FROM list_places WHERE list_id = ?`, listID); err != nil {
		return apperr.Database(err)
	}
	return nil
}
