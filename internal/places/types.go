// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package places implements the Place Normalizer: resolution of a
// parsed row to a canonical Place through a tiered cascade (provided
// place_id, local cache, geographic neighborhood, rate-limited remote
// lookup), with per-process counters and cancellation support.
package places

import "context"

// Place is the canonical record for a geographic entity.
type Place struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Lat              float64
	Lng              float64
	Types            []string
}

// Query is what the remote tier is asked to resolve: a row's title and
// coordinates, used as a last resort once the cache and geographic
// tiers have both missed.
type Query struct {
	Title     string
	Latitude  float64
	Longitude float64
}

// Lookup is the remote geocoding contract. Implementations return
// ErrInvalidKey or ErrQuota to drive the retry classifier; any other
// error is treated as Network or Other depending on whether it
// implements net.Error.
type Lookup interface {
	Resolve(ctx context.Context, q Query) (*Place, error)
}

// Source records which tier produced a row's resolved place_id.
type Source int

const (
	SourceProvided Source = iota
	SourceCache
	SourcePlacesTable
	SourceAPI
)

func (s Source) String() string {
	switch s {
	case SourceProvided:
		return "provided"
	case SourceCache:
		return "cache"
	case SourcePlacesTable:
		return "places_table"
	case SourceAPI:
		return "api"
	default:
		return "unknown"
	}
}

// CacheOutcome records what the cache tier observed for a row.
type CacheOutcome int

const (
	CacheSkipped CacheOutcome = iota
	CacheMiss
	CacheFresh
	CacheStale
)

// Row describes a persisted RawItem as the Normalizer sees it: its hash,
// its already-parsed normalized fields, and whether a place_id was
// already provided by the source KML. Normalize itself does not use this
// type; it decodes each raw_json into a kml.NormalizedRow.
type Row struct {
	ID            int64
	SourceRowHash string
	Title         string
	Description   string
	Latitude      float64
	Longitude     float64
	PlaceID       string
}

// ProgressEvent is emitted after each row.
type ProgressEvent struct {
	Slot      string
	TotalRows int
	Processed int
	Resolved  int
}

// ProgressFunc observes normalization progress.
type ProgressFunc func(ProgressEvent)

// CancelFunc reports whether the caller wants normalization to stop.
type CancelFunc func() bool

// NormalizationStats is the outcome of a single slot's normalization pass.
type NormalizationStats struct {
	TotalRows     int
	CacheHits     int
	CacheMisses   int
	StaleCache    int
	PlacesCalls   int
	Resolved      int
	Unresolved    int
	PlacesCounters Counters
}

// Counters is a snapshot of the process-wide remote-lookup counters.
type Counters struct {
	TotalRequests    int64
	Successes        int64
	QuotaErrors      int64
	InvalidKeyErrors int64
	NetworkErrors    int64
	OtherErrors      int64
}
