// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weixin07/listcompare/internal/kml"
	"github.com/weixin07/listcompare/internal/store"
	"github.com/weixin07/listcompare/internal/vault"
)

type fakeLookup struct {
	calls int
	err   error
	place Place
}

func (f *fakeLookup) Resolve(ctx context.Context, q Query) (*Place, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := f.place
	if p.PlaceID == "" {
		p.PlaceID = "synthetic-" + q.Title
	}
	return &p, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	boot, err := store.Bootstrap(dir, "places-test.db", v)
	require.NoError(t, err)
	t.Cleanup(func() { boot.Store.Close() })
	return boot.Store
}

func insertList(t *testing.T, s *store.Store, projectID int64) int64 {
	t.Helper()
	res, err := s.DB().Exec(
		`INSERT INTO lists (project_id, slot, name, source) VALUES (?, 'A', 'test list', 'drive_kml')`,
		projectID,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertRawItem(t *testing.T, s *store.Store, listID int64, row kml.NormalizedRow) string {
	t.Helper()
	hash, err := row.SourceHash()
	require.NoError(t, err)
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	_, err = s.DB().Exec(
		`INSERT INTO raw_items (list_id, source_row_hash, raw_json, created_at) VALUES (?, ?, ?, ?)`,
		listID, hash, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	require.NoError(t, err)
	return hash
}

func TestNormalizeResolvesProvidedPlaceID(t *testing.T) {
	s := newTestStore(t)
	listID := insertList(t, s, 1)
	insertRawItem(t, s, listID, kml.NormalizedRow{Title: "Cafe", Latitude: 1, Longitude: 2, PlaceID: "ChIJprovided"})

	n := New(Config{Store: s, Lookup: &fakeLookup{}})
	stats, err := n.Normalize(context.Background(), listID, "A", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 0, stats.Unresolved)

	var placeID string
	require.NoError(t, s.DB().QueryRow(`SELECT place_id FROM list_places WHERE list_id = ?`, listID).Scan(&placeID))
	assert.Equal(t, "ChIJprovided", placeID)
}

func TestNormalizeFallsBackToRemoteLookup(t *testing.T) {
	s := newTestStore(t)
	listID := insertList(t, s, 1)
	insertRawItem(t, s, listID, kml.NormalizedRow{Title: "New Spot", Latitude: 10, Longitude: 20})

	lookup := &fakeLookup{place: Place{PlaceID: "ChIJremote", Name: "New Spot"}}
	n := New(Config{Store: s, Lookup: lookup, QPS: 10})
	stats, err := n.Normalize(context.Background(), listID, "A", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.PlacesCalls)
	assert.Equal(t, 1, lookup.calls)
}

func TestNormalizeUsesCacheOnSecondPass(t *testing.T) {
	s := newTestStore(t)
	listID := insertList(t, s, 1)
	insertRawItem(t, s, listID, kml.NormalizedRow{Title: "Repeat Visit", Latitude: 5, Longitude: 6})

	lookup := &fakeLookup{place: Place{PlaceID: "ChIJcached", Name: "Repeat Visit"}}
	n := New(Config{Store: s, Lookup: lookup, QPS: 10})

	_, err := n.Normalize(context.Background(), listID, "A", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)

	stats, err := n.Normalize(context.Background(), listID, "A", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls, "second pass should hit cache, not call remote again")
	assert.Equal(t, 1, stats.CacheHits)
}

func TestNormalizeHonorsCancelFlag(t *testing.T) {
	s := newTestStore(t)
	listID := insertList(t, s, 1)
	insertRawItem(t, s, listID, kml.NormalizedRow{Title: "A", Latitude: 1, Longitude: 1})
	insertRawItem(t, s, listID, kml.NormalizedRow{Title: "B", Latitude: 2, Longitude: 2})

	n := New(Config{Store: s, Lookup: &fakeLookup{}})
	cancelled := true
	stats, err := n.Normalize(context.Background(), listID, "A", nil, func() bool { return cancelled })
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Unresolved)
	assert.Equal(t, 0, stats.Resolved)
}

func TestNormalizeReportsProgress(t *testing.T) {
	s := newTestStore(t)
	listID := insertList(t, s, 1)
	insertRawItem(t, s, listID, kml.NormalizedRow{Title: "A", Latitude: 1, Longitude: 1, PlaceID: "p1"})

	var events []ProgressEvent
	n := New(Config{Store: s, Lookup: &fakeLookup{}})
	_, err := n.Normalize(context.Background(), listID, "A", func(e ProgressEvent) { events = append(events, e) }, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Processed)
	assert.Equal(t, 1, events[0].Resolved)
}
