// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package projects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weixin07/listcompare/internal/store"
	"github.com/weixin07/listcompare/internal/vault"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	boot, err := store.Bootstrap(dir, "projects-test.db", v)
	require.NoError(t, err)
	t.Cleanup(func() { boot.Store.Close() })
	return boot.Store
}

func TestCreateAssignsSlugAndDisambiguates(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	p1, err := r.Create("Coffee Shops", false)
	require.NoError(t, err)
	assert.Equal(t, "coffee-shops", p1.Slug)

	p2, err := r.Create("Coffee Shops!", false)
	require.NoError(t, err)
	assert.Equal(t, "coffee-shops-2", p2.Slug)

	p3, err := r.Create("coffee shops", false)
	require.NoError(t, err)
	assert.Equal(t, "coffee-shops-3", p3.Slug)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	_, err := r.Create("   ", false)
	assert.Error(t, err)
}

func TestSetActiveIsExclusive(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	p1, err := r.Create("Project One", true)
	require.NoError(t, err)
	p2, err := r.Create("Project Two", false)
	require.NoError(t, err)

	require.NoError(t, r.SetActive(p2.ID))

	got1, err := r.Get(p1.ID)
	require.NoError(t, err)
	assert.False(t, got1.IsActive)

	got2, err := r.Get(p2.ID)
	require.NoError(t, err)
	assert.True(t, got2.IsActive)

	activeID, err := r.ActiveID()
	require.NoError(t, err)
	assert.Equal(t, p2.ID, activeID)
}

func TestSetActiveUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	err := r.SetActive(99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameRegeneratesSlug(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	p, err := r.Create("Old Name", false)
	require.NoError(t, err)

	updated, err := r.Rename(p.ID, "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, "new-name", updated.Slug)
}

func TestRenameUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	_, err := r.Rename(99999, "Whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascadesListsAndRuns(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	p, err := r.Create("Doomed Project", true)
	require.NoError(t, err)

	_, err = s.DB().Exec(
		`INSERT INTO lists (project_id, slot, name, source, imported_at) VALUES (?, 'A', 'list-a', 'drive_kml', ?)`,
		p.ID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	require.NoError(t, err)

	require.NoError(t, r.RecordRun(p.ID, RunRecord{
		StartedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
	}))

	require.NoError(t, r.Delete(p.ID))

	_, err = r.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var listCount, runCount int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM lists WHERE project_id = ?`, p.ID).Scan(&listCount))
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM comparison_runs WHERE project_id = ?`, p.ID).Scan(&runCount))
	assert.Equal(t, 0, listCount)
	assert.Equal(t, 0, runCount)
}

func TestDeleteActiveProjectPromotesAnother(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	p1, err := r.Create("First", true)
	require.NoError(t, err)
	_, err = r.Create("Second", false)
	require.NoError(t, err)

	require.NoError(t, r.Delete(p1.ID))

	_, err = r.ActiveID()
	require.NoError(t, err)
}

func TestRecordRunStampsLastComparedAt(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	p, err := r.Create("Tracked", false)
	require.NoError(t, err)

	completed := time.Now().UTC()
	require.NoError(t, r.RecordRun(p.ID, RunRecord{
		OverlapCount: 3,
		OnlyACount:   1,
		OnlyBCount:   2,
		DurationMS:   42,
		StartedAt:    completed.Add(-time.Second),
		CompletedAt:  completed,
	}))

	got, err := r.Get(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastComparedAt)
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	r := New(s.DB())

	_, err := r.Create("First", false)
	require.NoError(t, err)
	second, err := r.Create("Second", false)
	require.NoError(t, err)

	all, err := r.List()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, second.ID, all[0].ID)
}
