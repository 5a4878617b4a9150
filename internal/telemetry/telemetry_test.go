// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T, maxBytes int64, maxFiles int) (*Sink, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry-buffer.jsonl")
	return New(Config{Path: path, BatchSize: 1, MaxFileBytes: maxBytes, MaxFileCount: maxFiles, Enabled: true}), path
}

func TestRecordIsNoOpWhenDisabled(t *testing.T) {
	sink, _ := newTestSink(t, 1<<20, 5)
	sink.SetEnabled(false)
	sink.Record("ignored", nil)
	assert.Equal(t, 0, sink.QueueDepth())
}

func TestWritesEventsToDisk(t *testing.T) {
	sink, path := newTestSink(t, 1<<20, 5)
	sink.Record("app_start", map[string]any{"ok": true})
	require.NoError(t, sink.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "app_start")
}

func TestRotatesWhenExceedingCapacity(t *testing.T) {
	sink, path := newTestSink(t, 200, 3)
	for i := 0; i < 20; i++ {
		sink.Record("raw_row_hashed", map[string]any{"i": i, "padding": strings.Repeat("x", 20)})
		require.NoError(t, sink.Flush())
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(200))

	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	rotated := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "telemetry-buffer-") {
			rotated++
		}
	}
	assert.LessOrEqual(t, rotated, 2) // maxFileCount-1
}

func TestFailedWriteReturnsEventsToQueue(t *testing.T) {
	sink, path := newTestSink(t, 1<<20, 5)

	// Point the sink at a path whose parent doesn't exist, forcing a
	// write failure, then verify the event is still queued.
	sink.path = filepath.Join(path, "nested", "unreachable.jsonl")
	sink.Record("will_fail", nil)
	err := sink.Flush()
	assert.Error(t, err)
	assert.Equal(t, 1, sink.QueueDepth())
}
