// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestLevelOrdering(t *testing.T) {
	assert.Less(t, int(LevelDebug), int(LevelInfo))
	assert.Less(t, int(LevelInfo), int(LevelWarn))
	assert.Less(t, int(LevelWarn), int(LevelError))
}

func TestNewDefaultConfig(t *testing.T) {
	logger := New(Config{})
	require.NotNil(t, logger)
	require.NotNil(t, logger.slog)
	defer logger.Close()
}

func TestDefaultIsInfoLevel(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	defer logger.Close()
	assert.True(t, logger.slog.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.slog.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewWithLogDirCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "test", Quiet: true})
	defer logger.Close()

	require.NotNil(t, logger.file)
	logger.Info("hello", "key", "value")

	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")
	assert.Contains(t, string(content), "\"key\":\"value\"")
}

func TestNewWithInvalidLogDirFallsBackToStderr(t *testing.T) {
	logger := New(Config{LogDir: "/root/nonexistent/deep/path/that/should/fail", Quiet: true})
	defer logger.Close()
	assert.Nil(t, logger.file)
}

func TestLoggerWithAddsAttrsAndSharesFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "test", Quiet: true})
	defer logger.Close()

	child := logger.With("request_id", "abc123")
	require.NotNil(t, child)
	assert.Same(t, logger.file, child.file)
	child.Info("request started")
}

func TestLoggerCloseWithoutFileIsNoop(t *testing.T) {
	logger := New(Config{Quiet: true})
	assert.NoError(t, logger.Close())
}

func TestLoggerCloseClosesFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "test", Quiet: true})
	logger.Info("test")
	require.NoError(t, logger.Close())

	_, err := logger.file.WriteString("after close")
	assert.Error(t, err)
}

func TestLoggerConcurrentUse(t *testing.T) {
	logger := New(Config{Level: LevelInfo, Quiet: true})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent", "n", n)
		}(i)
	}
	wg.Wait()
}

func TestMultiHandlerFansOutToEveryEnabledHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError})
	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	assert.True(t, mh.Enabled(context.Background(), slog.LevelInfo))

	record := slog.Record{Level: slog.LevelInfo, Message: "hello"}
	require.NoError(t, mh.Handle(context.Background(), record))
	assert.NotEmpty(t, buf1.String())
	assert.Empty(t, buf2.String())
}

func TestMultiHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)
	mh := &multiHandler{handlers: []slog.Handler{h}}

	withAttrs := mh.WithAttrs([]slog.Attr{slog.String("k", "v")})
	_, ok := withAttrs.(*multiHandler)
	assert.True(t, ok)

	withGroup := mh.WithGroup("g")
	_, ok = withGroup.(*multiHandler)
	assert.True(t, ok)
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct{ input, want string }{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandPath(tt.input))
	}
}

func TestNewQuietModeStillUsable(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()
	logger.Info("test")
}

func TestLogFileNamePrefixesService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.True(t, strings.HasPrefix(files[0].Name(), "listcompare_"))
}
