// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabaseFileName, cfg.DatabaseFileName)
	assert.Equal(t, DefaultPlacesRateLimitQPS, cfg.PlacesRateLimitQPS)
	assert.True(t, cfg.PlacesRateLimitQPS >= 1 && cfg.PlacesRateLimitQPS <= 10)
}

func TestPublicProfileRedactsSecrets(t *testing.T) {
	cfg := &Config{GooglePlacesAPIKey: "secret-key", DatabaseFileName: "x.db", PlacesRateLimitQPS: 5}
	profile := cfg.PublicProfile()
	assert.True(t, profile.HasPlacesAPIKey)
	assert.NotContains(t, profile.DatabaseFileName+profile.DatabaseFileName, "secret-key")
}

func TestLoadSettingsCreatesDefaultsOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	cfg := &Config{PlacesRateLimitQPS: 7}

	s, err := LoadSettings(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, s.PlacesRateLimitQPS)
	assert.NotEmpty(t, s.TelemetrySalt)

	reloaded, err := LoadSettings(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, s.TelemetrySalt, reloaded.TelemetrySalt)
}

func TestLoadSettingsRecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))

	s, err := LoadSettings(path, &Config{PlacesRateLimitQPS: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, s.PlacesRateLimitQPS)
}

func TestApplyPatchClampsQPS(t *testing.T) {
	s := Settings{PlacesRateLimitQPS: 5, TelemetryEnabled: true}
	qps := 99
	patched := s.ApplyPatch(SettingsPatch{PlacesRateLimitQPS: &qps})
	assert.Equal(t, 10, patched.PlacesRateLimitQPS)
}
