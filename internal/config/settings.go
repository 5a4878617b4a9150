// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/weixin07/listcompare/internal/apperr"
)

// Settings is the subset of runtime configuration persisted to
// settings.json and editable without restarting the process.
type Settings struct {
	TelemetryEnabled   bool   `json:"telemetry_enabled"`
	PlacesRateLimitQPS int    `json:"places_rate_limit_qps"`
	TelemetrySalt      string `json:"telemetry_salt"`
}

// SettingsPatch is a partial update applied to Settings; nil fields are
// left unchanged.
type SettingsPatch struct {
	TelemetryEnabled   *bool
	PlacesRateLimitQPS *int
}

func defaultSettings() (Settings, error) {
	salt, err := generateSalt()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		TelemetryEnabled:   true,
		PlacesRateLimitQPS: DefaultPlacesRateLimitQPS,
		TelemetrySalt:      salt,
	}, nil
}

// LoadSettings reads settings.json from path, creating it with defaults
// (derived from cfg) if missing or unparsable. A corrupt file is treated
// the same as a missing one: defaults are regenerated and persisted.
func LoadSettings(path string, cfg *Config) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Settings{}, apperr.IO(err)
		}
		return newAndPersist(path, cfg)
	}

	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return newAndPersist(path, cfg)
	}
	s.PlacesRateLimitQPS = clampQPS(s.PlacesRateLimitQPS)
	return s, nil
}

func newAndPersist(path string, cfg *Config) (Settings, error) {
	s, err := defaultSettings()
	if err != nil {
		return Settings{}, apperr.Config("failed to generate telemetry salt")
	}
	if cfg != nil {
		s.PlacesRateLimitQPS = clampQPS(cfg.PlacesRateLimitQPS)
	}
	if err := s.Persist(path); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Persist writes s to path as JSON.
func (s Settings) Persist(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return apperr.IO(err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return apperr.JSON(err)
	}
	if err := os.WriteFile(path, raw, 0o640); err != nil {
		return apperr.IO(err)
	}
	return nil
}

// ApplyPatch validates and applies patch to s, clamping QPS into range.
func (s Settings) ApplyPatch(patch SettingsPatch) Settings {
	if patch.TelemetryEnabled != nil {
		s.TelemetryEnabled = *patch.TelemetryEnabled
	}
	if patch.PlacesRateLimitQPS != nil {
		s.PlacesRateLimitQPS = clampQPS(*patch.PlacesRateLimitQPS)
	}
	return s
}

func generateSalt() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
