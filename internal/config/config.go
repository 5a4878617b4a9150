// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package config resolves process configuration from the environment.
// Every field is optional with a documented default, struct tags are
// validated with go-playground/validator, and a redacted PublicProfile
// is available for safe logging.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTelemetryBufferMaxBytes = 5 * 1024 * 1024
	DefaultTelemetryBufferMaxFiles = 5
	DefaultPlacesRateLimitQPS      = 5
	DefaultDatabaseFileName        = "listcompare.db"
	DefaultDeviceCodeEndpoint      = "https://oauth2.googleapis.com/device/code"
	DefaultTokenEndpoint           = "https://oauth2.googleapis.com/token"
	DefaultUserinfoEndpoint        = "https://openidconnect.googleapis.com/v1/userinfo"
	DefaultDriveAPIBase            = "https://www.googleapis.com/drive/v3"
	DefaultDrivePickerPageSize     = 25
)

// Config holds every environment-derived setting the core consumes.
// Secrets (API keys, OAuth client secret) are kept as plain strings here
// because they come straight from the environment at process start. They
// stay plain strings after that: the Token Provider holds the OAuth client
// secret and the Places lookup holds the API key as strings. Only values
// read back from the Vault are wrapped in secretmaterial.Material.
type Config struct {
	TelemetryEndpoint          string `validate:"omitempty,url"`
	TelemetryEnabled           bool
	TelemetryFlushIntervalMS   int `validate:"gte=0"`
	TelemetryBatchSize         int `validate:"gt=0"`
	TelemetryBufferMaxBytes    int64 `validate:"gt=0"`
	TelemetryBufferMaxFiles    int   `validate:"gt=0"`
	PlacesRateLimitQPS         int   `validate:"gte=1,lte=10"`
	DatabaseFileName           string `validate:"required"`
	GooglePlacesAPIKey         string
	MapTilerAPIKey             string
	GoogleOAuthClientID        string
	GoogleOAuthClientSecret    string
	GoogleDeviceCodeEndpoint   string `validate:"required,url"`
	GoogleTokenEndpoint        string `validate:"required,url"`
	GoogleUserinfoEndpoint     string `validate:"required,url"`
	GoogleDriveAPIBase         string `validate:"required,url"`
	GoogleDrivePickerPageSize  int    `validate:"gte=1,lte=100"`
}

// PublicProfile is the redacted view of Config safe to log or expose to
// a future UI: booleans in place of secret values.
type PublicProfile struct {
	TelemetryEnabled    bool   `json:"telemetry_enabled"`
	PlacesRateLimitQPS  int    `json:"places_rate_limit_qps"`
	DatabaseFileName    string `json:"database_file_name"`
	HasPlacesAPIKey     bool   `json:"has_places_api_key"`
	HasMapTilerAPIKey   bool   `json:"has_maptiler_api_key"`
	HasOAuthClient      bool   `json:"has_oauth_client"`
	DriveImportEnabled  bool   `json:"drive_import_enabled"`
}

// PublicProfile builds the redacted view of c.
func (c *Config) PublicProfile() PublicProfile {
	return PublicProfile{
		TelemetryEnabled:   c.TelemetryEnabled,
		PlacesRateLimitQPS: c.PlacesRateLimitQPS,
		DatabaseFileName:   c.DatabaseFileName,
		HasPlacesAPIKey:    c.GooglePlacesAPIKey != "",
		HasMapTilerAPIKey:  c.MapTilerAPIKey != "",
		HasOAuthClient:     c.GoogleOAuthClientID != "" && c.GoogleOAuthClientSecret != "",
		DriveImportEnabled: c.GoogleOAuthClientID != "" && c.GoogleOAuthClientSecret != "",
	}
}

var validate = validator.New()

// Load reads configuration from the environment, applying defaults, and
// validates the result. It never consults or mutates process-global
// state — call sites that want a shared instance should use Global().
func Load() (*Config, error) {
	c := &Config{
		TelemetryEndpoint:         os.Getenv("TELEMETRY_ENDPOINT"),
		TelemetryEnabled:          envBool("TELEMETRY_ENABLED", true),
		TelemetryFlushIntervalMS:  envInt("TELEMETRY_FLUSH_INTERVAL_MS", 5000),
		TelemetryBatchSize:        envInt("TELEMETRY_BATCH_SIZE", 20),
		TelemetryBufferMaxBytes:   envInt64("TELEMETRY_BUFFER_MAX_BYTES", DefaultTelemetryBufferMaxBytes),
		TelemetryBufferMaxFiles:   envInt("TELEMETRY_BUFFER_MAX_FILES", DefaultTelemetryBufferMaxFiles),
		PlacesRateLimitQPS:        clampQPS(envInt("PLACES_RATE_LIMIT_QPS", DefaultPlacesRateLimitQPS)),
		DatabaseFileName:          envString("DATABASE_FILE_NAME", DefaultDatabaseFileName),
		GooglePlacesAPIKey:        os.Getenv("GOOGLE_PLACES_API_KEY"),
		MapTilerAPIKey:            os.Getenv("MAPTILER_API_KEY"),
		GoogleOAuthClientID:       os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleOAuthClientSecret:   os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		GoogleDeviceCodeEndpoint:  envString("GOOGLE_DEVICE_CODE_ENDPOINT", DefaultDeviceCodeEndpoint),
		GoogleTokenEndpoint:       envString("GOOGLE_TOKEN_ENDPOINT", DefaultTokenEndpoint),
		GoogleUserinfoEndpoint:    envString("GOOGLE_USERINFO_ENDPOINT", DefaultUserinfoEndpoint),
		GoogleDriveAPIBase:        envString("GOOGLE_DRIVE_API_BASE", DefaultDriveAPIBase),
		GoogleDrivePickerPageSize: envInt("GOOGLE_DRIVE_PICKER_PAGE_SIZE", DefaultDrivePickerPageSize),
	}

	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

var (
	globalOnce sync.Once
	globalCfg  *Config
	globalErr  error
)

// Global returns a process-wide Config, loaded once. It exists purely as
// a convenience for the cmd/listcompare entrypoint; library packages
// should always take *Config explicitly rather than calling Global, so
// they remain testable with arbitrary configurations.
func Global() (*Config, error) {
	globalOnce.Do(func() {
		globalCfg, globalErr = Load()
	})
	return globalCfg, globalErr
}

func clampQPS(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
