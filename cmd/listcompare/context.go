// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/weixin07/listcompare/internal/comparison"
	"github.com/weixin07/listcompare/internal/config"
	"github.com/weixin07/listcompare/internal/ingest"
	"github.com/weixin07/listcompare/internal/places"
	"github.com/weixin07/listcompare/internal/projects"
	"github.com/weixin07/listcompare/internal/store"
	"github.com/weixin07/listcompare/internal/telemetry"
	"github.com/weixin07/listcompare/internal/token"
	"github.com/weixin07/listcompare/internal/vault"
	"github.com/weixin07/listcompare/pkg/logging"
)

const serviceName = "GoogleMapsListComparator"

// appContext holds every bootstrapped dependency a subcommand needs.
type appContext struct {
	cfg              *config.Config
	settings         config.Settings
	store            *store.Store
	vault            *vault.Vault
	sink             *telemetry.Sink
	tokenProvider    *token.Provider
	normalizer       *places.Normalizer
	comparisonEngine *comparison.Engine
	registry         *projects.Registry
	log              *logging.Logger

	cancelBackground context.CancelFunc
}

func appDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "listcompare")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

func newAppContext() (*appContext, error) {
	dir, err := appDataDir()
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  filepath.Join(dir, "logs"),
		Service: "listcompare",
	})

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	settingsPath := filepath.Join(dir, "settings.json")
	settings, err := config.LoadSettings(settingsPath, cfg)
	if err != nil {
		return nil, err
	}

	v := vault.New(serviceName)

	boot, err := store.Bootstrap(dir, cfg.DatabaseFileName, v)
	if err != nil {
		return nil, err
	}

	sink := telemetry.New(telemetry.Config{
		Path:         filepath.Join(dir, "telemetry-buffer.jsonl"),
		BatchSize:    cfg.TelemetryBatchSize,
		MaxFileBytes: cfg.TelemetryBufferMaxBytes,
		MaxFileCount: cfg.TelemetryBufferMaxFiles,
		Enabled:      settings.TelemetryEnabled,
	})

	tokenProvider, err := token.New(token.Config{
		Vault:            v,
		TokenEndpoint:    cfg.GoogleTokenEndpoint,
		UserinfoEndpoint: cfg.GoogleUserinfoEndpoint,
		ClientID:         cfg.GoogleOAuthClientID,
		ClientSecret:     cfg.GoogleOAuthClientSecret,
		Recorder:         sink,
	})
	if err != nil {
		return nil, err
	}

	lookup := placesLookup(cfg)
	normalizer := places.New(places.Config{
		Store:    boot.Store,
		Lookup:   lookup,
		QPS:      settings.PlacesRateLimitQPS,
		TTL:      places.DefaultTTL,
		Recorder: sink,
	})

	engine := comparison.New(boot.Store.DB())
	registry := projects.New(boot.Store.DB())

	ctx, cancel := context.WithCancel(context.Background())
	go tokenProvider.RunBackground(ctx)

	log.Info("app context bootstrapped", "data_dir", dir, "recovered_store", boot.Recovered)

	app := &appContext{
		cfg:              cfg,
		settings:         settings,
		store:            boot.Store,
		vault:            v,
		sink:             sink,
		tokenProvider:    tokenProvider,
		normalizer:       normalizer,
		comparisonEngine: engine,
		registry:         registry,
		log:              log,
		cancelBackground: cancel,
	}
	return app, nil
}

func placesLookup(cfg *config.Config) places.Lookup {
	if cfg.GooglePlacesAPIKey == "" {
		return places.SyntheticLookup{}
	}
	return places.NewGoogleLookup(places.LookupConfig{
		APIKey:  cfg.GooglePlacesAPIKey,
		Timeout: 10 * time.Second,
	})
}

// Close releases background resources. Subcommands that mutate the
// database should always defer this after a successful bootstrap.
func (a *appContext) Close() error {
	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	if a.sink != nil {
		_ = a.sink.Flush()
	}
	var closeErr error
	if a.store != nil {
		closeErr = a.store.Close()
	}
	if a.log != nil {
		if closeErr != nil {
			a.log.Error("shutdown encountered an error", "error", closeErr.Error())
		}
		_ = a.log.Close()
	}
	return closeErr
}

// newOrchestrator builds an ingest.Orchestrator authorized with the
// current access token; imports need a live Drive client so this is
// constructed per-command rather than once at startup.
func (a *appContext) newOrchestrator(ctx context.Context) (*ingest.Orchestrator, error) {
	current, err := a.tokenProvider.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	client, err := newDriveClient(ctx, current.AccessToken)
	if err != nil {
		return nil, err
	}
	return ingest.New(ingest.Config{
		Store:      a.store,
		Drive:      client,
		Normalizer: a.normalizer,
		Recorder:   a.sink,
	}), nil
}
