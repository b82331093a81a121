// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

// Package main is the entry point for the adsync server.
//
// Adsync pulls daily advertising performance from an ad platform's
// asynchronous reporting API into DuckDB, materializes a canonical fact
// table and daily KPIs, and exposes an operational HTTP API for triggering
// and observing syncs.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (env > file > defaults)
//  2. Database: DuckDB with the fact, KPI, connection and job-log tables
//  3. Platform client: retrying HTTP client behind a circuit breaker
//  4. Events: sync lifecycle publisher (NATS when built with -tags nats
//     and enabled, in-process GoChannel otherwise)
//  5. Sync engine and manager: periodic incremental syncs
//  6. HTTP server: REST API, health and Prometheus metrics
//
// Everything runs under a Suture v4 supervisor tree and shuts down
// gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohjayaxel/adsync/internal/api"
	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/database"
	"github.com/ohjayaxel/adsync/internal/events"
	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/platform"
	"github.com/ohjayaxel/adsync/internal/supervisor"
	syncengine "github.com/ohjayaxel/adsync/internal/sync"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("database", cfg.Database.Path).
		Str("listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("Starting adsync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	client := platform.NewBreakerClient(platform.NewClient(&cfg.Platform))
	tokens := platform.NewCachingTokenProvider(
		platform.NewStaticTokenProvider(cfg.Platform.AccessToken))

	publisher := initPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	engine := syncengine.NewEngine(db, client, tokens, publisher, &cfg.Sync)
	manager := syncengine.NewManager(engine, &cfg.Sync)

	handler := api.NewHandler(db, manager, cfg.Sync.Source)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(supervisor.NewSyncService(manager))
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Stopped gracefully")
}

// initPublisher selects the sync lifecycle event transport. NATS needs both
// the nats build tag and NATS_ENABLED=true; everything else gets the
// in-process GoChannel bus so the rest of the wiring stays identical.
func initPublisher(cfg *config.Config) events.Publisher {
	if cfg.NATS.Enabled {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			logging.Warn().Err(err).Msg("NATS publisher unavailable, falling back to in-process events")
		} else {
			logging.Info().Str("url", cfg.NATS.URL).Msg("Publishing sync events to NATS")
			return pub
		}
	}

	pub, _ := events.NewGoChannelPublisher(cfg.NATS.SubjectPrefix)
	return pub
}
