// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

/*
manager.go - Sync Manager Lifecycle and Orchestration

The manager owns the periodic sync loop and the manually triggered run path.

Lifecycle Methods:
  - NewManager(): Initialize manager with engine and configuration
  - Start(): Begin the periodic incremental sync loop
  - Stop(): Gracefully shut down and wait for in-flight runs
  - TriggerSync(): Manual run execution, rejected while another run is active
  - LastSyncTime(): Query last successful run timestamp

Thread Safety:
  - syncMu guards run execution so triggered and scheduled runs never overlap
  - mu protects shared state (running, lastSync)
  - The sync loop uses a WaitGroup for coordinated shutdown
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/models"
)

// ErrSyncInProgress is returned by TriggerSync while another run is active.
// The API layer maps it to HTTP 409.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// Manager schedules periodic incremental runs and serializes manual triggers.
type Manager struct {
	engine *Engine
	cfg    *config.SyncConfig

	lastSync time.Time
	running  bool
	active   bool
	mu       stdsync.RWMutex
	stopChan chan struct{}
	wg       stdsync.WaitGroup
}

// NewManager creates a sync manager around an engine.
func NewManager(engine *Engine, cfg *config.SyncConfig) *Manager {
	logging.Info().
		Dur("interval", cfg.Interval).
		Int("lookback_days", cfg.LookbackDays).
		Int("overlap_days", cfg.OverlapDays).
		Int("parallelism", cfg.Parallelism).
		Msg("Sync manager config loaded")

	return &Manager{
		engine:   engine,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic synchronization loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.running = true
	m.mu.Unlock()

	logging.Info().Msg("Starting sync manager...")

	m.wg.Add(1)
	go m.syncLoop(ctx)

	return nil
}

// Stop gracefully stops the synchronization loop and waits for any in-flight
// run to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")

	return nil
}

// syncLoop runs an immediate incremental pass, then one per interval.
// A zero interval disables scheduled runs; only manual triggers execute.
func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	if m.cfg.Interval <= 0 {
		logging.Info().Msg("Scheduled sync disabled (interval 0), manual triggers only")
		select {
		case <-m.stopChan:
		case <-ctx.Done():
		}
		return
	}

	if _, err := m.TriggerSync(ctx, models.TriggerRequest{Mode: models.ModeIncremental}); err != nil {
		logging.Warn().Err(err).Msg("Initial sync failed (will retry on next interval)")
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.TriggerSync(ctx, models.TriggerRequest{Mode: models.ModeIncremental}); err != nil {
				logging.Warn().Err(err).Msg("Scheduled sync failed")
			}
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// TriggerSync executes one run. Returns ErrSyncInProgress when a run is
// already active, so callers can surface the conflict instead of queueing.
func (m *Manager) TriggerSync(ctx context.Context, req models.TriggerRequest) ([]models.TenantResult, error) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	m.active = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	results, err := m.engine.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Status == models.JobStatusSucceeded {
			m.mu.Lock()
			m.lastSync = time.Now().UTC()
			m.mu.Unlock()
			break
		}
	}

	return results, nil
}

// SyncActive reports whether a run is currently executing.
func (m *Manager) SyncActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// LastSyncTime returns the timestamp of the last run with at least one
// succeeded tenant.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}
