// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"fmt"
	"time"

	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/models"
)

// truncateToDay normalizes a timestamp to UTC midnight. All window math is
// done on calendar days.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolveWindow computes the date range a run should cover. Deterministic
// given the same inputs, which makes re-runs idempotent and the resolver
// directly unit-testable.
//
// Incremental: the configured lookback ending today, extended backward to the
// connection's sync-start date when that is earlier, and extended backward by
// the re-ingestion overlap measured from the end of the previous run's
// window. The overlap re-ingests days the platform may have revised after
// initial ingestion, such as late conversion attribution.
//
// Backfill: the explicit override when given, else sync-start date to today,
// clamped to the configured maximum span. If clamping inverts the range the
// bounds are swapped.
func ResolveWindow(cfg *config.SyncConfig, conn *models.Connection, req models.TriggerRequest, today time.Time) (models.SyncWindow, error) {
	today = truncateToDay(today)

	var w models.SyncWindow
	switch req.Mode {
	case models.ModeIncremental:
		w = resolveIncremental(cfg, conn, today)
	case models.ModeBackfill:
		w = resolveBackfill(cfg, conn, req, today)
	default:
		return models.SyncWindow{}, fmt.Errorf("unknown sync mode %q", req.Mode)
	}

	if err := w.Validate(today); err != nil {
		return models.SyncWindow{}, err
	}
	return w, nil
}

func resolveIncremental(cfg *config.SyncConfig, conn *models.Connection, today time.Time) models.SyncWindow {
	since := today.AddDate(0, 0, -(cfg.LookbackDays - 1))

	// Reach further back when the connection's start date is older than
	// the lookback.
	if conn.SyncStartDate != nil {
		startDate := truncateToDay(*conn.SyncStartDate)
		if startDate.Before(since) {
			since = startDate
		}
	}

	// Re-ingestion overlap from the end of the previous incremental window.
	if conn.State.LastSyncedUntil != nil {
		overlapStart := truncateToDay(*conn.State.LastSyncedUntil).AddDate(0, 0, -cfg.OverlapDays)
		if overlapStart.Before(since) {
			since = overlapStart
		}
	}

	// Never start before the sync-start date.
	if conn.SyncStartDate != nil {
		startDate := truncateToDay(*conn.SyncStartDate)
		if since.Before(startDate) {
			since = startDate
		}
	}

	if since.After(today) {
		since = today
	}

	return models.SyncWindow{Since: since, Until: today}
}

func resolveBackfill(cfg *config.SyncConfig, conn *models.Connection, req models.TriggerRequest, today time.Time) models.SyncWindow {
	since := today.AddDate(0, 0, -(cfg.MaxBackfillDays - 1))
	until := today

	if conn.SyncStartDate != nil {
		since = truncateToDay(*conn.SyncStartDate)
	}
	if req.Since != nil {
		since = truncateToDay(*req.Since)
	}
	if req.Until != nil {
		until = truncateToDay(*req.Until)
	}

	if until.After(today) {
		until = today
	}
	if since.After(until) {
		since, until = until, since
	}
	// A swapped end may still lie in the future.
	if until.After(today) {
		until = today
	}

	// Cap the total span against unbounded historical pulls. This must run
	// after the swap so an inverted override cannot smuggle an oversized
	// window past the clamp.
	maxSince := until.AddDate(0, 0, -(cfg.MaxBackfillDays - 1))
	if since.Before(maxSince) {
		since = maxSince
	}

	return models.SyncWindow{Since: since, Until: until}
}
