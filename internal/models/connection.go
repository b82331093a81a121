// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncState is the watermark state persisted on a tenant's connection record.
// Incremental and backfill runs keep distinct fields so the two modes never
// clobber each other's watermark.
type SyncState struct {
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
	LastSyncedSince   *time.Time `json:"last_synced_since,omitempty"`
	LastSyncedUntil   *time.Time `json:"last_synced_until,omitempty"`
	LastBackfillAt    *time.Time `json:"last_backfill_at,omitempty"`
	LastBackfillSince *time.Time `json:"last_backfill_since,omitempty"`
	LastBackfillUntil *time.Time `json:"last_backfill_until,omitempty"`
}

// Connection is a tenant's ad-account connection record. The engine reads it
// for account selection, sync-start date and variant overrides, and the
// sync-state recorder writes the watermark back after each run.
type Connection struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	AccountID string    `json:"account_id"`

	// SyncStartDate bounds how far back any window may reach. Nil means the
	// incremental lookback alone decides.
	SyncStartDate *time.Time `json:"sync_start_date,omitempty"`

	// ReducedVariants restricts high-volume tenants to a single report-time/
	// attribution variant pair to stay within execution-time and rate-limit
	// budgets.
	ReducedVariants bool `json:"reduced_variants"`

	// CanonicalReportTime and CanonicalAttribution override which matrix
	// combination feeds the coarse fact table and KPIs. Empty means the
	// engine defaults.
	CanonicalReportTime  string `json:"canonical_report_time,omitempty"`
	CanonicalAttribution string `json:"canonical_attribution,omitempty"`

	State SyncState `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
