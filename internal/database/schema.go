// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

/*
schema.go - Database Schema Management

Tables:
  - connections: tenant ad-account connection records with sync-state watermarks
  - ad_insights_daily: fine-grained daily rows, one per full dimensional identity
  - ad_facts: coarse canonical fact table, replaced per (tenant, account, window)
  - kpi_daily: per-day KPI aggregates, merge-upserted
  - sync_jobs: append-only job log

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements. The composite
natural key of ad_insights_daily is its primary key so that INSERT ... ON
CONFLICT upserts are idempotent by construction.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// tableCreationQueries returns the table creation SQL statements.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS connections (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			sync_start_date DATE,
			reduced_variants BOOLEAN NOT NULL DEFAULT FALSE,
			canonical_report_time TEXT NOT NULL DEFAULT '',
			canonical_attribution TEXT NOT NULL DEFAULT '',
			last_synced_at TIMESTAMP,
			last_synced_since DATE,
			last_synced_until DATE,
			last_backfill_at TIMESTAMP,
			last_backfill_since DATE,
			last_backfill_until DATE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Fine-grained daily table. The composite key is the idempotency
		// boundary: re-running the same task for the same window overwrites
		// in place, never appends.
		`CREATE TABLE IF NOT EXISTS ad_insights_daily (
			tenant_id TEXT NOT NULL,
			date DATE NOT NULL,
			level TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			report_time TEXT NOT NULL,
			attribution TEXT NOT NULL,
			breakdown_hash TEXT NOT NULL,
			account_id TEXT NOT NULL,
			campaign_id TEXT,
			campaign_name TEXT,
			adset_id TEXT,
			ad_id TEXT,
			ad_name TEXT,
			currency TEXT,
			breakdowns JSON,
			spend DOUBLE,
			impressions BIGINT,
			clicks BIGINT,
			conversions DOUBLE,
			revenue DOUBLE,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, date, level, entity_id, report_time, attribution, breakdown_hash)
		)`,

		// Coarse canonical fact table, a materialized view of the canonical
		// combination only. Replaced delete-then-insert per window.
		`CREATE TABLE IF NOT EXISTS ad_facts (
			tenant_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			date DATE NOT NULL,
			level TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			entity_name TEXT,
			currency TEXT,
			spend DOUBLE,
			impressions BIGINT,
			clicks BIGINT,
			conversions DOUBLE,
			revenue DOUBLE,
			PRIMARY KEY (tenant_id, account_id, date, level, entity_id)
		)`,

		`CREATE TABLE IF NOT EXISTS kpi_daily (
			tenant_id TEXT NOT NULL,
			date DATE NOT NULL,
			source TEXT NOT NULL,
			currency TEXT,
			spend DOUBLE NOT NULL DEFAULT 0,
			clicks BIGINT NOT NULL DEFAULT 0,
			conversions DOUBLE NOT NULL DEFAULT 0,
			revenue DOUBLE NOT NULL DEFAULT 0,
			aov DOUBLE,
			cos DOUBLE,
			roas DOUBLE,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, date, source)
		)`,

		`CREATE TABLE IF NOT EXISTS sync_jobs (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			status TEXT NOT NULL,
			error TEXT,
			rows_inserted BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_insights_tenant_date ON ad_insights_daily (tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_tenant_date ON ad_facts (tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_started ON sync_jobs (tenant_id, started_at)`,
	}
}
