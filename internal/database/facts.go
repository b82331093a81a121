// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ohjayaxel/adsync/internal/metrics"
	"github.com/ohjayaxel/adsync/internal/models"
)

// ReplaceFactWindow replaces the coarse fact table for one (tenant, account)
// and date window: delete-then-insert inside a single transaction. The table
// is a materialized view of the canonical combination, so a row-by-row merge
// could leave rows from combinations that no longer apply.
func (db *DB) ReplaceFactWindow(ctx context.Context, tenantID, accountID string,
	since, until time.Time, rows []*models.CanonicalFactRow) error {

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fact replace transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM ad_facts WHERE tenant_id = ? AND account_id = ? AND date >= ? AND date <= ?`,
		tenantID, accountID, since, until)
	if err != nil {
		metrics.DBWriteErrors.WithLabelValues("ad_facts").Inc()
		return fmt.Errorf("failed to delete fact window: %w", err)
	}

	for _, r := range rows {
		_, err = tx.ExecContext(ctx, `INSERT INTO ad_facts (
			tenant_id, account_id, date, level, entity_id, entity_name,
			currency, spend, impressions, clicks, conversions, revenue
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TenantID, r.AccountID, r.Date, string(r.Level), r.EntityID, r.EntityName,
			r.Currency, r.Spend, r.Impressions, r.Clicks, r.Conversions, r.Revenue)
		if err != nil {
			metrics.DBWriteErrors.WithLabelValues("ad_facts").Inc()
			return fmt.Errorf("failed to insert fact row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBWriteErrors.WithLabelValues("ad_facts").Inc()
		return fmt.Errorf("failed to commit fact replace: %w", err)
	}

	metrics.DBWriteDuration.WithLabelValues("ad_facts").Observe(time.Since(start).Seconds())
	return nil
}

// AggregateFactsByDate collapses the coarse fact table across all entities
// into per-date sums for a (tenant, account) and window. This is the KPI
// aggregator's primary path.
func (db *DB) AggregateFactsByDate(ctx context.Context, tenantID, accountID string,
	since, until time.Time) ([]DailyAggregate, error) {

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := `SELECT
		date,
		COALESCE(MAX(currency), '') AS currency,
		COALESCE(SUM(spend), 0) AS spend,
		COALESCE(SUM(clicks), 0) AS clicks,
		COALESCE(SUM(conversions), 0) AS conversions,
		COALESCE(SUM(revenue), 0) AS revenue
	FROM ad_facts
	WHERE tenant_id = ? AND account_id = ? AND date >= ? AND date <= ?
	GROUP BY date
	ORDER BY date`

	rows, err := db.conn.QueryContext(ctx, query, tenantID, accountID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate facts by date: %w", err)
	}
	defer closeQuietly(rows)

	var aggs []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		if err := rows.Scan(&a.Date, &a.Currency, &a.Spend, &a.Clicks, &a.Conversions, &a.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan fact aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fact aggregates: %w", err)
	}

	return aggs, nil
}

// ListFactRows returns the coarse fact rows for a (tenant, account) and
// window, ordered by date then entity. Used by tests and debugging endpoints.
func (db *DB) ListFactRows(ctx context.Context, tenantID, accountID string,
	since, until time.Time) ([]*models.CanonicalFactRow, error) {

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := `SELECT tenant_id, account_id, date, level, entity_id, entity_name,
		currency, spend, impressions, clicks, conversions, revenue
	FROM ad_facts
	WHERE tenant_id = ? AND account_id = ? AND date >= ? AND date <= ?
	ORDER BY date, entity_id`

	rows, err := db.conn.QueryContext(ctx, query, tenantID, accountID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list fact rows: %w", err)
	}
	defer closeQuietly(rows)

	var out []*models.CanonicalFactRow
	for rows.Next() {
		var r models.CanonicalFactRow
		var level string
		if err := rows.Scan(&r.TenantID, &r.AccountID, &r.Date, &level, &r.EntityID, &r.EntityName,
			&r.Currency, &r.Spend, &r.Impressions, &r.Clicks, &r.Conversions, &r.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan fact row: %w", err)
		}
		r.Level = models.Level(level)
		out = append(out, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fact rows: %w", err)
	}

	return out, nil
}
