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

// UpsertKpiRows merge-upserts KPI rows keyed on (tenant_id, date, source).
// Unlike the coarse fact table this is never delete-then-insert: a partially
// failed run must not erase a previously-known KPI value.
func (db *DB) UpsertKpiRows(ctx context.Context, rows []*models.KpiDailyRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()

	query := `INSERT INTO kpi_daily (
		tenant_id, date, source, currency, spend, clicks, conversions, revenue, aov, cos, roas
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, date, source) DO UPDATE SET
		currency = EXCLUDED.currency,
		spend = EXCLUDED.spend,
		clicks = EXCLUDED.clicks,
		conversions = EXCLUDED.conversions,
		revenue = EXCLUDED.revenue,
		aov = EXCLUDED.aov,
		cos = EXCLUDED.cos,
		roas = EXCLUDED.roas,
		updated_at = now()`

	for _, r := range rows {
		_, err := db.conn.ExecContext(ctx, query,
			r.TenantID, r.Date, r.Source, r.Currency,
			r.Spend, r.Clicks, r.Conversions, r.Revenue,
			r.AOV, r.COS, r.ROAS)
		if err != nil {
			metrics.DBWriteErrors.WithLabelValues("kpi_daily").Inc()
			return fmt.Errorf("failed to upsert KPI row for %s/%s: %w",
				r.TenantID, r.Date.Format(models.DateFormat), err)
		}
	}

	metrics.DBWriteDuration.WithLabelValues("kpi_daily").Observe(time.Since(start).Seconds())
	return nil
}

// ListKpiRows returns KPI rows for a tenant and date range, ordered by date.
func (db *DB) ListKpiRows(ctx context.Context, tenantID, source string, since, until time.Time) ([]*models.KpiDailyRow, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := `SELECT tenant_id, date, source, currency, spend, clicks, conversions, revenue, aov, cos, roas
	FROM kpi_daily
	WHERE tenant_id = ? AND source = ? AND date >= ? AND date <= ?
	ORDER BY date`

	rows, err := db.conn.QueryContext(ctx, query, tenantID, source, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list KPI rows: %w", err)
	}
	defer closeQuietly(rows)

	var out []*models.KpiDailyRow
	for rows.Next() {
		var r models.KpiDailyRow
		var currency interface{}
		if err := rows.Scan(&r.TenantID, &r.Date, &r.Source, &currency,
			&r.Spend, &r.Clicks, &r.Conversions, &r.Revenue,
			&r.AOV, &r.COS, &r.ROAS); err != nil {
			return nil, fmt.Errorf("failed to scan KPI row: %w", err)
		}
		if c, ok := currency.(string); ok {
			r.Currency = c
		}
		out = append(out, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate KPI rows: %w", err)
	}

	return out, nil
}
