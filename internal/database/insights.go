// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ohjayaxel/adsync/internal/metrics"
	"github.com/ohjayaxel/adsync/internal/models"
)

// insightColumns is the column list for ad_insights_daily writes.
const insightColumns = `tenant_id, date, level, entity_id, report_time, attribution, breakdown_hash,
	account_id, campaign_id, campaign_name, adset_id, ad_id, ad_name, currency, breakdowns,
	spend, impressions, clicks, conversions, revenue`

// UpsertDailyFacts writes a batch of fine-grained daily rows using
// upsert-on-conflict semantics keyed on the full composite key. Idempotent by
// construction: identical rows overwrite identical values.
//
// The caller is responsible for bounding the batch size; one call issues one
// multi-row INSERT statement.
func (db *DB) UpsertDailyFacts(ctx context.Context, rows []*models.DailyFactRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()

	placeholders := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*20)
	for _, r := range rows {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.TenantID, r.Date, string(r.Level), r.EntityID, r.ReportTime, r.Attribution, r.BreakdownHash,
			r.AccountID, r.CampaignID, r.CampaignName, r.AdSetID, r.AdID, r.AdName, r.Currency, r.BreakdownJSON,
			r.Spend, r.Impressions, r.Clicks, r.Conversions, r.Revenue,
		)
	}

	query := fmt.Sprintf(`INSERT INTO ad_insights_daily (%s) VALUES %s
	ON CONFLICT (tenant_id, date, level, entity_id, report_time, attribution, breakdown_hash) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		campaign_id = EXCLUDED.campaign_id,
		campaign_name = EXCLUDED.campaign_name,
		adset_id = EXCLUDED.adset_id,
		ad_id = EXCLUDED.ad_id,
		ad_name = EXCLUDED.ad_name,
		currency = EXCLUDED.currency,
		breakdowns = EXCLUDED.breakdowns,
		spend = EXCLUDED.spend,
		impressions = EXCLUDED.impressions,
		clicks = EXCLUDED.clicks,
		conversions = EXCLUDED.conversions,
		revenue = EXCLUDED.revenue,
		updated_at = now()`,
		insightColumns, strings.Join(placeholders, ", "))

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		metrics.DBWriteErrors.WithLabelValues("ad_insights_daily").Inc()
		return fmt.Errorf("failed to upsert %d daily fact rows: %w", len(rows), err)
	}

	metrics.DBWriteDuration.WithLabelValues("ad_insights_daily").Observe(time.Since(start).Seconds())
	return nil
}

// DailyAggregate is one date's summed metrics, used by the KPI aggregator.
type DailyAggregate struct {
	Date        time.Time
	Currency    string
	Spend       float64
	Clicks      int64
	Conversions float64
	Revenue     float64
}

// AggregateCanonicalDaily collapses the fine-grained daily table, filtered to
// one canonical combination, into per-date sums across all entities. This is
// the KPI fallback path when the current run's canonical pass produced no
// coarse facts.
func (db *DB) AggregateCanonicalDaily(ctx context.Context, tenantID, accountID string,
	level models.Level, reportTime, attribution, breakdownHash string,
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
	FROM ad_insights_daily
	WHERE tenant_id = ? AND account_id = ? AND level = ?
		AND report_time = ? AND attribution = ? AND breakdown_hash = ?
		AND date >= ? AND date <= ?
	GROUP BY date
	ORDER BY date`

	rows, err := db.conn.QueryContext(ctx, query,
		tenantID, accountID, string(level), reportTime, attribution, breakdownHash, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate canonical daily rows: %w", err)
	}
	defer closeQuietly(rows)

	var aggs []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		if err := rows.Scan(&a.Date, &a.Currency, &a.Spend, &a.Clicks, &a.Conversions, &a.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily aggregates: %w", err)
	}

	return aggs, nil
}

// CountDailyFacts returns the number of fine-grained rows for a tenant in a
// date range. Used by tests and the run summary.
func (db *DB) CountDailyFacts(ctx context.Context, tenantID string, since, until time.Time) (int64, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ad_insights_daily WHERE tenant_id = ? AND date >= ? AND date <= ?`,
		tenantID, since, until).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily facts: %w", err)
	}
	return n, nil
}

// DailyFactDateRange returns the min and max dates actually present for a
// tenant within a window. The sync-state recorder uses this so the watermark
// only advances over dates that produced rows.
func (db *DB) DailyFactDateRange(ctx context.Context, tenantID string, since, until time.Time) (time.Time, time.Time, bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var minDate, maxDate interface{}
	err := db.conn.QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM ad_insights_daily WHERE tenant_id = ? AND date >= ? AND date <= ?`,
		tenantID, since, until).Scan(&minDate, &maxDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to query fact date range: %w", err)
	}

	minT, okMin := minDate.(time.Time)
	maxT, okMax := maxDate.(time.Time)
	if !okMin || !okMax {
		return time.Time{}, time.Time{}, false, nil
	}

	return minT, maxT, true, nil
}
