// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"github.com/ohjayaxel/adsync/internal/database"
	"github.com/ohjayaxel/adsync/internal/models"
)

// BuildKpiRows derives one KPI row per calendar day in the window from
// per-date aggregates. Days without source rows are gap-filled with explicit
// zero rows carrying the run's currency, so "no spend that day" stays
// distinguishable from "never synced that day".
//
// Ratios are nil when their denominator is zero: no revenue must never render
// as a zero return-on-ad-spend.
func BuildKpiRows(tenantID, source string, window models.SyncWindow, aggs []database.DailyAggregate) []*models.KpiDailyRow {
	byDate := make(map[string]database.DailyAggregate, len(aggs))
	currency := ""
	for _, a := range aggs {
		byDate[a.Date.Format(models.DateFormat)] = a
		if currency == "" && a.Currency != "" {
			currency = a.Currency
		}
	}

	rows := make([]*models.KpiDailyRow, 0, window.Days())
	for day := window.Since; !day.After(window.Until); day = day.AddDate(0, 0, 1) {
		row := &models.KpiDailyRow{
			TenantID: tenantID,
			Date:     day,
			Source:   source,
			Currency: currency,
		}

		if a, ok := byDate[day.Format(models.DateFormat)]; ok {
			row.Spend = a.Spend
			row.Clicks = a.Clicks
			row.Conversions = a.Conversions
			row.Revenue = a.Revenue
			if a.Currency != "" {
				row.Currency = a.Currency
			}
		}

		row.AOV = safeRatio(row.Revenue, row.Conversions)
		row.COS = safeRatio(row.Spend, row.Revenue)
		// ROAS is nil with zero revenue as well: "no revenue" is not a
		// measured zero return.
		if row.Revenue == 0 {
			row.ROAS = nil
		} else {
			row.ROAS = safeRatio(row.Revenue, row.Spend)
		}

		rows = append(rows, row)
	}
	return rows
}

// safeRatio returns numerator/denominator, or nil when the denominator is
// zero.
func safeRatio(numerator, denominator float64) *float64 {
	if denominator == 0 {
		return nil
	}
	r := numerator / denominator
	return &r
}
