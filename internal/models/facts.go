// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package models

import "time"

// NormalizedRow is the canonical shape of one raw report row after the
// normalizer has mapped platform field names and parsed numerics.
//
// Numeric fields are pointers: nil means "not measured", which is distinct
// from a measured zero. Entity identifiers are nullable because coarser
// levels do not carry the finer identifiers.
type NormalizedRow struct {
	DateStart time.Time
	DateStop  time.Time

	AccountID    string
	CampaignID   *string
	CampaignName *string
	AdSetID      *string
	AdID         *string
	AdName       *string

	Currency string

	Spend       *float64
	Impressions *int64
	Clicks      *int64
	Conversions *float64
	Revenue     *float64

	// Breakdowns holds the breakdown-dimension values for this row,
	// keyed by field name (e.g. "country" -> "SE"). Empty for the
	// no-breakdown set.
	Breakdowns map[string]string
}

// EntityID returns the identifier that defines the row at the given level,
// or empty if the row does not carry it.
func (r *NormalizedRow) EntityID(level Level) string {
	switch level {
	case LevelAccount:
		return r.AccountID
	case LevelCampaign:
		if r.CampaignID != nil {
			return *r.CampaignID
		}
	case LevelAd:
		if r.AdID != nil {
			return *r.AdID
		}
	}
	return ""
}

// DailyFactRow is one row in the fine-grained daily table. The composite
// natural key (tenant, date, level, entity, report time, attribution,
// breakdown hash) is the idempotency boundary: re-running the same task for
// the same window overwrites the row in place.
type DailyFactRow struct {
	TenantID      string
	Date          time.Time
	Level         Level
	EntityID      string
	ReportTime    string
	Attribution   string
	BreakdownHash string

	AccountID     string
	CampaignID    *string
	CampaignName  *string
	AdSetID       *string
	AdID          *string
	AdName        *string
	Currency      string
	BreakdownJSON string

	Spend       *float64
	Impressions *int64
	Clicks      *int64
	Conversions *float64
	Revenue     *float64
}

// CanonicalFactRow is one row in the coarse fact table, produced only by the
// canonical matrix combination. The table is replaced per (tenant, account)
// and date window on every successful run.
type CanonicalFactRow struct {
	TenantID   string
	AccountID  string
	Date       time.Time
	Level      Level
	EntityID   string
	EntityName *string
	Currency   string

	Spend       *float64
	Impressions *int64
	Clicks      *int64
	Conversions *float64
	Revenue     *float64
}

// KpiDailyRow is one row per (tenant, date, source) in the KPI table.
// Ratios are nil when their denominator is zero or absent, so "no revenue"
// never renders as a zero return-on-ad-spend.
type KpiDailyRow struct {
	TenantID string    `json:"tenant_id"`
	Date     time.Time `json:"date"`
	Source   string    `json:"source"`
	Currency string    `json:"currency"`

	Spend       float64 `json:"spend"`
	Clicks      int64   `json:"clicks"`
	Conversions float64 `json:"conversions"`
	Revenue     float64 `json:"revenue"`

	AOV  *float64 `json:"aov"`  // revenue / conversions
	COS  *float64 `json:"cos"`  // spend / revenue
	ROAS *float64 `json:"roas"` // revenue / spend
}
