// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"time"

	"github.com/ohjayaxel/adsync/internal/models"
)

// Report-time variants control which day a conversion is credited to.
const (
	ReportTimeImpression = "impression"
	ReportTimeConversion = "conversion"
)

// Attribution variants are the platform's attribution-window selections.
const (
	AttributionDefault = "7d_click,1d_view"
	AttributionClick   = "7d_click"
)

// BreakdownNone is the breakdown key of the unsegmented report.
const BreakdownNone = "none"

// breakdownSet pairs a stable key with the platform breakdown fields it
// requests.
type breakdownSet struct {
	key    string
	fields []string
}

// breakdownSets is the fixed segmentation catalog. The key is part of task
// identity and row keys, so entries must never be renamed once deployed.
var breakdownSets = []breakdownSet{
	{key: BreakdownNone, fields: nil},
	{key: "age_gender", fields: []string{"age", "gender"}},
	{key: "country", fields: []string{"country"}},
	{key: "publisher_platform", fields: []string{"publisher_platform"}},
}

var allLevels = []models.Level{models.LevelAccount, models.LevelCampaign, models.LevelAd}

// variantPair is one report-time/attribution combination.
type variantPair struct {
	reportTime  string
	attribution string
}

var fullVariants = []variantPair{
	{ReportTimeImpression, AttributionDefault},
	{ReportTimeImpression, AttributionClick},
	{ReportTimeConversion, AttributionDefault},
	{ReportTimeConversion, AttributionClick},
}

// reducedVariants keeps high-volume tenants within execution-time and
// rate-limit budgets.
var reducedVariants = []variantPair{
	{ReportTimeImpression, AttributionDefault},
}

// BuildTasks expands a sync window into the full task matrix: the Cartesian
// product of levels, breakdown sets, report-time/attribution variants and
// calendar-month chunks of the window. Pure function of its inputs; tasks
// share no mutable state and can fail independently.
func BuildTasks(window models.SyncWindow, reduced bool) []models.Task {
	variants := fullVariants
	if reduced {
		variants = reducedVariants
	}

	chunks := monthChunks(window)

	tasks := make([]models.Task, 0, len(allLevels)*len(breakdownSets)*len(variants)*len(chunks))
	for _, level := range allLevels {
		for _, bd := range breakdownSets {
			for _, v := range variants {
				for _, chunk := range chunks {
					tasks = append(tasks, models.Task{
						Level:           level,
						BreakdownKey:    bd.key,
						BreakdownFields: bd.fields,
						ReportTime:      v.reportTime,
						Attribution:     v.attribution,
						Since:           chunk.Since,
						Until:           chunk.Until,
					})
				}
			}
		}
	}
	return tasks
}

// monthChunks partitions a window into calendar-month pieces: the first chunk
// starts at since, the last ends at until, interior chunks are full months.
// Month-sized jobs stay within the platform's per-job result limits.
func monthChunks(window models.SyncWindow) []models.SyncWindow {
	var chunks []models.SyncWindow

	cursor := window.Since
	for !cursor.After(window.Until) {
		monthEnd := endOfMonth(cursor)
		if monthEnd.After(window.Until) {
			monthEnd = window.Until
		}
		chunks = append(chunks, models.SyncWindow{Since: cursor, Until: monthEnd})
		cursor = monthEnd.AddDate(0, 0, 1)
	}
	return chunks
}

// endOfMonth returns the last day of t's calendar month at UTC midnight.
func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// canonicalTask reports whether a task belongs to the canonical combination
// that feeds the coarse fact table and KPIs.
func canonicalTask(t models.Task, reportTime, attribution string) bool {
	return t.Level == models.LevelCampaign &&
		t.BreakdownKey == BreakdownNone &&
		t.ReportTime == reportTime &&
		t.Attribution == attribution
}

// canonicalVariant resolves the tenant's canonical report-time/attribution
// pair, falling back to the engine defaults. Reduced-variant tenants only run
// the impression/default pair, so their canonical choice is forced to it.
func canonicalVariant(conn *models.Connection) (string, string) {
	if conn.ReducedVariants {
		return ReportTimeImpression, AttributionDefault
	}

	reportTime := conn.CanonicalReportTime
	if reportTime == "" {
		reportTime = ReportTimeImpression
	}
	attribution := conn.CanonicalAttribution
	if attribution == "" {
		attribution = AttributionDefault
	}
	return reportTime, attribution
}
