// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/models"
)

// newTestDB creates a DuckDB-backed store in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "512MB",
		Threads:   1,
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateFormat, s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func str(s string) *string   { return &s }

func testFactRow(t *testing.T, day string, spend float64) *models.DailyFactRow {
	t.Helper()
	return &models.DailyFactRow{
		TenantID:      "t-1",
		Date:          date(t, day),
		Level:         models.LevelCampaign,
		EntityID:      "c-100",
		ReportTime:    "impression",
		Attribution:   "7d_click,1d_view",
		BreakdownHash: "none",
		AccountID:     "act_1",
		CampaignID:    str("c-100"),
		CampaignName:  str("Spring Sale"),
		Currency:      "SEK",
		BreakdownJSON: "{}",
		Spend:         f64(spend),
		Impressions:   i64(1000),
		Clicks:        i64(50),
		Conversions:   f64(5),
		Revenue:       f64(2500),
	}
}

func TestUpsertDailyFactsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rows := []*models.DailyFactRow{
		testFactRow(t, "2025-11-01", 100),
		testFactRow(t, "2025-11-02", 200),
	}

	if err := db.UpsertDailyFacts(ctx, rows); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := db.UpsertDailyFacts(ctx, rows); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	n, err := db.CountDailyFacts(ctx, "t-1", date(t, "2025-11-01"), date(t, "2025-11-30"))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows after double upsert, got %d", n)
	}
}

func TestUpsertDailyFactsOverwritesInPlace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertDailyFacts(ctx, []*models.DailyFactRow{testFactRow(t, "2025-11-01", 100)}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Same composite key, revised spend - must overwrite, not append.
	revised := testFactRow(t, "2025-11-01", 175)
	if err := db.UpsertDailyFacts(ctx, []*models.DailyFactRow{revised}); err != nil {
		t.Fatalf("revised upsert failed: %v", err)
	}

	aggs, err := db.AggregateCanonicalDaily(ctx, "t-1", "act_1",
		models.LevelCampaign, "impression", "7d_click,1d_view", "none",
		date(t, "2025-11-01"), date(t, "2025-11-01"))
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("expected 1 aggregate row, got %d", len(aggs))
	}
	if aggs[0].Spend != 175 {
		t.Errorf("expected revised spend 175, got %v", aggs[0].Spend)
	}
}

func TestReplaceFactWindowNoCrossCombinationContamination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	since, until := date(t, "2025-11-01"), date(t, "2025-11-30")

	first := []*models.CanonicalFactRow{
		{TenantID: "t-1", AccountID: "act_1", Date: date(t, "2025-11-01"),
			Level: models.LevelCampaign, EntityID: "c-old", Currency: "SEK", Spend: f64(10)},
	}
	if err := db.ReplaceFactWindow(ctx, "t-1", "act_1", since, until, first); err != nil {
		t.Fatalf("first replace failed: %v", err)
	}

	second := []*models.CanonicalFactRow{
		{TenantID: "t-1", AccountID: "act_1", Date: date(t, "2025-11-02"),
			Level: models.LevelCampaign, EntityID: "c-new", Currency: "SEK", Spend: f64(20)},
	}
	if err := db.ReplaceFactWindow(ctx, "t-1", "act_1", since, until, second); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	rows, err := db.ListFactRows(ctx, "t-1", "act_1", since, until)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row after replace, got %d", len(rows))
	}
	if rows[0].EntityID != "c-new" {
		t.Errorf("expected only the new combination's row, got entity %s", rows[0].EntityID)
	}
}

func TestReplaceFactWindowScopedToWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	october := []*models.CanonicalFactRow{
		{TenantID: "t-1", AccountID: "act_1", Date: date(t, "2025-10-15"),
			Level: models.LevelCampaign, EntityID: "c-oct", Currency: "SEK", Spend: f64(5)},
	}
	if err := db.ReplaceFactWindow(ctx, "t-1", "act_1", date(t, "2025-10-01"), date(t, "2025-10-31"), october); err != nil {
		t.Fatalf("october replace failed: %v", err)
	}

	// Replacing November must not touch October rows.
	if err := db.ReplaceFactWindow(ctx, "t-1", "act_1", date(t, "2025-11-01"), date(t, "2025-11-30"), nil); err != nil {
		t.Fatalf("november replace failed: %v", err)
	}

	rows, err := db.ListFactRows(ctx, "t-1", "act_1", date(t, "2025-10-01"), date(t, "2025-10-31"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 || rows[0].EntityID != "c-oct" {
		t.Errorf("october rows should be untouched, got %d rows", len(rows))
	}
}

func TestUpsertKpiRowsMergeSemantics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	day1 := &models.KpiDailyRow{
		TenantID: "t-1", Date: date(t, "2025-11-01"), Source: "ads",
		Currency: "SEK", Spend: 100, Clicks: 10, Conversions: 2, Revenue: 500,
		ROAS: f64(5),
	}
	day2 := &models.KpiDailyRow{
		TenantID: "t-1", Date: date(t, "2025-11-02"), Source: "ads",
		Currency: "SEK", Spend: 50, Clicks: 5, Conversions: 1, Revenue: 100,
		ROAS: f64(2),
	}
	if err := db.UpsertKpiRows(ctx, []*models.KpiDailyRow{day1, day2}); err != nil {
		t.Fatalf("initial upsert failed: %v", err)
	}

	// A later run that only covers day 2 must not erase day 1.
	day2.Spend = 75
	if err := db.UpsertKpiRows(ctx, []*models.KpiDailyRow{day2}); err != nil {
		t.Fatalf("merge upsert failed: %v", err)
	}

	rows, err := db.ListKpiRows(ctx, "t-1", "ads", date(t, "2025-11-01"), date(t, "2025-11-02"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 KPI rows, got %d", len(rows))
	}
	if rows[0].Spend != 100 {
		t.Errorf("day 1 spend should survive, got %v", rows[0].Spend)
	}
	if rows[1].Spend != 75 {
		t.Errorf("day 2 spend should be updated to 75, got %v", rows[1].Spend)
	}
}

func TestConnectionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := date(t, "2025-01-01")
	conn := &models.Connection{
		TenantID:            "t-1",
		AccountID:           "act_1",
		SyncStartDate:       &start,
		ReducedVariants:     true,
		CanonicalReportTime: "conversion",
	}
	if err := db.UpsertConnection(ctx, conn); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := db.GetConnection(ctx, "t-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.AccountID != "act_1" || !got.ReducedVariants {
		t.Errorf("unexpected connection: %+v", got)
	}
	if got.SyncStartDate == nil || !got.SyncStartDate.Equal(start) {
		t.Errorf("sync start date mismatch: %v", got.SyncStartDate)
	}
	if got.CanonicalReportTime != "conversion" {
		t.Errorf("canonical report time mismatch: %q", got.CanonicalReportTime)
	}

	if _, err := db.GetConnection(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing tenant, got %v", err)
	}
}

func TestUpdateSyncStateModesAreIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertConnection(ctx, &models.Connection{TenantID: "t-1", AccountID: "act_1"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	incSince, incUntil := date(t, "2025-11-01"), date(t, "2025-11-28")
	bfSince, bfUntil := date(t, "2023-01-01"), date(t, "2025-11-28")

	if err := db.UpdateSyncState(ctx, "t-1", models.ModeIncremental, now, incSince, incUntil); err != nil {
		t.Fatalf("incremental update failed: %v", err)
	}
	if err := db.UpdateSyncState(ctx, "t-1", models.ModeBackfill, now, bfSince, bfUntil); err != nil {
		t.Fatalf("backfill update failed: %v", err)
	}

	got, err := db.GetConnection(ctx, "t-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if got.State.LastSyncedSince == nil || !got.State.LastSyncedSince.Equal(incSince) {
		t.Errorf("incremental watermark since mismatch: %v", got.State.LastSyncedSince)
	}
	if got.State.LastBackfillSince == nil || !got.State.LastBackfillSince.Equal(bfSince) {
		t.Errorf("backfill watermark since mismatch: %v", got.State.LastBackfillSince)
	}
	if got.State.LastSyncedUntil == nil || !got.State.LastSyncedUntil.Equal(incUntil) {
		t.Errorf("incremental watermark until mismatch: %v", got.State.LastSyncedUntil)
	}
	if got.State.LastBackfillUntil == nil || !got.State.LastBackfillUntil.Equal(bfUntil) {
		t.Errorf("backfill watermark until mismatch: %v", got.State.LastBackfillUntil)
	}
}

func TestJobLogLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &models.JobLogEntry{
		TenantID:  "t-1",
		Mode:      models.ModeIncremental,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := db.InsertJobLog(ctx, entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := db.FinishJobLog(ctx, entry.ID, models.JobStatusFailed, "poll timeout", 120); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	entries, err := db.ListJobLogs(ctx, "t-1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	got := entries[0]
	if got.Status != models.JobStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error == nil || *got.Error != "poll timeout" {
		t.Errorf("error = %v, want poll timeout", got.Error)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at should be set")
	}
	if got.RowsInserted != 120 {
		t.Errorf("rows_inserted = %d, want 120", got.RowsInserted)
	}
}

func TestDailyFactDateRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, _, ok, err := db.DailyFactDateRange(ctx, "t-1", date(t, "2025-11-01"), date(t, "2025-11-30"))
	if err != nil {
		t.Fatalf("empty range query failed: %v", err)
	}
	if ok {
		t.Error("expected no range for empty table")
	}

	rows := []*models.DailyFactRow{
		testFactRow(t, "2025-11-05", 10),
		testFactRow(t, "2025-11-20", 20),
	}
	if err := db.UpsertDailyFacts(ctx, rows); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	minD, maxD, ok, err := db.DailyFactDateRange(ctx, "t-1", date(t, "2025-11-01"), date(t, "2025-11-30"))
	if err != nil {
		t.Fatalf("range query failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a range")
	}
	if !minD.Equal(date(t, "2025-11-05")) || !maxD.Equal(date(t, "2025-11-20")) {
		t.Errorf("range = %s..%s, want 2025-11-05..2025-11-20",
			minD.Format(models.DateFormat), maxD.Format(models.DateFormat))
	}
}
