// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ohjayaxel/adsync/internal/database"
	"github.com/ohjayaxel/adsync/internal/models"
	"github.com/ohjayaxel/adsync/internal/platform"
)

// fakeClient serves canned report jobs keyed by a request fingerprint.
type fakeClient struct {
	mu      stdsync.Mutex
	nextRun int
	runs    map[string]platform.ReportRequest

	// rowsFor builds the result set for one request. Nil means one default
	// row per request dated at the range start.
	rowsFor func(req platform.ReportRequest) []platform.RawRow
	// failFor returns a poll-phase error for matching requests.
	failFor func(req platform.ReportRequest) error
	// startErrFor returns a start-phase error for matching requests.
	startErrFor func(req platform.ReportRequest) error
}

func newFakeClient() *fakeClient {
	return &fakeClient{runs: make(map[string]platform.ReportRequest)}
}

func (c *fakeClient) StartReport(_ context.Context, _, _ string, req platform.ReportRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErrFor != nil {
		if err := c.startErrFor(req); err != nil {
			return "", err
		}
	}
	c.nextRun++
	runID := "run_" + strconv.Itoa(c.nextRun)
	c.runs[runID] = req
	return runID, nil
}

func (c *fakeClient) PollReport(_ context.Context, runID, _ string) error {
	c.mu.Lock()
	req, ok := c.runs[runID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	if c.failFor != nil {
		return c.failFor(req)
	}
	return nil
}

func (c *fakeClient) FetchResults(_ context.Context, runID, _ string) ([]platform.RawRow, error) {
	c.mu.Lock()
	req, ok := c.runs[runID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown run %s", runID)
	}
	if c.rowsFor != nil {
		return c.rowsFor(req), nil
	}
	return []platform.RawRow{defaultRawRow(req.TimeRange.Since)}, nil
}

func defaultRawRow(date string) platform.RawRow {
	return platform.RawRow{
		"date_start":       date,
		"date_stop":        date,
		"account_id":       "act_1",
		"account_currency": "SEK",
		"campaign_id":      "c_1",
		"campaign_name":    "Campaign One",
		"ad_id":            "ad_1",
		"spend":            "10",
		"impressions":      "100",
		"clicks":           "5",
		"actions": []interface{}{
			map[string]interface{}{"action_type": "purchase", "value": "2"},
		},
		"action_values": []interface{}{
			map[string]interface{}{"action_type": "purchase", "value": "40"},
		},
	}
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu stdsync.Mutex

	connections map[string]*models.Connection
	daily       map[string]*models.DailyFactRow
	facts       []*models.CanonicalFactRow
	kpi         map[string]*models.KpiDailyRow
	jobs        map[uuid.UUID]*models.JobLogEntry

	stateUpdates     []string
	fallbackQueried  bool
	upsertErr        error
	factReplaceCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		connections: make(map[string]*models.Connection),
		daily:       make(map[string]*models.DailyFactRow),
		kpi:         make(map[string]*models.KpiDailyRow),
		jobs:        make(map[uuid.UUID]*models.JobLogEntry),
	}
}

func (s *fakeStore) GetConnection(_ context.Context, tenantID string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[tenantID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return conn, nil
}

func (s *fakeStore) ListConnections(context.Context) ([]*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) UpdateSyncState(_ context.Context, tenantID string, mode models.SyncMode, _, since, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateUpdates = append(s.stateUpdates, fmt.Sprintf("%s/%s/%s..%s",
		tenantID, mode, since.Format(models.DateFormat), until.Format(models.DateFormat)))
	return nil
}

func dailyKey(r *models.DailyFactRow) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		r.TenantID, r.Date.Format(models.DateFormat), r.Level, r.EntityID,
		r.ReportTime, r.Attribution, r.BreakdownHash)
}

func (s *fakeStore) UpsertDailyFacts(_ context.Context, rows []*models.DailyFactRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, r := range rows {
		s.daily[dailyKey(r)] = r
	}
	return nil
}

func (s *fakeStore) DailyFactDateRange(_ context.Context, tenantID string, since, until time.Time) (time.Time, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var minDate, maxDate time.Time
	found := false
	for _, r := range s.daily {
		if r.TenantID != tenantID || r.Date.Before(since) || r.Date.After(until) {
			continue
		}
		if !found || r.Date.Before(minDate) {
			minDate = r.Date
		}
		if !found || r.Date.After(maxDate) {
			maxDate = r.Date
		}
		found = true
	}
	return minDate, maxDate, found, nil
}

func (s *fakeStore) AggregateCanonicalDaily(_ context.Context, tenantID, _ string,
	level models.Level, reportTime, attribution, breakdownHash string,
	since, until time.Time) ([]database.DailyAggregate, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbackQueried = true

	byDate := make(map[string]*database.DailyAggregate)
	for _, r := range s.daily {
		if r.TenantID != tenantID || r.Level != level ||
			r.ReportTime != reportTime || r.Attribution != attribution ||
			r.BreakdownHash != breakdownHash ||
			r.Date.Before(since) || r.Date.After(until) {
			continue
		}
		key := r.Date.Format(models.DateFormat)
		agg, ok := byDate[key]
		if !ok {
			agg = &database.DailyAggregate{Date: r.Date, Currency: r.Currency}
			byDate[key] = agg
		}
		addRow(agg, r.Spend, r.Clicks, r.Conversions, r.Revenue)
	}

	out := make([]database.DailyAggregate, 0, len(byDate))
	for _, a := range byDate {
		out = append(out, *a)
	}
	return out, nil
}

func addRow(agg *database.DailyAggregate, spend *float64, clicks *int64, conversions, revenue *float64) {
	if spend != nil {
		agg.Spend += *spend
	}
	if clicks != nil {
		agg.Clicks += *clicks
	}
	if conversions != nil {
		agg.Conversions += *conversions
	}
	if revenue != nil {
		agg.Revenue += *revenue
	}
}

func (s *fakeStore) ReplaceFactWindow(_ context.Context, tenantID, accountID string,
	since, until time.Time, rows []*models.CanonicalFactRow) error {

	s.mu.Lock()
	defer s.mu.Unlock()
	s.factReplaceCalls++

	kept := s.facts[:0]
	for _, r := range s.facts {
		if r.TenantID == tenantID && r.AccountID == accountID &&
			!r.Date.Before(since) && !r.Date.After(until) {
			continue
		}
		kept = append(kept, r)
	}
	s.facts = append(kept, rows...)
	return nil
}

func (s *fakeStore) AggregateFactsByDate(_ context.Context, tenantID, accountID string,
	since, until time.Time) ([]database.DailyAggregate, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate := make(map[string]*database.DailyAggregate)
	for _, r := range s.facts {
		if r.TenantID != tenantID || r.AccountID != accountID ||
			r.Date.Before(since) || r.Date.After(until) {
			continue
		}
		key := r.Date.Format(models.DateFormat)
		agg, ok := byDate[key]
		if !ok {
			agg = &database.DailyAggregate{Date: r.Date, Currency: r.Currency}
			byDate[key] = agg
		}
		addRow(agg, r.Spend, r.Clicks, r.Conversions, r.Revenue)
	}

	out := make([]database.DailyAggregate, 0, len(byDate))
	for _, a := range byDate {
		out = append(out, *a)
	}
	return out, nil
}

func (s *fakeStore) UpsertKpiRows(_ context.Context, rows []*models.KpiDailyRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.kpi[r.TenantID+"|"+r.Date.Format(models.DateFormat)+"|"+r.Source] = r
	}
	return nil
}

func (s *fakeStore) InsertJobLog(_ context.Context, entry *models.JobLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.JobStatusRunning
	}
	clone := *entry
	s.jobs[entry.ID] = &clone
	return nil
}

func (s *fakeStore) FinishJobLog(_ context.Context, id uuid.UUID, status string, errMsg string, rowsInserted int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	job.Status = status
	job.RowsInserted = rowsInserted
	if errMsg != "" {
		job.Error = &errMsg
	}
	now := time.Now().UTC()
	job.FinishedAt = &now
	return nil
}

func (s *fakeStore) jobStatuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, j := range s.jobs {
		out = append(out, j.Status)
	}
	return out
}

// newTestEngine wires a fake stack for one reduced-variant tenant with a
// three-day window ending on the fixed test clock.
func newTestEngine(store *fakeStore, client *fakeClient) *Engine {
	e := NewEngine(store, client, platform.NewStaticTokenProvider("tok"), nil, testSyncConfig())
	e.now = func() time.Time { return day("2026-08-29") }
	return e
}

func seedConnection(store *fakeStore) {
	store.connections["tenant-a"] = &models.Connection{
		ID:              uuid.New(),
		TenantID:        "tenant-a",
		AccountID:       "act_1",
		SyncStartDate:   dayPtr("2026-08-27"),
		ReducedVariants: true,
	}
}

func TestEngineRunHappyPath(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	client := newFakeClient()
	engine := newTestEngine(store, client)

	results, err := engine.Run(context.Background(), models.TriggerRequest{
		TenantID: "tenant-a",
		Mode:     models.ModeIncremental,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s (%s)", results[0].Status, results[0].Error)
	}

	// Reduced variants: 3 levels x 4 breakdown sets x 1 variant x 1 chunk,
	// one row each.
	if results[0].RowsInserted != 12 {
		t.Errorf("rows inserted = %d, want 12", results[0].RowsInserted)
	}

	// Canonical combination (campaign, no breakdown) materialized alone.
	if store.factReplaceCalls != 1 {
		t.Errorf("fact replacements = %d, want 1", store.factReplaceCalls)
	}
	if len(store.facts) != 1 {
		t.Fatalf("fact rows = %d, want 1", len(store.facts))
	}
	if store.facts[0].Level != models.LevelCampaign || store.facts[0].EntityID != "c_1" {
		t.Errorf("fact row = %+v", store.facts[0])
	}

	// KPI rows gap-fill the whole window (2026-08-27..2026-08-29).
	if len(store.kpi) != 3 {
		t.Errorf("kpi rows = %d, want 3", len(store.kpi))
	}
	populated := store.kpi["tenant-a|2026-08-27|ads"]
	if populated == nil || populated.Spend != 10 || populated.Revenue != 40 {
		t.Errorf("populated kpi = %+v", populated)
	}
	if populated.ROAS == nil || *populated.ROAS != 4 {
		t.Errorf("roas = %v, want 4", populated.ROAS)
	}
	gap := store.kpi["tenant-a|2026-08-28|ads"]
	if gap == nil || gap.Spend != 0 || gap.ROAS != nil {
		t.Errorf("gap kpi = %+v", gap)
	}

	// Watermark records the actual produced dates, not the whole window:
	// every row is dated at the chunk start.
	if len(store.stateUpdates) != 1 || store.stateUpdates[0] != "tenant-a/incremental/2026-08-27..2026-08-27" {
		t.Errorf("state updates = %v", store.stateUpdates)
	}

	statuses := store.jobStatuses()
	if len(statuses) != 1 || statuses[0] != models.JobStatusSucceeded {
		t.Errorf("job statuses = %v", statuses)
	}
}

func TestEngineRunMissingToken(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	client := newFakeClient()
	engine := NewEngine(store, client, platform.NewStaticTokenProvider(""), nil, testSyncConfig())
	engine.now = func() time.Time { return day("2026-08-29") }

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != models.JobStatusFailed {
		t.Fatalf("status = %s, want failed", results[0].Status)
	}
	if len(client.runs) != 0 {
		t.Error("no report jobs should start without a token")
	}

	statuses := store.jobStatuses()
	if len(statuses) != 1 || statuses[0] != models.JobStatusFailed {
		t.Errorf("job statuses = %v", statuses)
	}
}

func TestEngineRunMissingAccount(t *testing.T) {
	store := newFakeStore()
	store.connections["tenant-a"] = &models.Connection{TenantID: "tenant-a", ReducedVariants: true}
	engine := newTestEngine(store, newFakeClient())

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed on missing account", results[0].Status)
	}
}

func TestEngineTaskTimeoutIsolated(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	client := newFakeClient()
	client.failFor = func(req platform.ReportRequest) error {
		if req.Level == string(models.LevelAd) && len(req.Breakdowns) == 0 {
			return fmt.Errorf("report did not complete: %w", platform.ErrPollTimeout)
		}
		return nil
	}
	engine := newTestEngine(store, client)

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Partial success is reported as succeeded; the other 11 tasks' rows
	// are persisted.
	if results[0].Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s (%s), want succeeded", results[0].Status, results[0].Error)
	}
	if results[0].RowsInserted != 11 {
		t.Errorf("rows inserted = %d, want 11", results[0].RowsInserted)
	}
}

func TestEnginePermissionErrorSoft(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	client := newFakeClient()
	client.startErrFor = func(req platform.ReportRequest) error {
		if len(req.Breakdowns) == 1 && req.Breakdowns[0] == "publisher_platform" {
			return &platform.APIError{Status: http.StatusForbidden, Message: "field not allowed"}
		}
		return nil
	}
	engine := newTestEngine(store, client)

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s (%s), want succeeded on soft permission failures", results[0].Status, results[0].Error)
	}
	if results[0].RowsInserted != 9 {
		t.Errorf("rows inserted = %d, want 9 (3 publisher_platform tasks skipped)", results[0].RowsInserted)
	}
}

func TestEngineAllTasksFailed(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	client := newFakeClient()
	client.failFor = func(platform.ReportRequest) error {
		return errors.New("backend exploded")
	}
	engine := newTestEngine(store, client)

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed when every task hard-fails", results[0].Status)
	}
	if len(store.stateUpdates) != 0 {
		t.Errorf("watermark must not advance on a failed run, got %v", store.stateUpdates)
	}
}

func TestEngineCanonicalFallback(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)

	// Previously stored canonical daily rows from an earlier run.
	spend := 25.0
	cid := "c_9"
	prior := &models.DailyFactRow{
		TenantID:      "tenant-a",
		Date:          day("2026-08-28"),
		Level:         models.LevelCampaign,
		EntityID:      "c_9",
		ReportTime:    ReportTimeImpression,
		Attribution:   AttributionDefault,
		BreakdownHash: BreakdownHash(nil),
		AccountID:     "act_1",
		CampaignID:    &cid,
		Currency:      "SEK",
		Spend:         &spend,
	}
	store.daily[dailyKey(prior)] = prior

	client := newFakeClient()
	client.rowsFor = func(req platform.ReportRequest) []platform.RawRow {
		// The canonical combination yields nothing this run.
		if req.Level == string(models.LevelCampaign) && len(req.Breakdowns) == 0 {
			return nil
		}
		return []platform.RawRow{defaultRawRow(req.TimeRange.Since)}
	}
	engine := newTestEngine(store, client)

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s (%s)", results[0].Status, results[0].Error)
	}

	if store.factReplaceCalls != 0 {
		t.Errorf("fact window replaced %d times, want 0 on empty canonical pass", store.factReplaceCalls)
	}
	if !store.fallbackQueried {
		t.Error("KPI aggregation must fall back to stored daily rows")
	}

	kpi := store.kpi["tenant-a|2026-08-28|ads"]
	if kpi == nil || kpi.Spend != 25 {
		t.Errorf("fallback kpi = %+v, want spend 25 from prior daily rows", kpi)
	}
}

func TestEnginePersistenceErrorFatal(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	store.upsertErr = errors.New("disk full")
	engine := newTestEngine(store, newFakeClient())

	results, err := engine.Run(context.Background(), models.TriggerRequest{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed on persistence error", results[0].Status)
	}
}

func TestEngineRunAllTenants(t *testing.T) {
	store := newFakeStore()
	seedConnection(store)
	store.connections["tenant-b"] = &models.Connection{
		ID:              uuid.New(),
		TenantID:        "tenant-b",
		AccountID:       "act_2",
		SyncStartDate:   dayPtr("2026-08-28"),
		ReducedVariants: true,
	}

	engine := newTestEngine(store, newFakeClient())
	results, err := engine.Run(context.Background(), models.TriggerRequest{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 tenants", len(results))
	}
	for _, r := range results {
		if r.Status != models.JobStatusSucceeded {
			t.Errorf("tenant %s status = %s (%s)", r.TenantID, r.Status, r.Error)
		}
	}
}
