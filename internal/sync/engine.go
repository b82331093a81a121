// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

/*
engine.go - Sync Run Orchestration

The engine drives one sync run end to end, per tenant:

  Window Resolver -> Task Matrix Builder -> bounded Scheduler ->
  (Async Report Client x N) -> Row Normalizer -> Daily-Grain Upserter,
  with the canonical subset additionally materialized into the coarse fact
  table and the daily KPI aggregate, then the watermark and job log updated.

Error taxonomy:
  - Configuration errors (missing token, no account) fail the tenant's run
    immediately, no retries.
  - Transient platform errors are retried inside the HTTP client; exhausted
    retries escalate to a task-level failure.
  - Task-level failures are isolated; sibling tasks keep running and the run
    reports partial success as succeeded with the caveat in log fields.
  - Permission/entity-not-found platform errors are soft: logged as warnings,
    the run continues on whatever data is already stored.
  - Persistence errors are fatal to the run.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/ohjayaxel/adsync/internal/config"
	"github.com/ohjayaxel/adsync/internal/database"
	"github.com/ohjayaxel/adsync/internal/events"
	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/metrics"
	"github.com/ohjayaxel/adsync/internal/models"
	"github.com/ohjayaxel/adsync/internal/platform"
)

// Store is the engine's view of the data store. Implemented by *database.DB.
type Store interface {
	GetConnection(ctx context.Context, tenantID string) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	UpdateSyncState(ctx context.Context, tenantID string, mode models.SyncMode, syncedAt, since, until time.Time) error

	UpsertDailyFacts(ctx context.Context, rows []*models.DailyFactRow) error
	DailyFactDateRange(ctx context.Context, tenantID string, since, until time.Time) (time.Time, time.Time, bool, error)
	AggregateCanonicalDaily(ctx context.Context, tenantID, accountID string,
		level models.Level, reportTime, attribution, breakdownHash string,
		since, until time.Time) ([]database.DailyAggregate, error)

	ReplaceFactWindow(ctx context.Context, tenantID, accountID string,
		since, until time.Time, rows []*models.CanonicalFactRow) error
	AggregateFactsByDate(ctx context.Context, tenantID, accountID string,
		since, until time.Time) ([]database.DailyAggregate, error)

	UpsertKpiRows(ctx context.Context, rows []*models.KpiDailyRow) error

	InsertJobLog(ctx context.Context, entry *models.JobLogEntry) error
	FinishJobLog(ctx context.Context, id uuid.UUID, status string, errMsg string, rowsInserted int64) error
}

// reportFields is the metric field list requested on every report job.
var reportFields = []string{
	"account_id", "account_currency",
	"campaign_id", "campaign_name", "adset_id", "ad_id", "ad_name",
	"spend", "impressions", "clicks", "actions", "action_values",
}

// Engine executes sync runs. Safe for concurrent use; concurrent runs for
// the same tenant are safe through upsert idempotency, not mutual exclusion.
type Engine struct {
	store     Store
	client    platform.ReportClient
	tokens    platform.TokenProvider
	publisher events.Publisher
	cfg       *config.SyncConfig

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewEngine creates a sync engine. A nil publisher disables eventing.
func NewEngine(store Store, client platform.ReportClient, tokens platform.TokenProvider, publisher events.Publisher, cfg *config.SyncConfig) *Engine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		store:     store,
		client:    client,
		tokens:    tokens,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run executes a sync run for one tenant or, when req.TenantID is empty, for
// every connected tenant. Per-tenant outcomes are collected; one tenant's
// failure never aborts the others.
func (e *Engine) Run(ctx context.Context, req models.TriggerRequest) ([]models.TenantResult, error) {
	if req.Mode == "" {
		req.Mode = models.ModeIncremental
	}

	conns, err := e.resolveConnections(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]models.TenantResult, 0, len(conns))
	for _, conn := range conns {
		results = append(results, e.syncTenant(ctx, conn, req))
	}
	return results, nil
}

func (e *Engine) resolveConnections(ctx context.Context, req models.TriggerRequest) ([]*models.Connection, error) {
	if req.TenantID != "" {
		conn, err := e.store.GetConnection(ctx, req.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load connection for tenant %s: %w", req.TenantID, err)
		}
		return []*models.Connection{conn}, nil
	}

	conns, err := e.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// syncTenant runs the full pipeline for one tenant and always leaves the job
// log with a terminal status.
func (e *Engine) syncTenant(ctx context.Context, conn *models.Connection, req models.TriggerRequest) models.TenantResult {
	start := e.now()
	tenantID := conn.TenantID

	entry := &models.JobLogEntry{
		TenantID:  tenantID,
		Mode:      req.Mode,
		StartedAt: start.UTC(),
	}
	if err := e.store.InsertJobLog(ctx, entry); err != nil {
		return failedResult(tenantID, fmt.Errorf("failed to open job log: %w", err))
	}

	result, runErr := e.runTenant(ctx, conn, req)

	status := models.JobStatusSucceeded
	errMsg := ""
	if runErr != nil {
		status = models.JobStatusFailed
		errMsg = runErr.Error()
	}
	if err := e.store.FinishJobLog(ctx, entry.ID, status, errMsg, result.rowsInserted); err != nil {
		logging.Error().Err(err).Str("tenant", tenantID).Msg("Failed to finalize job log")
	}

	metrics.SyncDuration.WithLabelValues(string(req.Mode)).Observe(e.now().Sub(start).Seconds())

	evt := events.NewSyncRunCompleted(tenantID, conn.AccountID, req.Mode)
	evt.Status = status
	evt.RowsInserted = result.rowsInserted
	evt.TasksFailed = result.tasksFailed
	evt.Error = errMsg
	if !result.window.Since.IsZero() {
		evt.WindowSince = result.window.Since.Format(models.DateFormat)
		evt.WindowUntil = result.window.Until.Format(models.DateFormat)
	}
	if err := e.publisher.PublishRunCompleted(ctx, evt); err != nil {
		logging.Warn().Err(err).Str("tenant", tenantID).Msg("Failed to publish run-completed event")
	}

	if runErr != nil {
		logging.Error().Err(runErr).Str("tenant", tenantID).Str("mode", string(req.Mode)).Msg("Sync run failed")
		return failedResult(tenantID, runErr)
	}

	metrics.SyncLastSuccess.WithLabelValues(tenantID).Set(float64(e.now().Unix()))
	logging.Info().
		Str("tenant", tenantID).
		Str("mode", string(req.Mode)).
		Str("window", result.window.String()).
		Int64("rows", result.rowsInserted).
		Int("tasks_failed", result.tasksFailed).
		Dur("duration", e.now().Sub(start)).
		Msg("Sync run completed")

	return models.TenantResult{
		TenantID:     tenantID,
		Status:       models.JobStatusSucceeded,
		RowsInserted: result.rowsInserted,
	}
}

// runSummary carries a run's internal accounting between phases.
type runSummary struct {
	window       models.SyncWindow
	rowsInserted int64
	tasksFailed  int
}

// runTenant executes everything between job-log open and close. Returns the
// run's terminal error, nil on success or partial success.
func (e *Engine) runTenant(ctx context.Context, conn *models.Connection, req models.TriggerRequest) (runSummary, error) {
	var summary runSummary
	tenantID := conn.TenantID

	accountID := req.AccountID
	if accountID == "" {
		accountID = conn.AccountID
	}
	if accountID == "" {
		return summary, fmt.Errorf("tenant %s has no ad account selected", tenantID)
	}

	token, err := e.tokens.Token(ctx, tenantID)
	if err != nil {
		return summary, fmt.Errorf("token resolution failed: %w", err)
	}

	window, err := ResolveWindow(e.cfg, conn, req, e.now())
	if err != nil {
		return summary, err
	}
	summary.window = window

	tasks := BuildTasks(window, conn.ReducedVariants)
	canonReportTime, canonAttribution := canonicalVariant(conn)

	logging.Info().
		Str("tenant", tenantID).
		Str("account", accountID).
		Str("window", window.String()).
		Int("tasks", len(tasks)).
		Bool("reduced_variants", conn.ReducedVariants).
		Msg("Sync run starting")

	// Canonical rows are collected across workers for the coarse fact pass.
	var canonMu stdsync.Mutex
	var canonRows []*models.CanonicalFactRow

	var persistErr error
	var persistMu stdsync.Mutex

	results := runTasks(tasks, e.cfg.Parallelism, func(task models.Task) taskResult {
		res := e.runTask(ctx, tenantID, accountID, token, task)
		if res.Err != nil {
			var pe *persistenceError
			if errors.As(res.Err, &pe) {
				persistMu.Lock()
				if persistErr == nil {
					persistErr = pe.err
				}
				persistMu.Unlock()
			}
			return res
		}

		if canonicalTask(task, canonReportTime, canonAttribution) {
			canonMu.Lock()
			canonRows = append(canonRows, res.canonical...)
			canonMu.Unlock()
		}
		return res
	})

	if persistErr != nil {
		return summary, fmt.Errorf("persistence failure: %w", persistErr)
	}

	softFailures := 0
	hardFailures := 0
	for _, r := range results {
		summary.rowsInserted += r.Rows
		if r.Err == nil {
			metrics.SyncTasksTotal.WithLabelValues("succeeded").Inc()
			continue
		}
		metrics.SyncTasksTotal.WithLabelValues("failed").Inc()
		if platform.IsPermissionError(r.Err) {
			softFailures++
			logging.Warn().Err(r.Err).Str("tenant", tenantID).Str("task", r.Task.Key()).Msg("Task skipped on permission error")
		} else {
			hardFailures++
			logging.Warn().Err(r.Err).Str("tenant", tenantID).Str("task", r.Task.Key()).Msg("Task failed")
		}
	}
	summary.tasksFailed = softFailures + hardFailures

	// All tasks hard-failing with nothing persisted is a failed run, not a
	// partial success.
	if hardFailures == len(tasks) && len(tasks) > 0 {
		return summary, fmt.Errorf("all %d tasks failed, first error: %w", len(tasks), firstError(results))
	}

	if err := e.materializeCanonical(ctx, conn, accountID, window, canonRows, canonReportTime, canonAttribution); err != nil {
		return summary, err
	}

	if err := e.recordWatermark(ctx, tenantID, req.Mode, window); err != nil {
		return summary, err
	}

	return summary, nil
}

func firstError(results []taskResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return errors.New("unknown task error")
}

// persistenceError marks a store write failure inside a task, which must
// fail the whole run rather than just the task.
type persistenceError struct {
	err error
}

func (e *persistenceError) Error() string { return e.err.Error() }
func (e *persistenceError) Unwrap() error { return e.err }

// runTask drives one matrix combination through the async report protocol
// and persists its normalized rows.
func (e *Engine) runTask(ctx context.Context, tenantID, accountID, token string, task models.Task) taskResult {
	res := taskResult{Task: task}

	req := platform.ReportRequest{
		Fields: reportFields,
		Level:  string(task.Level),
		TimeRange: platform.TimeRange{
			Since: task.Since.Format(models.DateFormat),
			Until: task.Until.Format(models.DateFormat),
		},
		TimeIncrement:            1,
		Breakdowns:               task.BreakdownFields,
		ActionReportTime:         task.ReportTime,
		ActionAttributionWindows: strings.Split(task.Attribution, ","),
	}

	runID, err := e.client.StartReport(ctx, accountID, token, req)
	if err != nil {
		res.Err = fmt.Errorf("start phase: %w", err)
		return res
	}

	if err := e.client.PollReport(ctx, runID, token); err != nil {
		res.Err = fmt.Errorf("poll phase: %w", err)
		return res
	}

	rawRows, err := e.client.FetchResults(ctx, runID, token)
	if err != nil {
		res.Err = fmt.Errorf("fetch phase: %w", err)
		return res
	}

	normalized := make([]*models.NormalizedRow, 0, len(rawRows))
	dropped := 0
	for _, raw := range rawRows {
		row := NormalizeRow(raw, task)
		if row == nil {
			dropped++
			continue
		}
		normalized = append(normalized, row)
	}
	if dropped > 0 {
		metrics.SyncRowsDropped.Add(float64(dropped))
		logging.Debug().Str("task", task.Key()).Int("dropped", dropped).Msg("Dropped unnormalizable rows")
	}

	factRows := buildDailyFactRows(tenantID, task, normalized)
	if err := upsertInBatches(ctx, e.store, factRows, e.cfg.BatchSize); err != nil {
		res.Err = &persistenceError{err: err}
		return res
	}

	res.Rows = int64(len(factRows))
	res.canonical = toCanonicalRows(accountID, factRows)
	return res
}

// toCanonicalRows projects fine-grained rows of a canonical task into coarse
// fact rows.
func toCanonicalRows(accountID string, rows []*models.DailyFactRow) []*models.CanonicalFactRow {
	out := make([]*models.CanonicalFactRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.CanonicalFactRow{
			TenantID:    r.TenantID,
			AccountID:   accountID,
			Date:        r.Date,
			Level:       r.Level,
			EntityID:    r.EntityID,
			EntityName:  r.CampaignName,
			Currency:    r.Currency,
			Spend:       r.Spend,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Conversions: r.Conversions,
			Revenue:     r.Revenue,
		})
	}
	return out
}

// materializeCanonical replaces the coarse fact window and upserts the KPI
// aggregate. When the canonical pass produced nothing this run, KPIs fall
// back to previously stored daily rows filtered to the canonical key.
func (e *Engine) materializeCanonical(ctx context.Context, conn *models.Connection, accountID string,
	window models.SyncWindow, canonRows []*models.CanonicalFactRow, reportTime, attribution string) error {

	tenantID := conn.TenantID

	var aggs []database.DailyAggregate
	var err error

	if len(canonRows) > 0 {
		sort.Slice(canonRows, func(i, j int) bool {
			if !canonRows[i].Date.Equal(canonRows[j].Date) {
				return canonRows[i].Date.Before(canonRows[j].Date)
			}
			return canonRows[i].EntityID < canonRows[j].EntityID
		})

		if err := e.store.ReplaceFactWindow(ctx, tenantID, accountID, window.Since, window.Until, canonRows); err != nil {
			return fmt.Errorf("failed to replace fact window: %w", err)
		}

		aggs, err = e.store.AggregateFactsByDate(ctx, tenantID, accountID, window.Since, window.Until)
		if err != nil {
			return fmt.Errorf("failed to aggregate facts: %w", err)
		}
	} else {
		// Fallback path: the canonical task produced no rows this run, so
		// aggregate whatever the daily table already holds for the
		// canonical key.
		logging.Warn().Str("tenant", tenantID).Str("window", window.String()).Msg("Canonical pass empty, aggregating KPIs from stored daily rows")
		aggs, err = e.store.AggregateCanonicalDaily(ctx, tenantID, accountID,
			models.LevelCampaign, reportTime, attribution, BreakdownHash(nil),
			window.Since, window.Until)
		if err != nil {
			return fmt.Errorf("failed to aggregate stored daily rows: %w", err)
		}
	}

	kpiRows := BuildKpiRows(tenantID, e.cfg.Source, window, aggs)
	if err := e.store.UpsertKpiRows(ctx, kpiRows); err != nil {
		return fmt.Errorf("failed to upsert KPI rows: %w", err)
	}
	return nil
}

// recordWatermark persists the actual produced date range, not the requested
// window, so a partially covered window never advances the watermark past
// unsynced dates.
func (e *Engine) recordWatermark(ctx context.Context, tenantID string, mode models.SyncMode, window models.SyncWindow) error {
	minDate, maxDate, ok, err := e.store.DailyFactDateRange(ctx, tenantID, window.Since, window.Until)
	if err != nil {
		return fmt.Errorf("failed to read produced date range: %w", err)
	}
	if !ok {
		logging.Warn().Str("tenant", tenantID).Str("window", window.String()).Msg("No rows produced, watermark unchanged")
		return nil
	}

	if err := e.store.UpdateSyncState(ctx, tenantID, mode, e.now().UTC(), minDate, maxDate); err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

func failedResult(tenantID string, err error) models.TenantResult {
	return models.TenantResult{
		TenantID: tenantID,
		Status:   models.JobStatusFailed,
		Error:    err.Error(),
	}
}
