// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/ohjayaxel/adsync/internal/database"
	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/models"
	syncengine "github.com/ohjayaxel/adsync/internal/sync"
)

// SyncManager is the handler's view of the sync manager.
type SyncManager interface {
	TriggerSync(ctx context.Context, req models.TriggerRequest) ([]models.TenantResult, error)
	SyncActive() bool
	LastSyncTime() time.Time
}

// Store is the handler's view of the data store.
type Store interface {
	Ping(ctx context.Context) error
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	GetConnection(ctx context.Context, tenantID string) (*models.Connection, error)
	UpsertConnection(ctx context.Context, conn *models.Connection) error
	ListJobLogs(ctx context.Context, tenantID string, limit int) ([]*models.JobLogEntry, error)
	ListKpiRows(ctx context.Context, tenantID, source string, since, until time.Time) ([]*models.KpiDailyRow, error)
}

// Handler serves the operational API.
type Handler struct {
	store   Store
	manager SyncManager
	source  string
	started time.Time
}

// NewHandler creates an API handler.
func NewHandler(store Store, manager SyncManager, source string) *Handler {
	return &Handler{
		store:   store,
		manager: manager,
		source:  source,
		started: time.Now(),
	}
}

// Health reports process liveness and store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		logging.Warn().Err(err).Msg("Health check: store unreachable")
	}

	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"sync_active":    h.manager.SyncActive(),
	})
}

// TriggerSync starts a sync run in the background. A run already in flight
// is a conflict, not a queue.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req models.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Mode == "" {
		req.Mode = models.ModeIncremental
	}
	if req.Mode != models.ModeIncremental && req.Mode != models.ModeBackfill {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "mode must be incremental or backfill")
		return
	}

	if h.manager.SyncActive() {
		writeError(w, http.StatusConflict, ErrCodeConflict, "a sync run is already in progress")
		return
	}

	go func() {
		// The request context dies with the HTTP response; the run gets
		// its own.
		results, err := h.manager.TriggerSync(context.Background(), req)
		if err != nil {
			if !errors.Is(err, syncengine.ErrSyncInProgress) {
				logging.Error().Err(err).Msg("Triggered sync failed")
			}
			return
		}
		for _, res := range results {
			logging.Info().
				Str("tenant", res.TenantID).
				Str("status", res.Status).
				Int64("rows", res.RowsInserted).
				Msg("Triggered sync finished")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"mode":   req.Mode,
		"tenant": req.TenantID,
	})
}

// SyncStatus reports whether a run is active and when the last one succeeded.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	var lastSync *time.Time
	if t := h.manager.LastSyncTime(); !t.IsZero() {
		lastSync = &t
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":    h.manager.SyncActive(),
		"last_sync": lastSync,
	})
}

// ListJobs returns job-log entries, newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := h.store.ListJobLogs(r.Context(), tenantID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list jobs")
		logging.Error().Err(err).Msg("Failed to list job logs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ListConnections returns all tenant connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.store.ListConnections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list connections")
		logging.Error().Err(err).Msg("Failed to list connections")
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

// GetConnection returns one tenant's connection.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "tenant_id is required")
		return
	}

	conn, err := h.store.GetConnection(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load connection")
		logging.Error().Err(err).Str("tenant", tenantID).Msg("Failed to load connection")
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// UpsertConnection creates or updates a tenant connection.
func (h *Handler) UpsertConnection(w http.ResponseWriter, r *http.Request) {
	var conn models.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if conn.TenantID == "" || conn.AccountID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "tenant_id and account_id are required")
		return
	}

	if err := h.store.UpsertConnection(r.Context(), &conn); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to save connection")
		logging.Error().Err(err).Str("tenant", conn.TenantID).Msg("Failed to upsert connection")
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// ListKpi returns KPI rows for a tenant and date range.
func (h *Handler) ListKpi(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "tenant_id is required")
		return
	}

	since, err := parseDateParam(r, "since", time.Now().UTC().AddDate(0, 0, -28))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	until, err := parseDateParam(r, "until", time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = h.source
	}

	rows, err := h.store.ListKpiRows(r.Context(), tenantID, source, since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list KPI rows")
		logging.Error().Err(err).Str("tenant", tenantID).Msg("Failed to list KPI rows")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse(models.DateFormat, s)
	if err != nil {
		return time.Time{}, errors.New(name + " must be a date in YYYY-MM-DD form")
	}
	return t, nil
}
