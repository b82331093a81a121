// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ohjayaxel/adsync/internal/models"
)

// InsertJobLog writes a run's initial job-log row with status running.
func (db *DB) InsertJobLog(ctx context.Context, entry *models.JobLogEntry) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.JobStatusRunning
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_jobs (id, tenant_id, mode, started_at, status, rows_inserted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, string(entry.Mode), entry.StartedAt, entry.Status, entry.RowsInserted)
	if err != nil {
		return fmt.Errorf("failed to insert job log entry: %w", err)
	}

	return nil
}

// FinishJobLog updates a job-log row with its terminal status. The error
// message is stored when non-empty; rows_inserted records how many rows the
// run actually produced.
func (db *DB) FinishJobLog(ctx context.Context, id uuid.UUID, status string, errMsg string, rowsInserted int64) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE sync_jobs SET finished_at = ?, status = ?, error = ?, rows_inserted = ? WHERE id = ?`,
		time.Now().UTC(), status, errVal, rowsInserted, id)
	if err != nil {
		return fmt.Errorf("failed to finish job log entry %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("job log entry %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListJobLogs returns job-log entries, newest first. An empty tenantID lists
// all tenants.
func (db *DB) ListJobLogs(ctx context.Context, tenantID string, limit int) ([]*models.JobLogEntry, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, tenant_id, mode, started_at, finished_at, status, error, rows_inserted
	FROM sync_jobs`
	args := []interface{}{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	defer closeQuietly(rows)

	var entries []*models.JobLogEntry
	for rows.Next() {
		var e models.JobLogEntry
		var mode string
		var finishedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &mode, &e.StartedAt, &finishedAt, &e.Status, &errMsg, &e.RowsInserted); err != nil {
			return nil, fmt.Errorf("failed to scan job log entry: %w", err)
		}
		e.Mode = models.SyncMode(mode)
		e.FinishedAt = nullTimePtr(finishedAt)
		if errMsg.Valid {
			e.Error = &errMsg.String
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job logs: %w", err)
	}

	return entries, nil
}
