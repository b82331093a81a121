// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ohjayaxel/adsync/internal/models"
)

// UpsertConnection inserts or updates a tenant connection record, keyed on
// tenant_id. The sync-state watermark columns are not touched here; they are
// owned by UpdateSyncState.
func (db *DB) UpsertConnection(ctx context.Context, conn *models.Connection) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}

	query := `INSERT INTO connections (
		id, tenant_id, account_id, sync_start_date, reduced_variants,
		canonical_report_time, canonical_attribution, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (tenant_id) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		sync_start_date = EXCLUDED.sync_start_date,
		reduced_variants = EXCLUDED.reduced_variants,
		canonical_report_time = EXCLUDED.canonical_report_time,
		canonical_attribution = EXCLUDED.canonical_attribution,
		updated_at = now()`

	var syncStart interface{}
	if conn.SyncStartDate != nil {
		syncStart = *conn.SyncStartDate
	}

	_, err := db.conn.ExecContext(ctx, query,
		conn.ID, conn.TenantID, conn.AccountID, syncStart, conn.ReducedVariants,
		conn.CanonicalReportTime, conn.CanonicalAttribution)
	if err != nil {
		return fmt.Errorf("failed to upsert connection for tenant %s: %w", conn.TenantID, err)
	}

	return nil
}

// GetConnection returns the connection record for a tenant, or ErrNotFound.
func (db *DB) GetConnection(ctx context.Context, tenantID string) (*models.Connection, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, connectionSelectColumns+` WHERE tenant_id = ?`, tenantID)

	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("connection for tenant %s: %w", tenantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection for tenant %s: %w", tenantID, err)
	}

	return conn, nil
}

// ListConnections returns all tenant connection records.
func (db *DB) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, connectionSelectColumns+` ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer closeQuietly(rows)

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}

	return conns, nil
}

// UpdateSyncState persists the watermark for one mode after a run. The
// incremental and backfill watermarks live in distinct columns so the two
// modes never clobber each other.
func (db *DB) UpdateSyncState(ctx context.Context, tenantID string, mode models.SyncMode, syncedAt, since, until time.Time) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var query string
	switch mode {
	case models.ModeBackfill:
		query = `UPDATE connections SET
			last_backfill_at = ?, last_backfill_since = ?, last_backfill_until = ?,
			updated_at = CURRENT_TIMESTAMP
			WHERE tenant_id = ?`
	default:
		query = `UPDATE connections SET
			last_synced_at = ?, last_synced_since = ?, last_synced_until = ?,
			updated_at = CURRENT_TIMESTAMP
			WHERE tenant_id = ?`
	}

	res, err := db.conn.ExecContext(ctx, query, syncedAt, since, until, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update sync state for tenant %s: %w", tenantID, err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("sync state for tenant %s: %w", tenantID, ErrNotFound)
	}

	return nil
}

const connectionSelectColumns = `SELECT
	id, tenant_id, account_id, sync_start_date, reduced_variants,
	canonical_report_time, canonical_attribution,
	last_synced_at, last_synced_since, last_synced_until,
	last_backfill_at, last_backfill_since, last_backfill_until,
	created_at, updated_at
	FROM connections`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var syncStart sql.NullTime
	var lastSyncedAt, lastSyncedSince, lastSyncedUntil sql.NullTime
	var lastBackfillAt, lastBackfillSince, lastBackfillUntil sql.NullTime

	err := row.Scan(
		&conn.ID, &conn.TenantID, &conn.AccountID, &syncStart, &conn.ReducedVariants,
		&conn.CanonicalReportTime, &conn.CanonicalAttribution,
		&lastSyncedAt, &lastSyncedSince, &lastSyncedUntil,
		&lastBackfillAt, &lastBackfillSince, &lastBackfillUntil,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.SyncStartDate = nullTimePtr(syncStart)
	conn.State = models.SyncState{
		LastSyncedAt:      nullTimePtr(lastSyncedAt),
		LastSyncedSince:   nullTimePtr(lastSyncedSince),
		LastSyncedUntil:   nullTimePtr(lastSyncedUntil),
		LastBackfillAt:    nullTimePtr(lastBackfillAt),
		LastBackfillSince: nullTimePtr(lastBackfillSince),
		LastBackfillUntil: nullTimePtr(lastBackfillUntil),
	}

	return &conn, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
