// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

// Package models defines the domain types shared across the sync engine,
// the data store and the API layer.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateFormat is the wire and storage format for calendar dates.
const DateFormat = "2006-01-02"

// SyncMode selects between a narrow incremental run and a wide historical backfill.
type SyncMode string

const (
	ModeIncremental SyncMode = "incremental"
	ModeBackfill    SyncMode = "backfill"
)

// Level is the entity granularity of a report row.
type Level string

const (
	LevelAccount  Level = "account"
	LevelCampaign Level = "campaign"
	LevelAd       Level = "ad"
)

// SyncWindow is an inclusive day range, since <= until, never past today.
// Dates are UTC midnights.
type SyncWindow struct {
	Since time.Time
	Until time.Time
}

// Days returns the number of calendar days covered, inclusive.
func (w SyncWindow) Days() int {
	return int(w.Until.Sub(w.Since).Hours()/24) + 1
}

// Validate checks the window invariants against the given "today".
func (w SyncWindow) Validate(today time.Time) error {
	if w.Since.After(w.Until) {
		return fmt.Errorf("sync window: since %s after until %s",
			w.Since.Format(DateFormat), w.Until.Format(DateFormat))
	}
	if w.Until.After(today) {
		return fmt.Errorf("sync window: until %s is in the future",
			w.Until.Format(DateFormat))
	}
	return nil
}

func (w SyncWindow) String() string {
	return w.Since.Format(DateFormat) + ".." + w.Until.Format(DateFormat)
}

// Task is one independent unit of work: a single asynchronous report job for
// one level, one breakdown set, one report-time/attribution variant and one
// month-sized date chunk. Immutable once built.
type Task struct {
	Level           Level
	BreakdownKey    string
	BreakdownFields []string
	ReportTime      string
	Attribution     string
	Since           time.Time
	Until           time.Time
}

// Key returns a stable human-readable identity for logging.
func (t Task) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s..%s",
		t.Level, t.BreakdownKey, t.ReportTime, t.Attribution,
		t.Since.Format(DateFormat), t.Until.Format(DateFormat))
}

// TriggerRequest is the sync trigger accepted from the surrounding
// application. An empty TenantID means "all connected tenants".
type TriggerRequest struct {
	TenantID  string     `json:"tenant_id,omitempty"`
	AccountID string     `json:"account_id,omitempty"`
	Mode      SyncMode   `json:"mode"`
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
}

// TenantResult is the per-tenant outcome of a sync run.
type TenantResult struct {
	TenantID     string `json:"tenant_id"`
	Status       string `json:"status"` // succeeded or failed
	RowsInserted int64  `json:"rows_inserted"`
	Error        string `json:"error,omitempty"`
}

// Job log statuses. The log always ends with a terminal status; partial
// success is reported as succeeded with the caveat carried in log fields.
const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// JobLogEntry is one append-only row in the sync job log. Written at run
// start with status running and updated once at run end; never deleted.
type JobLogEntry struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Mode         SyncMode   `json:"mode"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	RowsInserted int64      `json:"rows_inserted"`
}
