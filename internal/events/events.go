// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

// Package events publishes sync-lifecycle events over Watermill. The default
// transport is the in-process GoChannel pub/sub; a NATS JetStream transport
// is available behind the nats build tag.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ohjayaxel/adsync/internal/models"
)

// Topic suffixes. The full topic is "<prefix>.<suffix>".
const (
	TopicRunCompleted = "sync.run.completed"
)

// SyncRunCompleted is emitted once per tenant at the end of a sync run,
// success or failure.
type SyncRunCompleted struct {
	EventID      string          `json:"event_id"`
	TenantID     string          `json:"tenant_id"`
	AccountID    string          `json:"account_id"`
	Mode         models.SyncMode `json:"mode"`
	Status       string          `json:"status"`
	WindowSince  string          `json:"window_since"`
	WindowUntil  string          `json:"window_until"`
	RowsInserted int64           `json:"rows_inserted"`
	TasksFailed  int             `json:"tasks_failed"`
	Error        string          `json:"error,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewSyncRunCompleted stamps identity and time onto a run-completed event.
func NewSyncRunCompleted(tenantID, accountID string, mode models.SyncMode) *SyncRunCompleted {
	return &SyncRunCompleted{
		EventID:    uuid.NewString(),
		TenantID:   tenantID,
		AccountID:  accountID,
		Mode:       mode,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher is the engine-facing publishing interface. Publishing is
// best-effort: failures are logged and counted but never fail a sync run.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, event *SyncRunCompleted) error
	Close() error
}

// NoopPublisher discards all events. Used when eventing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishRunCompleted(context.Context, *SyncRunCompleted) error { return nil }
func (NoopPublisher) Close() error                                                 { return nil }
