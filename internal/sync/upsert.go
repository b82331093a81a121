// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ohjayaxel/adsync/internal/metrics"
	"github.com/ohjayaxel/adsync/internal/models"
)

// BreakdownHash digests a breakdown-dimension map into a stable fixed-width
// key component. The digest is over the sorted key=value list, so map
// iteration order never changes the hash. An empty map hashes to the same
// value everywhere, giving the no-breakdown set one stable key.
func BreakdownHash(breakdowns map[string]string) string {
	pairs := make([]string, 0, len(breakdowns))
	for k, v := range breakdowns {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}

// buildDailyFactRows converts a task's normalized rows into daily fact rows
// keyed by their full dimensional identity.
func buildDailyFactRows(tenantID string, task models.Task, rows []*models.NormalizedRow) []*models.DailyFactRow {
	out := make([]*models.DailyFactRow, 0, len(rows))
	for _, r := range rows {
		breakdownJSON := "{}"
		if len(r.Breakdowns) > 0 {
			if b, err := json.Marshal(r.Breakdowns); err == nil {
				breakdownJSON = string(b)
			}
		}

		out = append(out, &models.DailyFactRow{
			TenantID:      tenantID,
			Date:          r.DateStart,
			Level:         task.Level,
			EntityID:      r.EntityID(task.Level),
			ReportTime:    task.ReportTime,
			Attribution:   task.Attribution,
			BreakdownHash: BreakdownHash(r.Breakdowns),

			AccountID:     r.AccountID,
			CampaignID:    r.CampaignID,
			CampaignName:  r.CampaignName,
			AdSetID:       r.AdSetID,
			AdID:          r.AdID,
			AdName:        r.AdName,
			Currency:      r.Currency,
			BreakdownJSON: breakdownJSON,

			Spend:       r.Spend,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Conversions: r.Conversions,
			Revenue:     r.Revenue,
		})
	}
	return out
}

// factStore is the subset of the data store the upserter needs.
type factStore interface {
	UpsertDailyFacts(ctx context.Context, rows []*models.DailyFactRow) error
}

// upsertInBatches writes fact rows in bounded-size batches to respect the
// store's per-statement limits. Idempotent by construction: the store upserts
// on the full composite key.
func upsertInBatches(ctx context.Context, store factStore, rows []*models.DailyFactRow, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := store.UpsertDailyFacts(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("failed to upsert fact batch [%d:%d]: %w", start, end, err)
		}
		metrics.SyncRowsUpserted.Add(float64(end - start))
	}
	return nil
}
