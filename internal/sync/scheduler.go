// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"sync"

	"github.com/ohjayaxel/adsync/internal/models"
)

// taskResult is one task's outcome. Rows counts the fact rows the task
// persisted; Err is the task's terminal error, nil on success.
type taskResult struct {
	Task models.Task
	Rows int64
	Err  error

	// canonical holds the coarse-fact projection when the task belongs to
	// the canonical combination.
	canonical []*models.CanonicalFactRow
}

// runTasks executes the task list on a bounded worker pool with at most
// parallelism tasks in flight, waiting for every task to finish before
// returning. Deliberately not fail-fast: each task is an independent,
// re-runnable unit, so one failure never cancels siblings. The run's overall
// status is decided afterward from the aggregate of outcomes. Result order
// matches task order.
func runTasks(tasks []models.Task, parallelism int, run func(models.Task) taskResult) []taskResult {
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]taskResult, len(tasks))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task models.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = run(task)
		}(i, task)
	}

	wg.Wait()
	return results
}
