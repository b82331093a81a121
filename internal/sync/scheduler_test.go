// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package sync

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ohjayaxel/adsync/internal/models"
)

func TestRunTasksCompletesAll(t *testing.T) {
	tasks := make([]models.Task, 20)
	for i := range tasks {
		tasks[i] = models.Task{BreakdownKey: BreakdownNone}
	}

	var executed int32
	results := runTasks(tasks, 4, func(task models.Task) taskResult {
		atomic.AddInt32(&executed, 1)
		return taskResult{Task: task, Rows: 1}
	})

	if got := atomic.LoadInt32(&executed); got != 20 {
		t.Errorf("executed = %d, want 20", got)
	}
	if len(results) != 20 {
		t.Errorf("results = %d, want 20", len(results))
	}
}

func TestRunTasksRespectsParallelismCap(t *testing.T) {
	tasks := make([]models.Task, 16)

	var inFlight, peak int32
	results := runTasks(tasks, 3, func(task models.Task) taskResult {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return taskResult{Task: task}
	})

	if len(results) != 16 {
		t.Fatalf("results = %d, want 16", len(results))
	}
	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("peak concurrency = %d, exceeds cap 3", p)
	}
}

func TestRunTasksNoFailFast(t *testing.T) {
	tasks := make([]models.Task, 10)

	var executed int32
	boom := errors.New("boom")
	results := runTasks(tasks, 2, func(task models.Task) taskResult {
		n := atomic.AddInt32(&executed, 1)
		if n == 1 {
			return taskResult{Task: task, Err: boom}
		}
		return taskResult{Task: task, Rows: 1}
	})

	if got := atomic.LoadInt32(&executed); got != 10 {
		t.Errorf("executed = %d, want 10 (one failure must not cancel siblings)", got)
	}

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestRunTasksZeroParallelism(t *testing.T) {
	results := runTasks([]models.Task{{}, {}}, 0, func(task models.Task) taskResult {
		return taskResult{Task: task}
	})
	if len(results) != 2 {
		t.Errorf("results = %d, want 2", len(results))
	}
}
