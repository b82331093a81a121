// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/metrics"
)

// ReportRequest describes one asynchronous report job.
type ReportRequest struct {
	Fields                   []string  `json:"fields"`
	Level                    string    `json:"level"`
	TimeRange                TimeRange `json:"time_range"`
	TimeIncrement            int       `json:"time_increment"`
	Breakdowns               []string  `json:"breakdowns,omitempty"`
	ActionReportTime         string    `json:"action_report_time"`
	ActionAttributionWindows []string  `json:"action_attribution_windows"`
}

// TimeRange is an inclusive date range in the platform's wire format.
type TimeRange struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

// RawRow is one untyped result row. Its shape varies by level and breakdown;
// it is validated and converted exactly once, by the sync engine's
// normalizer, at the system boundary.
type RawRow map[string]interface{}

// ReportClient is the async report protocol: start a job, poll until it
// reaches a terminal status, then page through the results. Implemented by
// Client and by BreakerClient.
type ReportClient interface {
	StartReport(ctx context.Context, accountID, token string, req ReportRequest) (string, error)
	PollReport(ctx context.Context, reportRunID, token string) error
	FetchResults(ctx context.Context, reportRunID, token string) ([]RawRow, error)
}

// reportRunResponse is the start call's reply.
type reportRunResponse struct {
	ReportRunID string `json:"report_run_id"`
}

// reportStatusResponse is the poll call's reply.
type reportStatusResponse struct {
	AsyncStatus            string `json:"async_status"`
	AsyncPercentCompletion int    `json:"async_percent_completion"`
}

// resultPage is one page of the fetch call's reply.
type resultPage struct {
	Data   []RawRow `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// StartReport submits a report job and returns the platform's job identifier.
func (c *Client) StartReport(ctx context.Context, accountID, token string, req ReportRequest) (string, error) {
	reqURL := fmt.Sprintf("%s/%s/insights", c.baseURL, accountID)

	var run reportRunResponse
	if err := c.postJSON(ctx, "start", reqURL, token, req, &run); err != nil {
		metrics.PlatformRequestErrors.WithLabelValues("start").Inc()
		return "", fmt.Errorf("failed to start report for account %s: %w", accountID, err)
	}
	if run.ReportRunID == "" {
		return "", fmt.Errorf("start report for account %s: empty report_run_id", accountID)
	}

	metrics.ReportJobsStarted.Inc()
	logging.Debug().Str("account", accountID).Str("report_run_id", run.ReportRunID).Msg("Report job started")
	return run.ReportRunID, nil
}

// PollReport polls a job's status on the fixed poll interval until it reaches
// a terminal state or the poll timeout elapses. The cadence is deliberately
// constant - this is a polling schedule, not a retry backoff.
//
// Terminal states: a status containing "completed" returns nil; a status
// containing "failed" returns ErrJobFailed; timeout returns ErrPollTimeout.
// Non-terminal statuses are logged and looped.
func (c *Client) PollReport(ctx context.Context, reportRunID, token string) error {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, reportRunID)
	deadline := time.Now().Add(c.pollTimeout)
	start := time.Now()

	for {
		var status reportStatusResponse
		if err := c.getJSON(ctx, "poll", reqURL, token, &status); err != nil {
			metrics.PlatformRequestErrors.WithLabelValues("poll").Inc()
			return fmt.Errorf("failed to poll report %s: %w", reportRunID, err)
		}

		normalized := strings.ToLower(status.AsyncStatus)
		switch {
		case strings.Contains(normalized, "completed"):
			metrics.ReportJobDuration.Observe(time.Since(start).Seconds())
			return nil
		case strings.Contains(normalized, "failed"):
			return fmt.Errorf("report %s ended with status %q: %w", reportRunID, status.AsyncStatus, ErrJobFailed)
		}

		logging.Debug().
			Str("report_run_id", reportRunID).
			Str("status", status.AsyncStatus).
			Int("percent", status.AsyncPercentCompletion).
			Msg("Report job still running")

		if time.Now().After(deadline) {
			metrics.ReportJobTimeouts.Inc()
			return fmt.Errorf("report %s did not complete within %s: %w", reportRunID, c.pollTimeout, ErrPollTimeout)
		}

		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// FetchResults pages through a completed job's result set via its pagination
// cursor until no further page is indicated, collecting every raw row.
func (c *Client) FetchResults(ctx context.Context, reportRunID, token string) ([]RawRow, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))

	var rows []RawRow
	after := ""
	for {
		if after != "" {
			params.Set("after", after)
		}
		reqURL := fmt.Sprintf("%s/%s/insights?%s", c.baseURL, reportRunID, params.Encode())

		var page resultPage
		if err := c.getJSON(ctx, "fetch", reqURL, token, &page); err != nil {
			metrics.PlatformRequestErrors.WithLabelValues("fetch").Inc()
			return nil, fmt.Errorf("failed to fetch results for report %s: %w", reportRunID, err)
		}

		rows = append(rows, page.Data...)

		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			break
		}
		after = page.Paging.Cursors.After
	}

	logging.Debug().Str("report_run_id", reportRunID).Int("rows", len(rows)).Msg("Report results fetched")
	return rows, nil
}
