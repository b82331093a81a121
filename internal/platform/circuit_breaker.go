// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package platform

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ohjayaxel/adsync/internal/logging"
	"github.com/ohjayaxel/adsync/internal/metrics"
)

// BreakerClient wraps a ReportClient with circuit breaker protection so a
// degraded platform API stops consuming the sync engine's retry budget.
//
// The breaker uses real time (via sony/gobreaker) for its interval and
// timeout calculations. Tests exercising report semantics should target the
// wrapped client directly.
type BreakerClient struct {
	inner ReportClient
	cb    *gobreaker.CircuitBreaker[interface{}]
	name  string
}

// NewBreakerClient wraps inner with a circuit breaker.
// Breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(inner ReportClient) *BreakerClient {
	cbName := "platform-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerClient{
		inner: inner,
		cb:    cb,
		name:  cbName,
	}
}

// execute runs one platform call through the breaker and records the result.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// StartReport submits a report job with circuit breaker protection.
func (bc *BreakerClient) StartReport(ctx context.Context, accountID, token string, req ReportRequest) (string, error) {
	result, err := bc.execute(func() (interface{}, error) {
		return bc.inner.StartReport(ctx, accountID, token, req)
	})
	if err != nil {
		return "", err
	}
	id, ok := result.(string)
	if !ok {
		return "", errors.New("circuit breaker: unexpected result type for report run id")
	}
	return id, nil
}

// PollReport polls a report job with circuit breaker protection. Job-level
// failures and poll timeouts are platform verdicts, not transport failures,
// so they do not count against the breaker.
func (bc *BreakerClient) PollReport(ctx context.Context, reportRunID, token string) error {
	result, err := bc.execute(func() (interface{}, error) {
		err := bc.inner.PollReport(ctx, reportRunID, token)
		if errors.Is(err, ErrJobFailed) || errors.Is(err, ErrPollTimeout) {
			return err, nil
		}
		return nil, err
	})
	if err != nil {
		return err
	}
	if verdict, ok := result.(error); ok {
		return verdict
	}
	return nil
}

// FetchResults fetches report results with circuit breaker protection.
func (bc *BreakerClient) FetchResults(ctx context.Context, reportRunID, token string) ([]RawRow, error) {
	result, err := bc.execute(func() (interface{}, error) {
		return bc.inner.FetchResults(ctx, reportRunID, token)
	})
	if err != nil {
		return nil, err
	}
	rows, ok := result.([]RawRow)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for result rows")
	}
	return rows, nil
}
