// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// ErrJobFailed is returned when a report job reaches a failed terminal status.
var ErrJobFailed = errors.New("report job failed")

// ErrPollTimeout is returned when a report job does not complete within the
// configured poll timeout.
var ErrPollTimeout = errors.New("report job poll timeout")

// APIError is a non-2xx platform response. The platform wraps errors in a
// JSON envelope; when the body is not parseable the raw body is kept.
type APIError struct {
	Status  int
	Code    int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform API error (status %d, code %d, type %s): %s",
			e.Status, e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("platform API error (status %d)", e.Status)
}

// apiErrorEnvelope is the platform's error wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// newAPIError synthesizes an APIError from a non-2xx response body.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	body := readBodyForError(resp.Body)
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = string(body)
	}

	return apiErr
}

// permission-denied platform error codes: missing capability (10) and
// unknown/unavailable object or field (100).
const (
	codePermissionDenied = 10
	codeUnknownObject    = 100
)

// IsPermissionError reports whether err is a permission or entity-not-found
// error from the platform. These are soft failures: the run logs a warning
// and continues with whatever data is already available, rather than failing
// the whole tenant.
func IsPermissionError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound {
		return true
	}
	return apiErr.Code == codePermissionDenied || apiErr.Code == codeUnknownObject
}
