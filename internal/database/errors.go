// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package database

import "errors"

// ErrNotFound is returned when a requested record does not exist.
// Callers should test with errors.Is.
var ErrNotFound = errors.New("record not found")
