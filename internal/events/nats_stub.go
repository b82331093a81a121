// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

//go:build !nats

package events

import "errors"

// NewNATSPublisher is unavailable without the nats build tag.
func NewNATSPublisher(url, prefix string) (*WatermillPublisher, error) {
	return nil, errors.New("NATS support not compiled in (build with -tags nats)")
}
