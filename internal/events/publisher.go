// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/ohjayaxel/adsync/internal/metrics"
)

// WatermillPublisher adapts any Watermill message.Publisher (GoChannel in
// process, NATS behind the nats build tag) to the engine's Publisher
// interface.
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string

	mu     sync.RWMutex
	closed bool
}

// NewWatermillPublisher wraps a Watermill publisher with JSON serialization
// and topic prefixing.
func NewWatermillPublisher(publisher message.Publisher, prefix string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    prefix,
	}
}

// PublishRunCompleted serializes and publishes a run-completed event.
func (p *WatermillPublisher) PublishRunCompleted(_ context.Context, event *SyncRunCompleted) error {
	return p.publish(TopicRunCompleted, event.EventID, event)
}

func (p *WatermillPublisher) publish(topicSuffix, msgID string, payload interface{}) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("event publisher is closed")
	}
	p.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventPublishErrors.Inc()
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	topic := p.prefix + "." + topicSuffix
	msg := message.NewMessage(msgID, data)

	if err := p.publisher.Publish(topic, msg); err != nil {
		metrics.EventPublishErrors.Inc()
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Close closes the underlying Watermill publisher. Idempotent.
func (p *WatermillPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
