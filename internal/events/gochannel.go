// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewGoChannelPubSub creates the in-process pub/sub used when NATS is
// disabled. Subscribers within the same process (tests, future consumers)
// receive events; nothing leaves the process.
func NewGoChannelPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NopLogger{},
	)
}

// NewGoChannelPublisher wraps the in-process pub/sub as an engine Publisher.
func NewGoChannelPublisher(prefix string) (*WatermillPublisher, message.Subscriber) {
	pubsub := NewGoChannelPubSub()
	return NewWatermillPublisher(pubsub, prefix), pubsub
}
