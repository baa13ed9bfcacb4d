package redis

import (
	"context"
	"encoding/json"

	"github.com/gabapcia/txwatch/internal/txwatcher"
)

// DefaultEventsChannel is the pub/sub channel events are published to.
const DefaultEventsChannel = "txwatch:events"

type eventPublisher struct {
	client  *client
	channel string
}

// Publish sends event as JSON on the configured channel.
func (p *eventPublisher) Publish(ctx context.Context, event txwatcher.Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return p.client.conn.Publish(ctx, p.channel, payload).Err()
}

func encodeEvent(event txwatcher.Event) ([]byte, error) {
	return json.Marshal(event)
}

// NewEventPublisher returns an EventSink publishing on channel, or on
// DefaultEventsChannel when channel is empty.
func NewEventPublisher(c *client, channel string) *eventPublisher {
	if channel == "" {
		channel = DefaultEventsChannel
	}

	return &eventPublisher{
		client:  c,
		channel: channel,
	}
}

var _ txwatcher.EventSink = (*eventPublisher)(nil)
