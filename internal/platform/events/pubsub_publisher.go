package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/cms/internal/domain"
)

// PubSubPublisher announces content changes on a Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher wraps an existing topic handle.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("events: topic is required")
	}
	return &PubSubPublisher{topic: topic}, nil
}

// PublishContentChanged sends the event and waits for the server-assigned message id.
func (p *PubSubPublisher) PublishContentChanged(ctx context.Context, event domain.ContentChangedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("events: publisher not initialised")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("events: marshal content change: %w", err)
	}

	attrs := map[string]string{
		"key":      event.Key,
		"language": event.Language,
		"action":   string(event.Action),
	}
	if event.Region != nil && strings.TrimSpace(*event.Region) != "" {
		attrs["region"] = *event.Region
	}

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("events: publish content change: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
