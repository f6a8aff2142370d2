package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/stockyard/api/internal/services"
)

// PubSubSyncPublisher publishes catalog sync lifecycle events to a Pub/Sub topic.
type PubSubSyncPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubSyncPublisher constructs a Pub/Sub backed sync event publisher.
func NewPubSubSyncPublisher(topic *pubsub.Topic) (*PubSubSyncPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub sync publisher: topic is required")
	}
	return &PubSubSyncPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishSyncEvent enqueues a sync lifecycle event on the configured topic.
func (p *PubSubSyncPublisher) PublishSyncEvent(ctx context.Context, event services.SyncEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub sync publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal sync event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "ownerId", event.OwnerID)
	setAttr(attrs, "kind", string(event.Kind))
	setAttr(attrs, "status", string(event.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish sync event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
