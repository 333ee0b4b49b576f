// Package events publishes listing lifecycle messages for downstream
// notification fan-out. Publishing is best-effort; a failed publish
// never rolls back the state transition it describes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

const (
	// EventListingPublished fires on the first successful publish.
	EventListingPublished = "listing.published"
	// EventListingHidden fires when an owner withdraws a listing.
	EventListingHidden = "listing.hidden"
	// EventListingRepublished fires when a hidden paid listing returns.
	EventListingRepublished = "listing.republished"
)

// LifecycleMessage is the payload published for every transition.
type LifecycleMessage struct {
	Event      string    `json:"event"`
	ListingID  string    `json:"listingId"`
	OwnerID    string    `json:"ownerId"`
	Type       string    `json:"type,omitempty"`
	OrderID    string    `json:"orderId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PubSubLifecyclePublisher publishes lifecycle messages to a Pub/Sub topic.
type PubSubLifecyclePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubLifecyclePublisher constructs a Pub/Sub backed publisher.
func NewPubSubLifecyclePublisher(topic *pubsub.Topic) (*PubSubLifecyclePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub lifecycle publisher: topic is required")
	}
	return &PubSubLifecyclePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishLifecycleEvent enqueues a lifecycle message on the configured topic.
func (p *PubSubLifecyclePublisher) PublishLifecycleEvent(ctx context.Context, message LifecycleMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub lifecycle publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal lifecycle event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", message.Event)
	setAttr(attrs, "listingId", message.ListingID)
	setAttr(attrs, "ownerId", message.OwnerID)
	setAttr(attrs, "orderId", message.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish lifecycle event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
