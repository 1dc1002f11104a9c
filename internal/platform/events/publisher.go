package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/lepax/api/internal/domain"
)

// PubSubAnalyticsPublisher fans analytics events out to a Pub/Sub topic for
// downstream consumers (warehouse loaders, personalisation).
type PubSubAnalyticsPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubAnalyticsPublisher constructs a Pub/Sub backed analytics publisher.
func NewPubSubAnalyticsPublisher(topic *pubsub.Topic) (*PubSubAnalyticsPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub analytics publisher: topic is required")
	}
	return &PubSubAnalyticsPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishEvent enqueues an analytics event on the configured topic.
func (p *PubSubAnalyticsPublisher) PublishEvent(ctx context.Context, event domain.AnalyticsEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub analytics publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal analytics event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "kind", string(event.Kind))
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "action", event.Action)
	if event.ProductID != nil {
		attrs["productId"] = strconv.FormatInt(*event.ProductID, 10)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish analytics event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
