package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/maplemarket/api/internal/services"
)

// PubSubReviewPublisher publishes checkout review events to a Pub/Sub topic.
type PubSubReviewPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubReviewPublisher constructs a Pub/Sub backed review event publisher.
func NewPubSubReviewPublisher(topic *pubsub.Topic) (*PubSubReviewPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub review publisher: topic is required")
	}
	return &PubSubReviewPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishReviewed enqueues a checkout.reviewed message on the configured topic.
func (p *PubSubReviewPublisher) PublishReviewed(ctx context.Context, event services.ReviewedEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub review publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}

	attrs := map[string]string{"eventType": "checkout.reviewed"}
	setAttr(attrs, "reviewId", event.ReviewID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "cartId", event.CartID)
	setAttr(attrs, "totalCheckout", strconv.FormatInt(event.TotalCheckout, 10))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// Ensure interface compliance.
var _ services.ReviewPublisher = (*PubSubReviewPublisher)(nil)
