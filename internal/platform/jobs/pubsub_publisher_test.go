package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/maplemarket/api/internal/services"
)

func TestNewPubSubReviewPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubReviewPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}

func TestPubSubReviewPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "checkout-reviewed")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubReviewPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubReviewPublisher: %v", err)
	}

	event := services.ReviewedEvent{
		ReviewID:      "rev_01HTEST",
		UserID:        "user-1",
		CartID:        "cart-1",
		TotalShops:    2,
		TotalItems:    5,
		TotalPrice:    120000,
		TotalDiscount: 12000,
		TotalCheckout: 109500,
		ProcessedAt:   time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishReviewed(ctx, event); err != nil {
		t.Fatalf("PublishReviewed: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.ReviewedEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ReviewID != event.ReviewID || payload.TotalCheckout != event.TotalCheckout {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "checkout.reviewed" {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["reviewId"]; attr != "rev_01HTEST" {
		t.Fatalf("expected review id attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["totalCheckout"]; attr != "109500" {
		t.Fatalf("expected total attribute, got %q", attr)
	}
}

func TestPubSubReviewPublisherOmitsEmptyAttributes(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "checkout-reviewed")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubReviewPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubReviewPublisher: %v", err)
	}

	if err := publisher.PublishReviewed(ctx, services.ReviewedEvent{ReviewID: "rev_02"}); err != nil {
		t.Fatalf("PublishReviewed: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if _, ok := messages[0].Attributes["cartId"]; ok {
		t.Fatal("cartId attribute should be omitted when empty")
	}
	if attr := messages[0].Attributes["totalCheckout"]; attr != "0" {
		t.Fatalf("expected zero total attribute, got %q", attr)
	}
}
