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

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/services"
)

func TestPubSubSyncPublisherPublishesMessage(t *testing.T) {
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

	topic, err := client.CreateTopic(ctx, "catalog-sync")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubSyncPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubSyncPublisher: %v", err)
	}

	event := services.SyncEvent{
		OwnerID:    "user-1",
		Kind:       domain.SyncKindProducts,
		Status:     domain.SyncStateCompleted,
		Inserted:   12,
		Updated:    3,
		Batches:    2,
		OccurredAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}

	if _, err := publisher.PublishSyncEvent(ctx, event); err != nil {
		t.Fatalf("PublishSyncEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.SyncEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OwnerID != event.OwnerID || payload.Inserted != event.Inserted {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["kind"]; attr != "products" {
		t.Fatalf("expected kind attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["status"]; attr != "completed" {
		t.Fatalf("expected status attribute, got %q", attr)
	}
}
