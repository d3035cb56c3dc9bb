package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

// PubSubPublisher delivers outbox rows to a GCP Pub/Sub topic. Consumers
// dedupe on the event id attribute; redelivery after a failed MarkPublished
// is expected.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logg      *logger.Logger
}

// NewPubSubPublisher connects to Pub/Sub and binds a publisher handle for
// the configured topic.
func NewPubSubPublisher(ctx context.Context, projectID, topic string, logg *logger.Logger) (*PubSubPublisher, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("gcp project id is required")
	}
	fullName := topicResourceName(projectID, topic)
	if fullName == "" {
		return nil, errors.New("pubsub topic is required")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", fullName), "pubsub publisher initialized")
	}
	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(fullName),
		logg:      logg,
	}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	if p == nil || p.publisher == nil {
		return errors.New("pubsub publisher not initialized")
	}

	msg := &pubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       event.ID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if _, err := p.publisher.Publish(publishCtx, msg).Get(publishCtx); err != nil {
		return fmt.Errorf("publishing event %s: %w", event.ID, err)
	}
	return nil
}

// Close releases the underlying Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func topicResourceName(projectID, topic string) string {
	t := strings.TrimSpace(topic)
	if t == "" {
		return ""
	}
	if strings.HasPrefix(t, "projects/") && strings.Contains(t, "/topics/") {
		return t
	}
	return fmt.Sprintf("projects/%s/topics/%s", strings.TrimSpace(projectID), t)
}
