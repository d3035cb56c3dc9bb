package outbox

import (
	"context"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/logger"
)

// Publisher delivers committed outbox rows to downstream consumers
// (notification, analytics). Implementations must be safe for redelivery:
// the relay retries rows whose publish attempt failed.
type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// LogPublisher writes events to the structured log. It is the default sink
// when no external broker is configured.
type LogPublisher struct {
	logg *logger.Logger
}

func NewLogPublisher(logg *logger.Logger) *LogPublisher {
	return &LogPublisher{logg: logg}
}

func (p *LogPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	if p.logg == nil {
		return nil
	}
	fields := map[string]any{
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"payload":        string(event.Payload),
	}
	p.logg.Info(p.logg.WithFields(ctx, fields), "outbox event published")
	return nil
}
