package main

import (
	"context"
	"fmt"

	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
)

func noopClose() error { return nil }

// newPublisher picks the event sink from config: the Pub/Sub topic in
// deployed environments, the structured log locally.
func newPublisher(ctx context.Context, cfg config.OutboxConfig, logg *logger.Logger) (outbox.Publisher, func() error, error) {
	switch cfg.Publisher {
	case "", "log":
		return outbox.NewLogPublisher(logg), noopClose, nil
	case "pubsub":
		pub, err := outbox.NewPubSubPublisher(ctx, cfg.GCPProjectID, cfg.Topic, logg)
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown outbox publisher %q", cfg.Publisher)
	}
}
