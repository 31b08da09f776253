package message_broaker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zed-io/fineract-sub004/types"
)

type MessageBroker interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
	Close() error
}

// PublishEvent encodes event as JSON and publishes it under its routing key.
func PublishEvent(ctx context.Context, broker MessageBroker, event types.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for job %s: %w", event.JobID, err)
	}
	return broker.Publish(ctx, event.RoutingKey(), body)
}
