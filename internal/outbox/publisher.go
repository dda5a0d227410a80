package outbox

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the log instead of a broker. Used in
// development and as the publisher of last resort.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("tenant_id", event.TenantID.String()).
		Str("aggregate_id", event.AggregateID.String()).
		RawJSON("payload", event.Payload).
		Msg("publishing event")
	return nil
}
