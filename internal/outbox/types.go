package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxPayloadBytes bounds the size of a single event payload.
const MaxPayloadBytes = 1 << 20

// Event type constants for the commerce domain.
const (
	EventTypePluginInstalled    = "plugin.installed"
	EventTypePluginUninstalled  = "plugin.uninstalled"
	EventTypeCartCheckedOut     = "cart.checked_out"
	EventTypePaymentRecorded    = "payment.recorded"
	EventTypeLicenseActivated   = "license.activated"
	EventTypeLicenseDeactivated = "license.deactivated"
)

// OutboxEvent represents a domain event stored alongside the business
// mutation that produced it, for later dispatch by the worker.
type OutboxEvent struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	EventType   string          `json:"event_type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	Version     int             `json:"version"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	TraceID     string          `json:"trace_id"`
	ActorID     *uuid.UUID      `json:"actor_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// NewEvent creates a pending outbox event after validating its fields.
func NewEvent(tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, payload []byte) (*OutboxEvent, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidEvent)
	}
	if aggregateID == uuid.Nil {
		return nil, fmt.Errorf("%w: aggregate id is required", ErrInvalidEvent)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}
	if len(payload) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrPayloadTooLarge, MaxPayloadBytes)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload must be valid JSON", ErrInvalidEvent)
	}

	return &OutboxEvent{
		ID:          uuid.New(),
		TenantID:    tenantID,
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Version:     1,
		Status:      StatusPending,
		TraceID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// WithActor attaches the acting account to the event.
func (e *OutboxEvent) WithActor(actorID uuid.UUID) *OutboxEvent {
	e.ActorID = &actorID
	return e
}

// WithTraceID overrides the generated trace id, used to correlate the event
// with the request that produced it.
func (e *OutboxEvent) WithTraceID(traceID string) *OutboxEvent {
	if traceID != "" {
		e.TraceID = traceID
	}
	return e
}

// EventPublisher dispatches a single outbox event to an external system.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
