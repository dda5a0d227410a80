package outbox

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	aggregateID := uuid.New()
	payload := []byte(`{"plugin_id":"abc"}`)

	event, err := NewEvent(tenantID, EventTypePluginInstalled, aggregateID, payload)
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, event.ID)
	require.Equal(t, tenantID, event.TenantID)
	require.Equal(t, EventTypePluginInstalled, event.EventType)
	require.Equal(t, aggregateID, event.AggregateID)
	require.Equal(t, StatusPending, event.Status)
	require.Equal(t, 1, event.Version)
	require.Zero(t, event.Attempts)
	require.NotEmpty(t, event.TraceID)
	require.False(t, event.OccurredAt.IsZero())
	require.Nil(t, event.PublishedAt)
}

func TestNewEventValidation(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	aggregateID := uuid.New()

	tests := []struct {
		name        string
		tenantID    uuid.UUID
		eventType   string
		aggregateID uuid.UUID
		payload     []byte
		wantErr     error
	}{
		{
			name:        "missing event type",
			tenantID:    tenantID,
			eventType:   "  ",
			aggregateID: aggregateID,
			payload:     []byte(`{}`),
			wantErr:     ErrInvalidEvent,
		},
		{
			name:        "missing tenant",
			tenantID:    uuid.Nil,
			eventType:   EventTypeCartCheckedOut,
			aggregateID: aggregateID,
			payload:     []byte(`{}`),
			wantErr:     ErrInvalidEvent,
		},
		{
			name:        "missing aggregate",
			tenantID:    tenantID,
			eventType:   EventTypeCartCheckedOut,
			aggregateID: uuid.Nil,
			payload:     []byte(`{}`),
			wantErr:     ErrInvalidEvent,
		},
		{
			name:        "empty payload",
			tenantID:    tenantID,
			eventType:   EventTypeCartCheckedOut,
			aggregateID: aggregateID,
			payload:     nil,
			wantErr:     ErrInvalidEvent,
		},
		{
			name:        "payload not json",
			tenantID:    tenantID,
			eventType:   EventTypeCartCheckedOut,
			aggregateID: aggregateID,
			payload:     []byte(`not json`),
			wantErr:     ErrInvalidEvent,
		},
		{
			name:        "payload too large",
			tenantID:    tenantID,
			eventType:   EventTypeCartCheckedOut,
			aggregateID: aggregateID,
			payload:     oversizedPayload(),
			wantErr:     ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewEvent(tt.tenantID, tt.eventType, tt.aggregateID, tt.payload)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEventBuilders(t *testing.T) {
	t.Parallel()

	event, err := NewEvent(uuid.New(), EventTypeLicenseActivated, uuid.New(), []byte(`{}`))
	require.NoError(t, err)

	actor := uuid.New()
	generated := event.TraceID

	event.WithActor(actor).WithTraceID("trace-123")
	require.NotNil(t, event.ActorID)
	require.Equal(t, actor, *event.ActorID)
	require.Equal(t, "trace-123", event.TraceID)

	// An empty trace id keeps the current value.
	event.WithTraceID("")
	require.Equal(t, "trace-123", event.TraceID)
	require.NotEqual(t, generated, event.TraceID)
}

func oversizedPayload() []byte {
	padding := bytes.Repeat([]byte("a"), MaxPayloadBytes)
	return append(append([]byte(`{"pad":"`), padding...), []byte(`"}`)...)
}
