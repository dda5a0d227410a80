package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestConnection(tenantID uuid.UUID, buffer int) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func TestBroadcastDeliversToTenant(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig())
	tenantID := uuid.New()
	conn := newTestConnection(tenantID, 1)
	conn.Manager = cm
	cm.registerConnection(conn)

	other := newTestConnection(uuid.New(), 1)
	other.Manager = cm
	cm.registerConnection(other)

	event := &FeedEvent{
		EventID:   uuid.New().String(),
		EventType: "payment.recorded",
		TenantID:  tenantID.String(),
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(`{"amount":1000}`),
	}
	cm.handleBroadcast(BroadcastMessage{TenantID: tenantID, Event: event})

	select {
	case data := <-conn.Send:
		var got FeedEvent
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, event.EventID, got.EventID)
		require.Equal(t, "payment.recorded", got.EventType)
	default:
		t.Fatal("expected event on subscriber channel")
	}

	require.Empty(t, other.Send)
}

// A client disconnect must not take down the broadcast loop, no matter how
// the teardown interleaves with an in-flight broadcast.
func TestBroadcastDuringDisconnect(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig())
	tenantID := uuid.New()
	event := &FeedEvent{
		EventID:   uuid.New().String(),
		EventType: "plugin.installed",
		TenantID:  tenantID.String(),
		Payload:   json.RawMessage(`{}`),
	}

	for i := 0; i < 5000; i++ {
		conn := newTestConnection(tenantID, 1)
		conn.Manager = cm
		cm.registerConnection(conn)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			cm.handleBroadcast(BroadcastMessage{TenantID: tenantID, Event: event})
		}()
		go func() {
			defer wg.Done()
			cm.unregisterConnection(conn)
			conn.shutdown()
		}()
		wg.Wait()
	}

	total, tenants := cm.Stats()
	require.Zero(t, total)
	require.Zero(t, tenants)
}

func TestUnregisterLeavesSendOpen(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := newTestConnection(uuid.New(), 1)
	conn.Manager = cm
	cm.registerConnection(conn)
	cm.unregisterConnection(conn)

	// A broadcaster holding a stale snapshot may still send; the channel
	// stays open so that send cannot panic.
	require.NotPanics(t, func() {
		conn.Send <- []byte(`{}`)
	})
}

func TestBroadcastSkipsTornDownConnection(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig())
	tenantID := uuid.New()
	conn := &Connection{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Send:     make(chan []byte), // unbuffered, no reader
		done:     make(chan struct{}),
		Manager:  cm,
	}
	cm.registerConnection(conn)
	conn.shutdown()

	event := &FeedEvent{EventID: uuid.New().String(), EventType: "plugin.uninstalled", Payload: json.RawMessage(`{}`)}
	cm.handleBroadcast(BroadcastMessage{TenantID: tenantID, Event: event})

	// The torn-down connection is skipped, not treated as a slow client.
	total, _ := cm.Stats()
	require.Equal(t, 1, total)
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := newTestConnection(uuid.New(), 1)
	require.NotPanics(t, func() {
		conn.shutdown()
		conn.shutdown()
	})
	select {
	case <-conn.done:
	default:
		t.Fatal("expected done channel to be closed")
	}
}
