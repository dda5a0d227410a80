package outbox

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	inserted []*OutboxEvent
	requeued []uuid.UUID
	pending  int
	err      error
}

func (r *fakeOutboxRepo) Insert(ctx context.Context, event *OutboxEvent) error {
	if r.err != nil {
		return r.err
	}
	r.inserted = append(r.inserted, event)
	return nil
}

func (r *fakeOutboxRepo) InsertInTx(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	return r.Insert(ctx, event)
}

func (r *fakeOutboxRepo) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	for _, event := range r.inserted {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, ErrEventNotFound
}

func (r *fakeOutboxRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	if r.err != nil {
		return r.err
	}
	r.requeued = append(r.requeued, id)
	return nil
}

func (r *fakeOutboxRepo) PendingCount(ctx context.Context) (int, error) {
	return r.pending, r.err
}

func TestEmitJSON(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{}
	app := NewApp(repo)

	tenantID := uuid.New()
	aggregateID := uuid.New()

	event, err := app.EmitJSON(context.Background(), nil, tenantID, EventTypeLicenseActivated, aggregateID, map[string]string{
		"plugin_id": uuid.NewString(),
	})
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
	require.Equal(t, StatusPending, event.Status)
	require.Equal(t, tenantID, event.TenantID)
	require.JSONEq(t, string(event.Payload), string(repo.inserted[0].Payload))
}

func TestEmitJSONRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{}
	app := NewApp(repo)

	_, err := app.EmitJSON(context.Background(), nil, uuid.New(), EventTypeLicenseActivated, uuid.New(), make(chan int))
	require.Error(t, err)
	require.Empty(t, repo.inserted)
}

func TestEmitNilEvent(t *testing.T) {
	t.Parallel()

	app := NewApp(&fakeOutboxRepo{})
	require.ErrorIs(t, app.Emit(context.Background(), nil, nil), ErrInvalidEvent)
}

func TestGetEvent(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{}
	app := NewApp(repo)

	emitted, err := app.EmitJSON(context.Background(), nil, uuid.New(), EventTypeCartCheckedOut, uuid.New(), map[string]int{"total": 4200})
	require.NoError(t, err)

	got, err := app.GetEvent(context.Background(), emitted.ID)
	require.NoError(t, err)
	require.Equal(t, emitted.ID, got.ID)

	_, err = app.GetEvent(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestRequeueAndBacklog(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{pending: 7}
	app := NewApp(repo)

	id := uuid.New()
	require.NoError(t, app.RequeueEvent(context.Background(), id))
	require.Equal(t, []uuid.UUID{id}, repo.requeued)

	backlog, err := app.Backlog(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, backlog)
}
