package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OutboxRepository defines what the app layer needs from the repository.
type OutboxRepository interface {
	Insert(ctx context.Context, event *OutboxEvent) error
	InsertInTx(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	Requeue(ctx context.Context, id uuid.UUID) error
	PendingCount(ctx context.Context) (int, error)
}

// App handles outbox business logic: emitting events transactionally with
// the mutation that produced them, and operator-facing requeue/backlog ops.
type App struct {
	repo OutboxRepository
}

// NewApp creates a new outbox App.
func NewApp(repo OutboxRepository) *App {
	return &App{repo: repo}
}

// Emit inserts an already-constructed event inside the given transaction.
// The event row commits or rolls back together with the business mutation.
func (a *App) Emit(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}

	if err := a.repo.InsertInTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to emit outbox event: %w", err)
	}

	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID.String()).
		Msg("outbox event emitted")

	return nil
}

// EmitJSON marshals v as the payload and emits the event in tx.
func (a *App) EmitJSON(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, eventType string, aggregateID uuid.UUID, v any) (*OutboxEvent, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	event, err := NewEvent(tenantID, eventType, aggregateID, payload)
	if err != nil {
		return nil, err
	}

	if err := a.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// GetEvent fetches a specific outbox event by ID.
func (a *App) GetEvent(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error) {
	event, err := a.repo.FetchByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return event, nil
}

// RequeueEvent moves a parked FAILED event back into the dispatch queue.
func (a *App) RequeueEvent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.Requeue(ctx, eventID); err != nil {
		return fmt.Errorf("failed to requeue outbox event: %w", err)
	}

	log.Info().
		Str("event_id", eventID.String()).
		Msg("outbox event requeued")

	return nil
}

// Backlog returns the number of events awaiting dispatch.
func (a *App) Backlog(ctx context.Context) (int, error) {
	count, err := a.repo.PendingCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox backlog: %w", err)
	}
	return count, nil
}
