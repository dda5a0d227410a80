package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/merchantd/platform/internal/sqlutil"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the repository can run
// inside or outside a business transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements outbox event persistence.
type Repository struct {
	db DBTX
}

// NewRepository creates a new outbox repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction. Used to insert
// events atomically with the business mutation that produced them.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// InsertInTx inserts an event inside an existing business transaction.
func (r *Repository) InsertInTx(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	return r.WithTx(tx).Insert(ctx, event)
}

const insertEventSQL = `
INSERT INTO outbox_events (
	id, tenant_id, event_type, aggregate_id, payload, version,
	status, attempts, last_error, trace_id, actor_id, metadata,
	occurred_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

// Insert persists a new outbox event.
func (r *Repository) Insert(ctx context.Context, event *OutboxEvent) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		event.ID,
		event.TenantID,
		event.EventType,
		event.AggregateID,
		[]byte(event.Payload),
		event.Version,
		string(event.Status),
		event.Attempts,
		sqlutil.ToSqlString(event.LastError),
		event.TraceID,
		sqlutil.ToNullUUID(event.ActorID),
		sqlutil.ToNullRawMessage(event.Metadata),
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

const selectEventColumns = `
	id, tenant_id, event_type, aggregate_id, payload, version,
	status, attempts, last_error, trace_id, actor_id, metadata,
	occurred_at, published_at`

// FetchDispatchable locks and returns pending events in insertion order.
// SKIP LOCKED lets concurrent workers drain disjoint batches.
func (r *Repository) FetchDispatchable(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	query := `SELECT` + selectEventColumns + `
		FROM outbox_events
		WHERE status = $1
		ORDER BY occurred_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dispatchable outbox events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FetchByID returns a single event regardless of status.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	query := `SELECT` + selectEventColumns + ` FROM outbox_events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by id: %w", err)
	}
	return event, nil
}

// MarkPublished flips the given events to PUBLISHED with the publish time.
func (r *Repository) MarkPublished(ctx context.Context, ids []uuid.UUID, publishedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $1, published_at = $2, last_error = NULL, updated_at = $2
		WHERE id = ANY($3)`,
		string(StatusPublished), publishedAt.UTC(), pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox events published: %w", err)
	}
	return nil
}

// MarkDispatchFailed records a failed dispatch attempt. The event stays
// PENDING until maxAttempts is reached, then parks as FAILED.
func (r *Repository) MarkDispatchFailed(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN $4 ELSE status END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, truncateError(lastError), maxAttempts, string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox dispatch failure: %w", err)
	}
	return nil
}

// MarkInvalid parks a permanently undeliverable event.
func (r *Repository) MarkInvalid(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, string(StatusInvalid), truncateError(lastError),
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event invalid: %w", err)
	}
	return nil
}

// Requeue moves a FAILED event back to PENDING with a reset attempt counter.
func (r *Repository) Requeue(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $2, attempts = 0, last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, string(StatusPending), string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to requeue outbox event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// PendingCount returns the dispatch backlog size.
func (r *Repository) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`,
		string(StatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

// lastErrorMaxLen keeps stored dispatch errors bounded.
const lastErrorMaxLen = 2048

func truncateError(msg string) string {
	if len(msg) > lastErrorMaxLen {
		return msg[:lastErrorMaxLen]
	}
	return msg
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		event       OutboxEvent
		payload     []byte
		status      string
		lastError   sql.NullString
		actorID     uuid.NullUUID
		metadata    pqtype.NullRawMessage
		publishedAt sql.NullTime
	)

	err := row.Scan(
		&event.ID,
		&event.TenantID,
		&event.EventType,
		&event.AggregateID,
		&payload,
		&event.Version,
		&status,
		&event.Attempts,
		&lastError,
		&event.TraceID,
		&actorID,
		&metadata,
		&event.OccurredAt,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Payload = payload
	event.Status, err = ParseStatus(status)
	if err != nil {
		return nil, err
	}
	event.LastError = sqlutil.FromSqlStringPtr(lastError)
	event.ActorID = sqlutil.FromNullUUID(actorID)
	event.Metadata = sqlutil.FromNullRawMessage(metadata)
	event.PublishedAt = sqlutil.FromSqlTime(publishedAt)

	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]OutboxEvent, error) {
	var events []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}
