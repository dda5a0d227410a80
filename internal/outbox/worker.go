package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrNonRetryable marks a dispatch failure that retrying cannot fix.
// Publishers wrap this for malformed events so the worker parks them as
// INVALID instead of burning attempts.
var ErrNonRetryable = errors.New("non-retryable dispatch failure")

// Config holds worker tuning knobs.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int32
	MaxAttempts    int           // dispatch attempts before an event parks as FAILED
	PublishRetries int           // in-cycle publish retries per event
	RetryDelay     time.Duration // base delay between in-cycle retries (linear backoff)
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		BatchSize:      100,
		MaxAttempts:    10,
		PublishRetries: 3,
		RetryDelay:     time.Second,
	}
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.PublishRetries <= 0 {
		c.PublishRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// Worker polls the outbox table and dispatches pending events.
type Worker struct {
	db        *sql.DB
	repo      *Repository
	publisher EventPublisher
	config    Config
	logger    zerolog.Logger
	clock     clockwork.Clock
	metrics   MetricsCollector

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	// busy guards against overlapping dispatch cycles when a manual
	// DispatchNow races the ticker.
	busy sync.Mutex

	statsMu        sync.Mutex
	processedTotal uint64
	lastEventTime  time.Time
}

// NewWorker creates an outbox worker. A nil metrics collector disables metrics.
func NewWorker(database *sql.DB, publisher EventPublisher, cfg Config, logger zerolog.Logger) *Worker {
	cfg.normalize()
	return &Worker{
		db:        database,
		repo:      NewRepository(database),
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		metrics:   &NoOpMetricsCollector{},
		stopChan:  make(chan struct{}),
	}
}

// WithClock swaps the clock, used by tests.
func (w *Worker) WithClock(clock clockwork.Clock) *Worker {
	w.clock = clock
	return w
}

// WithMetrics attaches a metrics collector.
func (w *Worker) WithMetrics(metrics MetricsCollector) *Worker {
	if metrics != nil {
		w.metrics = metrics
	}
	return w
}

// Start launches the poll loop. It returns ErrWorkerRunning if already started.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWorkerRunning
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")

	return nil
}

// Stop signals the loop to exit and waits for the in-flight cycle.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrWorkerStopped
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info().Msg("outbox worker stopped")
	return nil
}

// Stats returns the total number of events published and the time of the
// most recent publish.
func (w *Worker) Stats() (uint64, time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.processedTotal, w.lastEventTime
}

// DispatchNow runs one dispatch cycle immediately. Safe to call while the
// poll loop runs; overlapping cycles are skipped.
func (w *Worker) DispatchNow(ctx context.Context) {
	w.processOutbox(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			w.processOutbox(ctx)
		}
	}
}

// processOutbox runs a single dispatch cycle inside one transaction: fetch a
// locked batch, publish each event, persist the per-event outcome, commit.
// A cycle that is still running when the next tick fires is not doubled up.
func (w *Worker) processOutbox(ctx context.Context) {
	if !w.busy.TryLock() {
		w.logger.Debug().Msg("dispatch cycle still in flight, skipping tick")
		return
	}
	defer w.busy.Unlock()

	start := w.clock.Now()

	txn, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to begin dispatch transaction")
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Rollback()
		}
	}()

	qtx := w.repo.WithTx(txn)

	events, err := qtx.FetchDispatchable(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to fetch dispatchable events")
		return
	}

	if len(events) == 0 {
		return
	}

	w.logger.Debug().Int("count", len(events)).Msg("processing outbox events")

	var publishedIDs []uuid.UUID
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		err := w.publishWithRetry(ctx, event)
		if err == nil {
			publishedIDs = append(publishedIDs, event.ID)
			continue
		}

		w.logger.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int("attempts", event.Attempts+1).
			Msg("failed to publish event")

		if errors.Is(err, ErrNonRetryable) {
			if markErr := qtx.MarkInvalid(ctx, event.ID, err.Error()); markErr != nil {
				w.logger.Error().Err(markErr).
					Str("event_id", event.ID.String()).
					Msg("failed to mark event invalid")
			}
			continue
		}

		if markErr := qtx.MarkDispatchFailed(ctx, event.ID, err.Error(), w.config.MaxAttempts); markErr != nil {
			w.logger.Error().Err(markErr).
				Str("event_id", event.ID.String()).
				Msg("failed to record dispatch failure")
		}
	}

	if len(publishedIDs) > 0 {
		if err := qtx.MarkPublished(ctx, publishedIDs, w.clock.Now()); err != nil {
			w.logger.Error().Err(err).Msg("failed to mark events published")
			return
		}
	}

	if err := txn.Commit(); err != nil {
		w.logger.Error().Err(err).Msg("failed to commit dispatch transaction")
		return
	}
	committed = true

	w.recordCycle(len(events), len(publishedIDs), w.clock.Since(start))

	if pending, err := w.repo.PendingCount(ctx); err == nil {
		w.metrics.RecordOutboxLag(pending)
	}
}

func (w *Worker) recordCycle(total, published int, elapsed time.Duration) {
	w.statsMu.Lock()
	w.processedTotal += uint64(published)
	if published > 0 {
		w.lastEventTime = w.clock.Now()
	}
	w.statsMu.Unlock()

	w.metrics.RecordBatchProcessed(total, elapsed)

	w.logger.Info().
		Int("total", total).
		Int("published", published).
		Int("failed", total-published).
		Dur("elapsed", elapsed).
		Msg("processed outbox events")
}

func (w *Worker) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.PublishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		err := w.publisher.Publish(ctx, event)
		w.metrics.RecordPublishAttempt(event.EventType, attempt+1, err == nil)
		if err == nil {
			w.metrics.RecordEventProcessed(event.EventType, true, w.clock.Since(event.OccurredAt))
			return nil
		}

		lastErr = err
		if errors.Is(err, ErrNonRetryable) {
			break
		}

		w.logger.Warn().
			Err(err).
			Str("event_id", event.ID.String()).
			Int("attempt", attempt+1).
			Msg("failed to publish event, retrying")
	}

	w.metrics.RecordEventProcessed(event.EventType, false, w.clock.Since(event.OccurredAt))

	if errors.Is(lastErr, ErrNonRetryable) {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", w.config.PublishRetries+1, lastErr)
}
