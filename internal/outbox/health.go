package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

type HealthStatus struct {
	Healthy           bool           `json:"healthy"`
	LastEventTime     time.Time      `json:"last_event_time"`
	EventsProcessed   uint64         `json:"events_processed"`
	PendingEvents     int            `json:"pending_events"`
	DatabaseConnected bool           `json:"database_connected"`
	NATSConnected     bool           `json:"nats_connected"`
	EventsSucceeded   map[string]int `json:"events_succeeded,omitempty"`
	EventsFailed      map[string]int `json:"events_failed,omitempty"`
	BatchesProcessed  int            `json:"batches_processed,omitempty"`
	Errors            []string       `json:"errors"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// WorkerHealthChecker reports on the dispatch pipeline: worker progress,
// database reachability, broker connectivity and backlog depth.
type WorkerHealthChecker struct {
	worker    *Worker
	db        *sql.DB
	repo      *Repository
	natsConn  *nats.Conn
	metrics   *InMemoryMetrics
	threshold time.Duration // backlog age tolerated before unhealthy
}

func NewWorkerHealthChecker(worker *Worker, db *sql.DB, natsConn *nats.Conn, threshold time.Duration) *WorkerHealthChecker {
	return &WorkerHealthChecker{
		worker:    worker,
		db:        db,
		repo:      NewRepository(db),
		natsConn:  natsConn,
		threshold: threshold,
	}
}

// WithMetrics includes the worker's dispatch counters in health reports.
func (h *WorkerHealthChecker) WithMetrics(metrics *InMemoryMetrics) *WorkerHealthChecker {
	h.metrics = metrics
	return h
}

func (h *WorkerHealthChecker) collectMetrics(status *HealthStatus) {
	if h.metrics == nil {
		return
	}
	status.EventsSucceeded, status.EventsFailed, status.BatchesProcessed = h.metrics.Snapshot()
}

func (h *WorkerHealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	processed, lastTime := h.worker.Stats()
	status.EventsProcessed = processed
	status.LastEventTime = lastTime
	h.collectMetrics(&status)

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.natsConn != nil && h.natsConn.IsConnected() {
		status.NATSConnected = true
	} else if h.natsConn != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS connection lost")
	}

	if status.DatabaseConnected {
		pending, err := h.repo.PendingCount(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count backlog: %v", err))
		} else {
			status.PendingEvents = pending
			// A backlog that has not moved within the threshold means the
			// worker is stalled, not merely busy.
			if pending > 0 && !lastTime.IsZero() && time.Since(lastTime) > h.threshold {
				status.Healthy = false
				status.Errors = append(status.Errors,
					fmt.Sprintf("no events processed for %s with %d pending", time.Since(lastTime).Round(time.Second), pending))
			}
		}
	}

	return status
}

// Handler exposes the health check as an HTTP endpoint.
func (h *WorkerHealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
