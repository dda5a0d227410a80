package outbox

import (
	"context"
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)           {}
func (n *NoOpMetricsCollector) RecordOutboxLag(lag int)                                          {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {}

// InMemoryMetrics accumulates counters in memory, exposed on the health
// endpoint and handy in tests.
type InMemoryMetrics struct {
	mu               sync.Mutex
	EventsSucceeded  map[string]int
	EventsFailed     map[string]int
	BatchesProcessed int
	LastBatchSize    int
	LastLag          int
	PublishAttempts  int
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		EventsSucceeded: make(map[string]int),
		EventsFailed:    make(map[string]int),
	}
}

func (m *InMemoryMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.EventsSucceeded[eventType]++
	} else {
		m.EventsFailed[eventType]++
	}
}

func (m *InMemoryMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesProcessed++
	m.LastBatchSize = count
}

func (m *InMemoryMetrics) RecordOutboxLag(lag int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastLag = lag
}

func (m *InMemoryMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishAttempts++
}

// Snapshot returns copies of the counters for reporting.
func (m *InMemoryMetrics) Snapshot() (succeeded, failed map[string]int, batches int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	succeeded = make(map[string]int, len(m.EventsSucceeded))
	for k, v := range m.EventsSucceeded {
		succeeded[k] = v
	}
	failed = make(map[string]int, len(m.EventsFailed))
	for k, v := range m.EventsFailed {
		failed[k] = v
	}
	return succeeded, failed, m.BatchesProcessed
}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, event)

	p.metrics.RecordEventProcessed(event.EventType, err == nil, time.Since(start))

	return err
}
