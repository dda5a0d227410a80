package outbox

import "errors"

var (
	// ErrInvalidEvent indicates the event failed validation at construction.
	ErrInvalidEvent = errors.New("invalid outbox event")
	// ErrPayloadTooLarge indicates the payload exceeds MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("outbox payload too large")
	// ErrInvalidStatus indicates an unknown lifecycle status string.
	ErrInvalidStatus = errors.New("invalid outbox status")
	// ErrEventNotFound indicates the event does not exist or is already published.
	ErrEventNotFound = errors.New("outbox event not found")
	// ErrWorkerRunning indicates Start was called on a running worker.
	ErrWorkerRunning = errors.New("outbox worker already running")
	// ErrWorkerStopped indicates Stop was called on a stopped worker.
	ErrWorkerStopped = errors.New("outbox worker not running")
)
