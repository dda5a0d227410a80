package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to run a full dispatch cycle for missed events
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:      "",
		NotifyChannel:    "outbox_events",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Dispatcher triggers a dispatch cycle. Satisfied by *Worker.
type Dispatcher interface {
	DispatchNow(ctx context.Context)
}

// Listener reduces dispatch latency below the worker poll interval by
// reacting to Postgres NOTIFY from the outbox insert trigger. Each
// notification (and a periodic fallback tick) kicks the worker's dispatch
// cycle, which keeps all state handling on the single locked-batch path.
type Listener struct {
	listener   *pq.Listener
	dispatcher Dispatcher
	cfg        ListenerConfig
}

func NewListener(dispatcher Dispatcher, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		listener:   l,
		dispatcher: dispatcher,
		cfg:        cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means channel connection was lost so reconnect
				continue
			}
			l.handleNotification(ctx, note.Extra)
		case <-fallbackTicker.C:
			l.dispatcher.DispatchNow(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification handles a pg listen notification. Extra carries the
// inserted event's ID; it is only used for logging since the dispatch cycle
// drains everything pending anyway.
func (l *Listener) handleNotification(ctx context.Context, extra string) {
	if _, err := uuid.Parse(extra); err != nil {
		log.Warn().Str("payload", extra).Msg("invalid event ID in notification")
	} else {
		log.Debug().Str("event_id", extra).Msg("outbox notification received")
	}

	l.dispatcher.DispatchNow(ctx)
}
