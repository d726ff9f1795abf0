package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/events"
)

const NotifyChannel = "draft_outbox_events"

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    NotifyChannel,
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Listener relays outbox rows to a Publisher. Inserts wake it through
// LISTEN/NOTIFY; a fallback poll picks up anything a notification missed.
type Listener struct {
	store     Store
	listener  *pq.Listener
	publisher Publisher
	metrics   MetricsCollector
	cfg       ListenerConfig
}

func NewListener(store Store, publisher Publisher, metrics MetricsCollector, cfg ListenerConfig) (*Listener, error) {
	l := newListener(store, publisher, metrics, cfg)
	pl := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := pl.Listen(l.cfg.NotifyChannel); err != nil {
		_ = pl.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	l.listener = pl

	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Msg("listening for notifications")
	return l, nil
}

func newListener(store Store, publisher Publisher, metrics MetricsCollector, cfg ListenerConfig) *Listener {
	if cfg.NotifyChannel == "" {
		cfg.NotifyChannel = NotifyChannel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &Listener{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	// Rows written while the relay was down.
	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

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
				// Connection was re-established; notifications may have been lost.
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

// handleNotification publishes the row named by a NOTIFY payload. A row
// that is already sent or held by another relay is skipped.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	claimed, err := l.store.ClaimByID(ctx, id, func(ev events.Event) error {
		return l.publishWithRetry(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", id, err)
	}
	if !claimed {
		log.Debug().Str("event_id", id.String()).Msg("event already sent or claimed")
		return nil
	}

	log.Info().Str("event_id", id.String()).Msg("published and marked event as sent")
	return nil
}

// processUnsent drains unsent rows in batches. A batch stops at the first
// event that cannot be published so per-room order is kept.
func (l *Listener) processUnsent(ctx context.Context) error {
	for {
		start := time.Now()
		var failed bool
		sent, err := l.store.ClaimUnsent(ctx, l.cfg.BatchSize, func(unsent []events.Event) []uuid.UUID {
			ids := make([]uuid.UUID, 0, len(unsent))
			for _, ev := range unsent {
				if err := l.publishWithRetry(ctx, ev); err != nil {
					log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to publish event")
					failed = true
					break
				}
				ids = append(ids, ev.ID)
			}
			return ids
		})
		if err != nil {
			return fmt.Errorf("failed to process unsent outbox events: %w", err)
		}
		if sent > 0 {
			l.metrics.RecordBatchProcessed(sent, time.Since(start))
			log.Info().Int("count", sent).Msg("published unsent events")
		}
		if failed || sent < l.cfg.BatchSize {
			return nil
		}
	}
}

// publishWithRetry attempts to publish an outbox event with a given retry delay and max retries.
func (l *Listener) publishWithRetry(ctx context.Context, event events.Event) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := l.publisher.Publish(ctx, event)
		l.metrics.RecordPublishAttempt(event.Type, attempt+1, err == nil)
		if err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
