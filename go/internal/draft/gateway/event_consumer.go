package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/outbox"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	StreamName    string
	SubjectFilter string
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:    outbox.EventStreamName,
		SubjectFilter: outbox.EventSubjectPrefix + ".>",
	}
}

// EventConsumer reads room events from JetStream and hands them to the
// connection manager. Every gateway instance runs its own ordered consumer
// so each sees every event.
type EventConsumer struct {
	connectionManager *ConnectionManager
	js                jetstream.JetStream
	config            JetStreamConsumerConfig
}

func NewEventConsumer(cm *ConnectionManager, js jetstream.JetStream, config JetStreamConsumerConfig) *EventConsumer {
	return &EventConsumer{
		connectionManager: cm,
		js:                js,
		config:            config,
	}
}

// Start consumes new events until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	consumer, err := ec.js.OrderedConsumer(ctx, ec.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ec.config.SubjectFilter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.processMessage(msg); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().
		Str("stream", ec.config.StreamName).
		Str("filter", ec.config.SubjectFilter).
		Msg("starting JetStream event consumer")

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

func (ec *EventConsumer) processMessage(msg jetstream.Msg) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.RoomID == "" || env.EventType == "" {
		return fmt.Errorf("incomplete event envelope on %s", msg.Subject())
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("room_id", env.RoomID).
		Str("event_type", string(env.EventType)).
		Msg("processing JetStream event")

	ec.connectionManager.Broadcast(env)
	return nil
}
