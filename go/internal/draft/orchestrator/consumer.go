package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
)

const (
	TimeoutStreamName  = "DRAFT_TIMEOUTS"
	timeoutSubjectBase = "draft.timeouts"
	timeoutConsumer    = "banpick-timeouts"

	consumerAckWait       = 30 * time.Second
	consumerMaxAckPending = 256
	duplicateWindow       = 10 * time.Minute
)

// EnsureTimeoutStream creates or updates the work-queue stream holding
// pending timeouts.
func EnsureTimeoutStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       TimeoutStreamName,
		Subjects:   []string{timeoutSubjectBase + ".>"},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: duplicateWindow,
		MaxAge:     24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure %s stream: %w", TimeoutStreamName, err)
	}
	return nil
}

// timeoutMessage is the body of a scheduled timeout.
type timeoutMessage struct {
	Task
	NotBefore time.Time `json:"notBefore"`
}

func timeoutSubject(roomID uuid.UUID) string {
	return timeoutSubjectBase + "." + roomID.String()
}

func timeoutMsgID(roomID uuid.UUID, seq int) string {
	return fmt.Sprintf("%s:%d", roomID, seq)
}

// JetStreamScheduler publishes timeouts to JetStream. The message id makes
// repeated schedules of the same (room, turn) collapse to one message within
// the stream's duplicate window.
type JetStreamScheduler struct {
	js    jetstream.JetStream
	grace time.Duration
}

func NewJetStreamScheduler(js jetstream.JetStream, grace time.Duration) *JetStreamScheduler {
	return &JetStreamScheduler{js: js, grace: grace}
}

var _ Scheduler = (*JetStreamScheduler)(nil)

func (s *JetStreamScheduler) Schedule(ctx context.Context, roomID uuid.UUID, turnSequence int, deadline time.Time) error {
	data, err := json.Marshal(timeoutMessage{
		Task:      Task{RoomID: roomID, TurnSequence: turnSequence},
		NotBefore: deadline.Add(s.grace).UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal timeout: %w", err)
	}
	ack, err := s.js.Publish(ctx, timeoutSubject(roomID), data,
		jetstream.WithMsgID(timeoutMsgID(roomID, turnSequence)))
	if err != nil {
		return fmt.Errorf("publish timeout: %w", err)
	}
	log.Debug().
		Str("room_id", roomID.String()).
		Int("turn_sequence", turnSequence).
		Uint64("stream_seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published timeout")
	return nil
}

// TimeoutConsumer pulls timeouts from JetStream and resolves them once they
// are due. Early messages, turns the resolver reports as not yet due, and
// failed resolutions are redelivered with a delay; a message is acked only
// after resolution succeeds.
type TimeoutConsumer struct {
	js         jetstream.JetStream
	consumer   jetstream.Consumer
	resolver   TurnResolver
	clock      clockwork.Clock
	retryDelay time.Duration
	numWorkers int
}

// NewTimeoutConsumer creates a consumer. retryDelay spaces out redeliveries
// after a failure or a not-due answer; DefaultGrace is used when it is not
// positive.
func NewTimeoutConsumer(js jetstream.JetStream, resolver TurnResolver, clock clockwork.Clock, retryDelay time.Duration, numWorkers int) *TimeoutConsumer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retryDelay <= 0 {
		retryDelay = DefaultGrace
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &TimeoutConsumer{
		js:         js,
		resolver:   resolver,
		clock:      clock,
		retryDelay: retryDelay,
		numWorkers: numWorkers,
	}
}

// ensureConsumer creates or gets the JetStream consumer
func (c *TimeoutConsumer) ensureConsumer(ctx context.Context) error {
	if err := EnsureTimeoutStream(ctx, c.js); err != nil {
		return err
	}
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, TimeoutStreamName, jetstream.ConsumerConfig{
		Name:          timeoutConsumer,
		Durable:       timeoutConsumer,
		Description:   "Turn timeout resolver",
		FilterSubject: timeoutSubjectBase + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       consumerAckWait,
		MaxAckPending: consumerMaxAckPending,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer
	return nil
}

// Run consumes until ctx is cancelled.
func (c *TimeoutConsumer) Run(ctx context.Context) error {
	if err := c.ensureConsumer(ctx); err != nil {
		return err
	}

	msgCh := make(chan jetstream.Msg, c.numWorkers*2)
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Int("workers", c.numWorkers).Msg("timeout consumer started")

	var wg sync.WaitGroup
	for i := 0; i < c.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-msgCh:
					c.handle(ctx, msg)
				}
			}
		}()
	}
	wg.Wait()
	log.Info().Msg("timeout consumer stopped")
	return nil
}

// handle settles one message: Ack on success, Term when undeliverable,
// NakWithDelay otherwise.
func (c *TimeoutConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	var tm timeoutMessage
	if err := json.Unmarshal(msg.Data(), &tm); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("malformed timeout message")
		_ = msg.Term()
		return
	}

	if wait := tm.NotBefore.Sub(c.clock.Now()); wait > 0 {
		if err := msg.NakWithDelay(wait); err != nil {
			log.Error().Err(err).Msg("failed to delay timeout message")
		}
		return
	}

	err := c.resolver.ResolveTurn(ctx, tm.RoomID, tm.TurnSequence)
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK timeout message")
		}
	case errors.Is(err, drafterr.ErrRoomNotFound):
		log.Warn().Str("room_id", tm.RoomID.String()).Msg("timeout for unknown room dropped")
		_ = msg.Term()
	case errors.Is(err, ErrNotDue):
		log.Debug().
			Str("room_id", tm.RoomID.String()).
			Int("turn_sequence", tm.TurnSequence).
			Dur("retry_in", c.retryDelay).
			Msg("timeout not due on resolver, redelivering")
		if nakErr := msg.NakWithDelay(c.retryDelay); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to delay timeout message")
		}
	default:
		log.Error().
			Err(err).
			Str("room_id", tm.RoomID.String()).
			Int("turn_sequence", tm.TurnSequence).
			Dur("retry_in", c.retryDelay).
			Msg("failed to resolve timeout")
		if nakErr := msg.NakWithDelay(c.retryDelay); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK timeout message")
		}
	}
}
