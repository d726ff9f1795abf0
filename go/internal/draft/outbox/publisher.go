package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcdev12/banpick/go/internal/draft/events"
)

const (
	EventStreamName    = "DRAFT_EVENTS"
	EventSubjectPrefix = "draft.events"

	HeaderEventType = "Event-Type"
	HeaderRoomID    = "Room-ID"
	HeaderEventID   = "Event-ID"
)

var tracer = otel.Tracer("github.com/mcdev12/banpick/go/internal/draft/outbox")

type JetStreamConfig struct {
	StreamName      string
	SubjectPrefix   string
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int           // Number of replicas for the stream
	DuplicateWindow time.Duration // Window for duplicate detection
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		StreamName:      EventStreamName,
		SubjectPrefix:   EventSubjectPrefix,
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// Subject is the subject an event type is published on.
func (c JetStreamConfig) Subject(t events.Type) string {
	return fmt.Sprintf("%s.%s", c.SubjectPrefix, t)
}

// EnsureEventStream creates the room event stream, or updates it when the
// limits differ.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Room events relayed from the draft outbox",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

// JetStreamPublisher publishes events as events.Envelope JSON. The event id
// is the JetStream message id, so a row published twice (relay crash before
// MarkSent) is dropped by the stream's duplicate window.
type JetStreamPublisher struct {
	js     jetstream.Publisher
	config JetStreamConfig
}

func NewJetStreamPublisher(js jetstream.Publisher, cfg JetStreamConfig) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, config: cfg}
}

var _ Publisher = (*JetStreamPublisher)(nil)

func (p *JetStreamPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.config.Subject(event.Type)

	ctx, span := tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", subject),
			attribute.String("banpick.event_id", event.ID.String()),
			attribute.String("banpick.room_id", event.RoomID.String()),
		))
	defer span.End()

	data, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	header := nats.Header{
		HeaderEventType: []string{string(event.Type)},
		HeaderRoomID:    []string{event.RoomID.String()},
		HeaderEventID:   []string{event.ID.String()},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(header)))

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  header,
	},
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("event_id", event.ID.String()).
		Str("room_id", event.RoomID.String()).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")
	return nil
}
