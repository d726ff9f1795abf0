package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/models"
)

// Type names a room domain event. It is also the last token of the
// JetStream subject the event is published on.
type Type string

const (
	TypeRoomCreated   Type = "RoomCreated"
	TypeSeatClaimed   Type = "SeatClaimed"
	TypeSeatLeft      Type = "SeatLeft"
	TypeDraftStarted  Type = "DraftStarted"
	TypeActionApplied Type = "ActionApplied"
	TypeTurnStarted   Type = "TurnStarted"
	TypeDraftFinished Type = "DraftFinished"
	TypeDraftAborted  Type = "DraftAborted"
)

// Event is one outbox row: written in the same transaction as the room
// mutation it describes.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	Type      Type            `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New marshals payload into an Event for room.
func New(roomID uuid.UUID, typ Type, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:        uuid.New(),
		RoomID:    roomID,
		Type:      typ,
		Payload:   data,
		CreatedAt: at,
	}, nil
}

// Envelope is the wire form published to JetStream and forwarded to
// websocket clients.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType Type            `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (e Event) Envelope() Envelope {
	return Envelope{
		EventID:   e.ID.String(),
		EventType: e.Type,
		RoomID:    e.RoomID.String(),
		Timestamp: e.CreatedAt,
		Payload:   e.Payload,
	}
}

// RoomCreatedPayload is the payload for a RoomCreated event
type RoomCreatedPayload struct {
	HostIdentity string `json:"host_identity"`
	TurnSeconds  int    `json:"turn_seconds"`
}

// SeatPayload is the payload for SeatClaimed and SeatLeft events
type SeatPayload struct {
	Side        models.Side `json:"side"`
	Identity    string      `json:"identity,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
}

// DraftStartedPayload is the payload for a DraftStarted event
type DraftStartedPayload struct {
	StartedAt time.Time `json:"started_at"`
}

// ActionAppliedPayload is the payload for an ActionApplied event
type ActionAppliedPayload struct {
	Side         models.Side       `json:"side"`
	Kind         models.ActionKind `json:"kind"`
	Items        []string          `json:"items"`
	Auto         bool              `json:"auto"`
	TurnSequence int               `json:"turn_sequence"`
}

// TurnStartedPayload is the payload for a TurnStarted event
type TurnStartedPayload struct {
	Phase        models.Phase      `json:"phase"`
	Side         models.Side       `json:"side"`
	Kind         models.ActionKind `json:"kind"`
	Count        int               `json:"count"`
	TurnSequence int               `json:"turn_sequence"`
	Deadline     time.Time         `json:"deadline"`
}

// DraftFinishedPayload is the payload for a DraftFinished event
type DraftFinishedPayload struct {
	Bans       models.ItemsBySide `json:"bans"`
	Picks      models.ItemsBySide `json:"picks"`
	FinishedAt time.Time          `json:"finished_at"`
}

// DraftAbortedPayload is the payload for a DraftAborted event
type DraftAbortedPayload struct {
	AbortedBy string    `json:"aborted_by"`
	AbortedAt time.Time `json:"aborted_at"`
}
