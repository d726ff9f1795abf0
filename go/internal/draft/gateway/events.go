package gateway

import (
	"time"

	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/room"
)

// FrameType tells clients how to read a Frame.
type FrameType string

const (
	// FrameSnapshot carries the room as of connect time.
	FrameSnapshot FrameType = "snapshot"
	// FrameEvent carries one relayed room event.
	FrameEvent FrameType = "event"
)

// Frame is one websocket message sent to a client. ServerTime lets clients
// correct their countdown for clock skew.
type Frame struct {
	Type       FrameType        `json:"type"`
	RoomID     string           `json:"roomId"`
	ServerTime time.Time        `json:"serverTime"`
	Snapshot   *room.View       `json:"snapshot,omitempty"`
	Event      *events.Envelope `json:"event,omitempty"`
}

func snapshotFrame(view room.View, now time.Time) Frame {
	return Frame{
		Type:       FrameSnapshot,
		RoomID:     view.Room.ID.String(),
		ServerTime: now.UTC(),
		Snapshot:   &view,
	}
}

func eventFrame(env events.Envelope, now time.Time) Frame {
	return Frame{
		Type:       FrameEvent,
		RoomID:     env.RoomID,
		ServerTime: now.UTC(),
		Event:      &env,
	}
}
