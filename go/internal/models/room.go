package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTurnSeconds = 15
	MinTurnSeconds     = 5
	MaxTurnSeconds     = 120
)

// Seat is the identity occupying one side.
type Seat struct {
	Identity    string `json:"identity,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Occupied reports whether an identity holds the seat.
func (s Seat) Occupied() bool {
	return s.Identity != ""
}

// Seats maps each side to its seat.
type Seats struct {
	Purple Seat `json:"PURPLE"`
	Orange Seat `json:"ORANGE"`
}

func (s Seats) Of(side Side) Seat {
	if side == SideOrange {
		return s.Orange
	}
	return s.Purple
}

func (s *Seats) Set(side Side, seat Seat) {
	switch side {
	case SidePurple:
		s.Purple = seat
	case SideOrange:
		s.Orange = seat
	}
}

// SideOf resolves an identity to the side it currently occupies.
func (s Seats) SideOf(identity string) (Side, bool) {
	if identity == "" {
		return "", false
	}
	for _, side := range Sides {
		if s.Of(side).Identity == identity {
			return side, true
		}
	}
	return "", false
}

// Ready reports whether both sides are occupied.
func (s Seats) Ready() bool {
	return s.Purple.Occupied() && s.Orange.Occupied()
}

// RoomConfig is immutable after creation.
type RoomConfig struct {
	TurnSeconds int `json:"turnSeconds"`
}

// Room is a single draft session.
type Room struct {
	ID           uuid.UUID  `json:"id"`
	HostIdentity string     `json:"hostIdentity"`
	Seats        Seats      `json:"seats"`
	Config       RoomConfig `json:"config"`
	State        DraftState `json:"state"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.State = r.State.Clone()
	return &out
}
