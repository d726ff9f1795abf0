// Package repository persists rooms. Every implementation offers the same
// contract: Update runs its mutator inside one atomic read-modify-write
// transaction on a single room and writes the mutator's events to the outbox
// in that same transaction.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/models"
)

// ErrUnchanged is returned by a Mutator to abandon the transaction without
// writing. Update passes it back to the caller.
var ErrUnchanged = errors.New("room unchanged")

// Mutator edits room in place and returns the events describing the change.
// Any error rolls the transaction back.
type Mutator func(room *models.Room) ([]events.Event, error)

// PendingTurn is the turn an in-progress room is waiting on.
type PendingTurn struct {
	RoomID       uuid.UUID
	TurnSequence int
	Deadline     time.Time
}

// pendingTurnOf reports the pending turn of room, if any.
func pendingTurnOf(room *models.Room) (PendingTurn, bool) {
	st := room.State
	if st.Phase == models.PhaseLobby || st.Phase.Terminal() || st.TurnSequence == 0 || st.Deadline == nil {
		return PendingTurn{}, false
	}
	return PendingTurn{RoomID: room.ID, TurnSequence: st.TurnSequence, Deadline: st.Deadline.UTC()}, true
}

// roomColumns is the serialized form shared by the SQL stores.
type roomColumns struct {
	seats  []byte
	config []byte
	state  []byte
}

func encodeRoom(room *models.Room) (roomColumns, error) {
	var (
		cols roomColumns
		err  error
	)
	if cols.seats, err = json.Marshal(room.Seats); err != nil {
		return cols, fmt.Errorf("marshal seats: %w", err)
	}
	if cols.config, err = json.Marshal(room.Config); err != nil {
		return cols, fmt.Errorf("marshal config: %w", err)
	}
	if cols.state, err = json.Marshal(room.State); err != nil {
		return cols, fmt.Errorf("marshal state: %w", err)
	}
	return cols, nil
}

func decodeRoom(room *models.Room, cols roomColumns) error {
	if err := json.Unmarshal(cols.seats, &room.Seats); err != nil {
		return fmt.Errorf("unmarshal seats: %w", err)
	}
	if err := json.Unmarshal(cols.config, &room.Config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(cols.state, &room.State); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}
	return nil
}

func decodePendingTurn(id string, state []byte) (PendingTurn, bool, error) {
	roomID, err := uuid.Parse(id)
	if err != nil {
		return PendingTurn{}, false, fmt.Errorf("parse room id: %w", err)
	}
	room := models.Room{ID: roomID}
	if err := json.Unmarshal(state, &room.State); err != nil {
		return PendingTurn{}, false, fmt.Errorf("unmarshal state: %w", err)
	}
	turn, ok := pendingTurnOf(&room)
	return turn, ok, nil
}
