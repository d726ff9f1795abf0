package events

import (
	"time"

	"github.com/mcdev12/banpick/go/internal/draft/engine"
	"github.com/mcdev12/banpick/go/internal/models"
)

// TurnStarted describes the turn room is now waiting on. It returns false
// when no turn is pending.
func TurnStarted(room *models.Room, at time.Time) (Event, bool, error) {
	turn, ok := engine.DeriveTurn(room.State)
	if !ok || room.State.Deadline == nil {
		return Event{}, false, nil
	}
	ev, err := New(room.ID, TypeTurnStarted, TurnStartedPayload{
		Phase:        turn.Phase,
		Side:         turn.Side,
		Kind:         turn.Kind,
		Count:        turn.Count,
		TurnSequence: room.State.TurnSequence,
		Deadline:     *room.State.Deadline,
	}, at)
	return ev, err == nil, err
}

// Transition returns the events for an applied action. actedSeq is the
// sequence number of the turn that was acted on.
func Transition(room *models.Room, actedSeq int, at time.Time) ([]Event, error) {
	st := room.State
	var out []Event
	if a := st.LastAction; a != nil {
		ev, err := New(room.ID, TypeActionApplied, ActionAppliedPayload{
			Side:         a.Side,
			Kind:         a.Kind,
			Items:        a.Items,
			Auto:         a.Auto,
			TurnSequence: actedSeq,
		}, at)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if st.Phase == models.PhaseFinished {
		ev, err := New(room.ID, TypeDraftFinished, DraftFinishedPayload{
			Bans:       st.Bans,
			Picks:      st.Picks,
			FinishedAt: at,
		}, at)
		if err != nil {
			return nil, err
		}
		return append(out, ev), nil
	}
	ev, ok, err := TurnStarted(room, at)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, ev)
	}
	return out, nil
}
