package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/repository"
)

// PendingTurnLister lists the turns in-progress rooms are waiting on.
type PendingTurnLister interface {
	PendingTurns(ctx context.Context) ([]repository.PendingTurn, error)
}

// Rearm schedules a timeout for every pending turn in store. It restores the
// timers an in-process scheduler loses on restart. Turns whose deadline has
// already passed fire after the grace period.
func Rearm(ctx context.Context, store PendingTurnLister, scheduler Scheduler) (int, error) {
	turns, err := store.PendingTurns(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending turns: %w", err)
	}
	armed := 0
	for _, turn := range turns {
		if err := scheduler.Schedule(ctx, turn.RoomID, turn.TurnSequence, turn.Deadline); err != nil {
			log.Error().
				Err(err).
				Str("room_id", turn.RoomID.String()).
				Int("turn_sequence", turn.TurnSequence).
				Msg("failed to re-arm turn timeout")
			continue
		}
		armed++
	}
	log.Info().Int("rooms", armed).Msg("re-armed pending turn timeouts")
	return armed, nil
}
