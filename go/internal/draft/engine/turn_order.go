package engine

import (
	"github.com/mcdev12/banpick/go/internal/models"
)

// Turn is the obligation for one side to submit an action.
type Turn struct {
	Phase models.Phase
	Side  models.Side
	Kind  models.ActionKind
	Count int
}

// step fires while the side's list of the phase's kind is shorter than below.
type step struct {
	side  models.Side
	below int
	count int
}

type phaseScript struct {
	kind  models.ActionKind
	steps []step
	// next is entered once every step is satisfied; "" means the draft is complete.
	next models.Phase
}

var script = map[models.Phase]phaseScript{
	models.PhaseBanRound1: {
		kind: models.ActionBan,
		steps: []step{
			{models.SidePurple, 1, 1},
			{models.SideOrange, 1, 1},
			{models.SidePurple, 2, 1},
			{models.SideOrange, 2, 1},
		},
		next: models.PhasePickRound1,
	},
	models.PhasePickRound1: {
		kind: models.ActionPick,
		steps: []step{
			{models.SidePurple, 1, 1},
			{models.SideOrange, 2, 2},
			{models.SidePurple, 3, 2},
			{models.SideOrange, 3, 1},
		},
		next: models.PhaseBanRound2,
	},
	models.PhaseBanRound2: {
		kind: models.ActionBan,
		steps: []step{
			{models.SidePurple, 3, 1},
			{models.SideOrange, 3, 1},
		},
		next: models.PhasePickRound2,
	},
	models.PhasePickRound2: {
		kind: models.ActionPick,
		steps: []step{
			{models.SideOrange, 4, 1},
			{models.SidePurple, 5, 2},
			{models.SideOrange, 5, 1},
		},
	},
}

// DeriveTurn returns the next required turn, or false when no turn is
// pending (lobby, terminal, or complete). It depends only on the phase and the
// four list lengths.
func DeriveTurn(state models.DraftState) (Turn, bool) {
	phase := state.Phase
	for {
		ps, ok := script[phase]
		if !ok {
			return Turn{}, false
		}
		lists := state.Bans
		if ps.kind == models.ActionPick {
			lists = state.Picks
		}
		for _, s := range ps.steps {
			if len(lists.Of(s.side)) < s.below {
				return Turn{Phase: phase, Side: s.side, Kind: ps.kind, Count: s.count}, true
			}
		}
		if ps.next == "" {
			return Turn{}, false
		}
		phase = ps.next
	}
}
