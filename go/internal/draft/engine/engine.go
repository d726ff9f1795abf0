// Package engine holds the pure draft rules: turn derivation, item
// validation and state transition. Nothing here performs I/O.
package engine

import (
	"strings"
	"time"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/models"
)

// ClampTurnSeconds bounds a configured turn length to the allowed range.
func ClampTurnSeconds(seconds int) int {
	return max(models.MinTurnSeconds, min(models.MaxTurnSeconds, seconds))
}

// TurnDuration is the clamped length of one turn.
func TurnDuration(turnSeconds int) time.Duration {
	return time.Duration(ClampTurnSeconds(turnSeconds)) * time.Second
}

// ValidateItems checks a submitted item list for a turn requiring count items
// and returns the trimmed identifiers. Checks run in a fixed order and the
// first failure wins.
func ValidateItems(state models.DraftState, items []string, count int) ([]string, error) {
	if len(items) != count {
		return nil, drafterr.ErrInvalidLength
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, raw := range items {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, drafterr.ErrEmptyID
		}
		if _, dup := seen[id]; dup {
			return nil, drafterr.ErrDuplicateIDs
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	used := state.UsedItems()
	for _, id := range out {
		if _, ok := used[id]; ok {
			return nil, drafterr.ErrAlreadyUsed
		}
	}
	return out, nil
}

// Apply returns the state that results from side submitting kind/items.
// The input state is not modified.
func Apply(state models.DraftState, side models.Side, kind models.ActionKind, items []string, turnSeconds int, now time.Time) (models.DraftState, error) {
	if state.Phase.Terminal() {
		return state, drafterr.ErrAlreadyOver
	}
	turn, ok := DeriveTurn(state)
	if !ok {
		return state, drafterr.ErrWrongPhase
	}
	if turn.Side != side {
		return state, drafterr.ErrNotYourTurn
	}
	if turn.Kind != kind {
		return state, drafterr.ErrWrongActionKind
	}
	ids, err := ValidateItems(state, items, turn.Count)
	if err != nil {
		return state, err
	}

	next := state.Clone()
	switch kind {
	case models.ActionBan:
		next.Bans = next.Bans.Append(side, ids[0])
	case models.ActionPick:
		next.Picks = next.Picks.Append(side, ids...)
	}
	next.LastAction = &models.Action{Side: side, Kind: kind, Items: append([]string(nil), ids...)}

	upcoming, ok := DeriveTurn(next)
	if !ok {
		next.Phase = models.PhaseFinished
		next.TurnSide = ""
		next.TurnSequence = 0
		next.Deadline = nil
		return next, nil
	}
	next.Phase = upcoming.Phase
	next.TurnSide = upcoming.Side
	next.TurnSequence = state.TurnSequence + 1
	deadline := now.Add(TurnDuration(turnSeconds))
	next.Deadline = &deadline
	return next, nil
}

// Start produces the first turn of a draft. Lists start empty.
func Start(turnSeconds int, now time.Time) models.DraftState {
	next := models.NewLobbyState()
	next.Phase = models.PhaseBanRound1
	turn, _ := DeriveTurn(next)
	next.TurnSide = turn.Side
	next.TurnSequence = 1
	deadline := now.Add(TurnDuration(turnSeconds))
	next.Deadline = &deadline
	return next
}
