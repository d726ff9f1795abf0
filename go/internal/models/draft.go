package models

import (
	"time"
)

// Side identifies one of the two competing parties in a room.
type Side string

const (
	SidePurple Side = "PURPLE"
	SideOrange Side = "ORANGE"
)

// Sides lists both sides in acting order.
var Sides = [2]Side{SidePurple, SideOrange}

func (s Side) Valid() bool {
	return s == SidePurple || s == SideOrange
}

// Phase is a contiguous segment of the draft script.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseBanRound1  Phase = "ban_round_1"
	PhasePickRound1 Phase = "pick_round_1"
	PhaseBanRound2  Phase = "ban_round_2"
	PhasePickRound2 Phase = "pick_round_2"
	PhaseFinished   Phase = "finished"
	PhaseAborted    Phase = "aborted"
)

// Terminal reports whether no further transition may be applied.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseAborted
}

// ActionKind is the kind of draft action a turn requires.
type ActionKind string

const (
	ActionBan  ActionKind = "ban"
	ActionPick ActionKind = "pick"
)

func (k ActionKind) Valid() bool {
	return k == ActionBan || k == ActionPick
}

// ItemsBySide holds an append-only item list per side.
type ItemsBySide struct {
	Purple []string `json:"PURPLE"`
	Orange []string `json:"ORANGE"`
}

// Of returns the list for a side.
func (b ItemsBySide) Of(side Side) []string {
	if side == SideOrange {
		return b.Orange
	}
	return b.Purple
}

// Append returns a copy of b with items appended to side's list.
// The receiver's backing arrays are never shared with the result.
func (b ItemsBySide) Append(side Side, items ...string) ItemsBySide {
	out := b.Clone()
	switch side {
	case SidePurple:
		out.Purple = append(out.Purple, items...)
	case SideOrange:
		out.Orange = append(out.Orange, items...)
	}
	return out
}

func (b ItemsBySide) Clone() ItemsBySide {
	return ItemsBySide{Purple: cloneList(b.Purple), Orange: cloneList(b.Orange)}
}

func cloneList(l []string) []string {
	if l == nil {
		return nil
	}
	return append(make([]string, 0, len(l)), l...)
}

// Action is the most recently applied draft action.
type Action struct {
	Side  Side       `json:"side"`
	Kind  ActionKind `json:"kind"`
	Items []string   `json:"items"`
	Auto  bool       `json:"auto,omitempty"`
}

// DraftState is the mutable draft progress of a room. It is always replaced
// wholesale, never patched field by field.
type DraftState struct {
	Phase        Phase       `json:"phase"`
	TurnSide     Side        `json:"turnSide,omitempty"`
	TurnSequence int         `json:"turnSequence,omitempty"`
	Deadline     *time.Time  `json:"deadline,omitempty"`
	Bans         ItemsBySide `json:"bansBySide"`
	Picks        ItemsBySide `json:"picksBySide"`
	LastAction   *Action     `json:"lastAction,omitempty"`
}

// NewLobbyState returns the state of a freshly created room.
func NewLobbyState() DraftState {
	return DraftState{
		Phase: PhaseLobby,
		Bans:  ItemsBySide{Purple: []string{}, Orange: []string{}},
		Picks: ItemsBySide{Purple: []string{}, Orange: []string{}},
	}
}

// Clone returns a deep copy of the state.
func (s DraftState) Clone() DraftState {
	out := s
	out.Bans = s.Bans.Clone()
	out.Picks = s.Picks.Clone()
	if s.Deadline != nil {
		d := *s.Deadline
		out.Deadline = &d
	}
	if s.LastAction != nil {
		a := *s.LastAction
		a.Items = append([]string(nil), s.LastAction.Items...)
		out.LastAction = &a
	}
	return out
}

// UsedItems returns every identifier present in any ban or pick list.
func (s DraftState) UsedItems() map[string]struct{} {
	used := make(map[string]struct{}, len(s.Bans.Purple)+len(s.Bans.Orange)+len(s.Picks.Purple)+len(s.Picks.Orange))
	for _, list := range [][]string{s.Bans.Purple, s.Bans.Orange, s.Picks.Purple, s.Picks.Orange} {
		for _, id := range list {
			used[id] = struct{}{}
		}
	}
	return used
}

// SecondsLeft projects the countdown for the current turn. It never owns a
// timer; the persisted deadline is the only source of truth.
func (s DraftState) SecondsLeft(now time.Time) int {
	if s.Deadline == nil {
		return 0
	}
	left := s.Deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}
