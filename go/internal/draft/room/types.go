package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/models"
)

type CreateRoomRequest struct {
	HostIdentity string `json:"-"`
	TurnSeconds  int    `json:"turnSeconds"`
}

type ClaimSeatRequest struct {
	RoomID      uuid.UUID   `json:"roomId"`
	Identity    string      `json:"-"`
	Side        models.Side `json:"side"`
	DisplayName string      `json:"displayName"`
}

type LeaveSeatRequest struct {
	RoomID   uuid.UUID   `json:"roomId"`
	Identity string      `json:"-"`
	Side     models.Side `json:"side"`
}

type StartDraftRequest struct {
	RoomID   uuid.UUID `json:"roomId"`
	Identity string    `json:"-"`
}

type AbortDraftRequest struct {
	RoomID   uuid.UUID `json:"roomId"`
	Identity string    `json:"-"`
}

type ApplyActionRequest struct {
	RoomID   uuid.UUID         `json:"roomId"`
	Identity string            `json:"-"`
	Kind     models.ActionKind `json:"kind"`
	Items    []string          `json:"items"`
}

// TurnResult is the outcome of a transition. Deadline is nil and
// TurnSequence zero once the draft is over.
type TurnResult struct {
	Phase        models.Phase `json:"phase"`
	TurnSide     models.Side  `json:"turnSide,omitempty"`
	TurnSequence int          `json:"turnSequence"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
}

func turnResult(st models.DraftState) TurnResult {
	return TurnResult{
		Phase:        st.Phase,
		TurnSide:     st.TurnSide,
		TurnSequence: st.TurnSequence,
		Deadline:     st.Deadline,
	}
}

// View is a room snapshot plus the derived countdown.
type View struct {
	Room        *models.Room `json:"room"`
	SecondsLeft int          `json:"secondsLeft"`
}
