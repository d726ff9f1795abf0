package room

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/draft/engine"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/repository"
	"github.com/mcdev12/banpick/go/internal/models"
)

// Store defines what the room app needs from persistence
type Store interface {
	Create(ctx context.Context, room *models.Room, evs []events.Event) error
	Get(ctx context.Context, id uuid.UUID) (*models.Room, error)
	Update(ctx context.Context, id uuid.UUID, fn repository.Mutator) error
}

// Scheduler requests a timeout resolution for (room, turnSequence) once
// deadline has passed.
type Scheduler interface {
	Schedule(ctx context.Context, roomID uuid.UUID, turnSequence int, deadline time.Time) error
}

// App handles room business logic
type App struct {
	store     Store
	scheduler Scheduler
	clock     clockwork.Clock
}

// NewApp creates a new room App
func NewApp(store Store, scheduler Scheduler, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		store:     store,
		scheduler: scheduler,
		clock:     clock,
	}
}

func touch(room *models.Room, now time.Time) {
	room.Version++
	room.UpdatedAt = now
}

// CreateRoom creates a room in the lobby with empty seats.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if req.HostIdentity == "" {
		return nil, drafterr.ErrUnauthenticated
	}
	seconds := req.TurnSeconds
	if seconds == 0 {
		seconds = models.DefaultTurnSeconds
	}
	if seconds < models.MinTurnSeconds || seconds > models.MaxTurnSeconds {
		return nil, drafterr.ErrInvalidTurnSecs
	}

	now := a.clock.Now().UTC()
	room := &models.Room{
		ID:           uuid.New(),
		HostIdentity: req.HostIdentity,
		Config:       models.RoomConfig{TurnSeconds: seconds},
		State:        models.NewLobbyState(),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ev, err := events.New(room.ID, events.TypeRoomCreated, events.RoomCreatedPayload{
		HostIdentity: room.HostIdentity,
		TurnSeconds:  seconds,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := a.store.Create(ctx, room, []events.Event{ev}); err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Int("turn_seconds", seconds).
		Msg("room created")
	return room, nil
}

// ClaimSeat seats identity on a side.
func (a *App) ClaimSeat(ctx context.Context, req ClaimSeatRequest) error {
	if req.Identity == "" {
		return drafterr.ErrUnauthenticated
	}
	if !req.Side.Valid() {
		return drafterr.ErrInvalidArgument
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return drafterr.ErrEmptyDisplayName
	}

	return a.store.Update(ctx, req.RoomID, func(room *models.Room) ([]events.Event, error) {
		other := models.SideOrange
		if req.Side == models.SideOrange {
			other = models.SidePurple
		}
		if room.Seats.Of(other).Identity == req.Identity {
			return nil, drafterr.ErrSameUserBothSides
		}
		if room.Seats.Of(req.Side).Occupied() {
			return nil, drafterr.ErrAlreadyOccupied
		}
		now := a.clock.Now().UTC()
		room.Seats.Set(req.Side, models.Seat{Identity: req.Identity, DisplayName: name})
		touch(room, now)
		ev, err := events.New(room.ID, events.TypeSeatClaimed, events.SeatPayload{
			Side:        req.Side,
			Identity:    req.Identity,
			DisplayName: name,
		}, now)
		return []events.Event{ev}, err
	})
}

// LeaveSeat vacates a side. Only the occupant or the host may do so; the
// display name is kept. Leaving an empty seat is a no-op.
func (a *App) LeaveSeat(ctx context.Context, req LeaveSeatRequest) error {
	if req.Identity == "" {
		return drafterr.ErrUnauthenticated
	}
	if !req.Side.Valid() {
		return drafterr.ErrInvalidArgument
	}

	err := a.store.Update(ctx, req.RoomID, func(room *models.Room) ([]events.Event, error) {
		seat := room.Seats.Of(req.Side)
		if !seat.Occupied() {
			return nil, repository.ErrUnchanged
		}
		if seat.Identity != req.Identity && req.Identity != room.HostIdentity {
			return nil, drafterr.ErrNotAllowed
		}
		now := a.clock.Now().UTC()
		room.Seats.Set(req.Side, models.Seat{DisplayName: seat.DisplayName})
		touch(room, now)
		ev, err := events.New(room.ID, events.TypeSeatLeft, events.SeatPayload{
			Side:     req.Side,
			Identity: seat.Identity,
		}, now)
		return []events.Event{ev}, err
	})
	if err == repository.ErrUnchanged {
		return nil
	}
	return err
}

// StartDraft moves a ready lobby into the first ban turn and schedules its
// timeout.
func (a *App) StartDraft(ctx context.Context, req StartDraftRequest) (TurnResult, error) {
	if req.Identity == "" {
		return TurnResult{}, drafterr.ErrUnauthenticated
	}

	var result TurnResult
	err := a.store.Update(ctx, req.RoomID, func(room *models.Room) ([]events.Event, error) {
		if room.HostIdentity != req.Identity {
			return nil, drafterr.ErrNotHost
		}
		if !room.Seats.Ready() {
			return nil, drafterr.ErrSeatsNotReady
		}
		if room.State.Phase != models.PhaseLobby {
			return nil, drafterr.ErrAlreadyStarted
		}
		now := a.clock.Now().UTC()
		room.State = engine.Start(room.Config.TurnSeconds, now)
		touch(room, now)
		result = turnResult(room.State)

		started, err := events.New(room.ID, events.TypeDraftStarted, events.DraftStartedPayload{StartedAt: now}, now)
		if err != nil {
			return nil, err
		}
		turn, _, err := events.TurnStarted(room, now)
		if err != nil {
			return nil, err
		}
		return []events.Event{started, turn}, nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	log.Info().
		Str("room_id", req.RoomID.String()).
		Int("turn_sequence", result.TurnSequence).
		Msg("draft started")
	a.schedule(ctx, req.RoomID, result)
	return result, nil
}

// ApplyAction applies a seated participant's ban or pick. The room is re-read
// inside the transaction so a racing timeout resolution is observed.
func (a *App) ApplyAction(ctx context.Context, req ApplyActionRequest) (TurnResult, error) {
	if req.Identity == "" {
		return TurnResult{}, drafterr.ErrUnauthenticated
	}
	if !req.Kind.Valid() {
		return TurnResult{}, drafterr.ErrInvalidArgument
	}

	var (
		result TurnResult
		side   models.Side
	)
	err := a.store.Update(ctx, req.RoomID, func(room *models.Room) ([]events.Event, error) {
		var ok bool
		side, ok = room.Seats.SideOf(req.Identity)
		if !ok {
			return nil, drafterr.ErrNotSeated
		}
		st := room.State
		switch {
		case st.Phase == models.PhaseLobby:
			return nil, drafterr.ErrNotStarted
		case st.Phase.Terminal():
			return nil, drafterr.ErrAlreadyOver
		case st.TurnSide != "" && st.TurnSide != side:
			return nil, drafterr.ErrNotYourTurn
		}

		now := a.clock.Now().UTC()
		next, err := engine.Apply(st, side, req.Kind, req.Items, room.Config.TurnSeconds, now)
		if err != nil {
			return nil, err
		}
		room.State = next
		touch(room, now)
		result = turnResult(next)
		return events.Transition(room, st.TurnSequence, now)
	})
	if err != nil {
		log.Debug().
			Err(err).
			Str("room_id", req.RoomID.String()).
			Str("kind", string(req.Kind)).
			Msg("action rejected")
		return TurnResult{}, err
	}

	log.Info().
		Str("room_id", req.RoomID.String()).
		Str("side", string(side)).
		Str("kind", string(req.Kind)).
		Strs("items", req.Items).
		Str("phase", string(result.Phase)).
		Int("turn_sequence", result.TurnSequence).
		Msg("action applied")
	a.schedule(ctx, req.RoomID, result)
	return result, nil
}

// AbortDraft ends a room that has not reached a terminal phase.
func (a *App) AbortDraft(ctx context.Context, req AbortDraftRequest) error {
	if req.Identity == "" {
		return drafterr.ErrUnauthenticated
	}
	err := a.store.Update(ctx, req.RoomID, func(room *models.Room) ([]events.Event, error) {
		if room.HostIdentity != req.Identity {
			return nil, drafterr.ErrNotHost
		}
		if room.State.Phase.Terminal() {
			return nil, drafterr.ErrAlreadyOver
		}
		now := a.clock.Now().UTC()
		next := room.State.Clone()
		next.Phase = models.PhaseAborted
		next.TurnSide = ""
		next.Deadline = nil
		room.State = next
		touch(room, now)
		ev, err := events.New(room.ID, events.TypeDraftAborted, events.DraftAbortedPayload{
			AbortedBy: req.Identity,
			AbortedAt: now,
		}, now)
		return []events.Event{ev}, err
	})
	if err != nil {
		return err
	}
	log.Info().Str("room_id", req.RoomID.String()).Msg("draft aborted")
	return nil
}

// GetRoom returns a snapshot of the room with its countdown projection.
func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (View, error) {
	room, err := a.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return View{Room: room, SecondsLeft: room.State.SecondsLeft(a.clock.Now())}, nil
}

// schedule requests the timeout for a freshly committed turn. Failures are
// logged only; the committed transition stands.
func (a *App) schedule(ctx context.Context, roomID uuid.UUID, result TurnResult) {
	if a.scheduler == nil || result.Deadline == nil || result.TurnSequence == 0 {
		return
	}
	if err := a.scheduler.Schedule(ctx, roomID, result.TurnSequence, *result.Deadline); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Int("turn_sequence", result.TurnSequence).
			Msg("failed to schedule turn timeout")
	}
}
