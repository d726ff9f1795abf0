// Package orchestrator drives expired turns forward. A scheduler delivers
// (room, turnSequence) tasks no earlier than the turn deadline plus a grace
// period; the Resolver re-checks the persisted room and, when the turn is
// still current, auto-selects items and applies them like a human action.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/engine"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/repository"
	"github.com/mcdev12/banpick/go/internal/models"
)

// DefaultGrace favours a just-in-time human action over auto resolution.
const DefaultGrace = 2 * time.Second

// ErrNotDue is returned by ResolveTurn when the turn is still current but its
// deadline has not passed on the resolver's clock. The task must be retried.
var ErrNotDue = errors.New("turn timeout not due")

// Store defines what the resolver needs from persistence
type Store interface {
	Update(ctx context.Context, id uuid.UUID, fn repository.Mutator) error
}

// Scheduler requests a resolution for (room, turnSequence) after deadline.
type Scheduler interface {
	Schedule(ctx context.Context, roomID uuid.UUID, turnSequence int, deadline time.Time) error
}

// TurnResolver resolves one scheduled timeout. Implementations must be safe
// to call any number of times for the same task.
type TurnResolver interface {
	ResolveTurn(ctx context.Context, roomID uuid.UUID, turnSequence int) error
}

// Outcome reports what a resolution did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeInactive  Outcome = "inactive"
	OutcomeStale     Outcome = "stale"
	OutcomeNotDue    Outcome = "not_due"
	OutcomeExhausted Outcome = "exhausted"
)

// Resolver auto-resolves expired turns.
type Resolver struct {
	store     Store
	scheduler Scheduler
	strat     AutoPickStrategy
	pool      []string
	clock     clockwork.Clock
}

// NewResolver creates a resolver drawing from pool. scheduler may be nil,
// in which case the chain of timeouts stops after each resolution.
func NewResolver(store Store, scheduler Scheduler, strat AutoPickStrategy, pool []string, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{
		store:     store,
		scheduler: scheduler,
		strat:     strat,
		pool:      append([]string(nil), pool...),
		clock:     clock,
	}
}

var _ TurnResolver = (*Resolver)(nil)

func (r *Resolver) ResolveTurn(ctx context.Context, roomID uuid.UUID, turnSequence int) error {
	outcome, err := r.Resolve(ctx, roomID, turnSequence)
	if err == nil && outcome == OutcomeNotDue {
		return ErrNotDue
	}
	return err
}

// Resolve applies an automatic action for turnSequence if that turn is still
// pending and its deadline has passed. Every other case is a no-op and
// returns a nil error.
func (r *Resolver) Resolve(ctx context.Context, roomID uuid.UUID, turnSequence int) (Outcome, error) {
	return r.ResolveAfter(ctx, roomID, turnSequence, 0)
}

// ResolveAfter is Resolve with the turn counted as due only once
// deadline+grace has passed.
func (r *Resolver) ResolveAfter(ctx context.Context, roomID uuid.UUID, turnSequence int, grace time.Duration) (Outcome, error) {
	var (
		outcome Outcome
		next    models.DraftState
	)
	err := r.store.Update(ctx, roomID, func(room *models.Room) ([]events.Event, error) {
		st := room.State
		now := r.clock.Now().UTC()
		switch {
		case st.Phase == models.PhaseLobby || st.Phase.Terminal():
			outcome = OutcomeInactive
			return nil, repository.ErrUnchanged
		case st.TurnSequence != turnSequence:
			outcome = OutcomeStale
			return nil, repository.ErrUnchanged
		case st.Deadline == nil || now.Before(st.Deadline.Add(grace)):
			outcome = OutcomeNotDue
			return nil, repository.ErrUnchanged
		}

		turn, ok := engine.DeriveTurn(st)
		if !ok {
			outcome = OutcomeInactive
			return nil, repository.ErrUnchanged
		}
		items, ok := r.strat.Select(r.candidates(st), turn.Count)
		if !ok {
			outcome = OutcomeExhausted
			return nil, repository.ErrUnchanged
		}

		applied, err := engine.Apply(st, turn.Side, turn.Kind, items, room.Config.TurnSeconds, now)
		if err != nil {
			return nil, err
		}
		applied.LastAction.Auto = true
		room.State = applied
		room.Version++
		room.UpdatedAt = now
		next = applied
		outcome = OutcomeApplied
		return events.Transition(room, turnSequence, now)
	})
	if errors.Is(err, repository.ErrUnchanged) {
		log.Debug().
			Str("room_id", roomID.String()).
			Int("turn_sequence", turnSequence).
			Str("outcome", string(outcome)).
			Msg("timeout resolution skipped")
		return outcome, nil
	}
	if err != nil {
		return "", err
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int("turn_sequence", turnSequence).
		Strs("items", next.LastAction.Items).
		Str("phase", string(next.Phase)).
		Msg("turn auto-resolved")

	if r.scheduler != nil && next.TurnSequence > 0 && next.Deadline != nil {
		if err := r.scheduler.Schedule(ctx, roomID, next.TurnSequence, *next.Deadline); err != nil {
			log.Error().
				Err(err).
				Str("room_id", roomID.String()).
				Int("turn_sequence", next.TurnSequence).
				Msg("failed to schedule turn timeout")
		}
	}
	return OutcomeApplied, nil
}

// candidates is the pool minus every used item, in pool order.
func (r *Resolver) candidates(st models.DraftState) []string {
	used := st.UsedItems()
	out := make([]string, 0, len(r.pool))
	for _, id := range r.pool {
		if _, taken := used[id]; !taken {
			out = append(out, id)
		}
	}
	return out
}
