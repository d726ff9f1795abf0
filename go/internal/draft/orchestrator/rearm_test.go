package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/repository"
	"github.com/mcdev12/banpick/go/internal/models"
)

type listerFunc func(ctx context.Context) ([]repository.PendingTurn, error)

func (f listerFunc) PendingTurns(ctx context.Context) ([]repository.PendingTurn, error) {
	return f(ctx)
}

func TestRearmSchedulesPendingTurns(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	active := startedRoom(t, store)

	finished := startedRoom(t, store)
	require.NoError(t, store.Update(ctx, finished, func(r *models.Room) ([]events.Event, error) {
		r.State.Phase = models.PhaseFinished
		r.State.TurnSide = ""
		r.State.TurnSequence = 0
		r.State.Deadline = nil
		return nil, nil
	}))

	sched := &recordingScheduler{}
	n, err := Rearm(ctx, store, sched)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []scheduleCall{{active, 1, t0.Add(15 * time.Second)}}, sched.Calls())
}

func TestRearmThenResolveAfterRestart(t *testing.T) {
	ctx := context.Background()
	fx := newStoreWithRoom(t)
	clock := clockwork.NewFakeClockAt(t0.Add(time.Minute))
	s := NewLocalScheduler(clock, 2*time.Second, 1)
	resolver := NewResolver(fx.store, s, NewSeededStrategy(4), defaultPool(t), clock)

	_, err := Rearm(ctx, fx.store, s)
	require.NoError(t, err)
	runScheduler(t, s, resolver)

	require.Eventually(t, func() bool {
		return len(stateOf(t, fx.store, fx.id).Bans.Purple) == 1
	}, 2*time.Second, 5*time.Millisecond, "overdue turn resolves once re-armed")
}

func TestRearmListError(t *testing.T) {
	boom := errors.New("db down")
	_, err := Rearm(context.Background(), listerFunc(func(context.Context) ([]repository.PendingTurn, error) {
		return nil, boom
	}), &recordingScheduler{})
	assert.ErrorIs(t, err, boom)
}
