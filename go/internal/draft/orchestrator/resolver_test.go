package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/banpick/go/internal/draft/catalog"
	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/draft/engine"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/repository"
	"github.com/mcdev12/banpick/go/internal/draft/room"
	"github.com/mcdev12/banpick/go/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type scheduleCall struct {
	roomID   uuid.UUID
	seq      int
	deadline time.Time
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduleCall
}

func (r *recordingScheduler) Schedule(_ context.Context, roomID uuid.UUID, seq int, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scheduleCall{roomID, seq, deadline})
	return nil
}

func (r *recordingScheduler) Calls() []scheduleCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduleCall(nil), r.calls...)
}

func defaultPool(t *testing.T) []string {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c.Pool()
}

// startedRoom stores a room whose first ban turn began at t0.
func startedRoom(t *testing.T, store *repository.MemoryStore) uuid.UUID {
	t.Helper()
	r := &models.Room{
		ID:           uuid.New(),
		HostIdentity: "host",
		Seats: models.Seats{
			Purple: models.Seat{Identity: "alice", DisplayName: "Alice"},
			Orange: models.Seat{Identity: "bob", DisplayName: "Bob"},
		},
		Config:    models.RoomConfig{TurnSeconds: 15},
		State:     engine.Start(15, t0),
		Version:   1,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	require.NoError(t, store.Create(context.Background(), r, nil))
	return r.ID
}

func stateOf(t *testing.T, store *repository.MemoryStore, id uuid.UUID) models.DraftState {
	t.Helper()
	r, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return r.State
}

func TestResolveBeforeDeadlineIsNoop(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	sched := &recordingScheduler{}
	r := NewResolver(store, sched, NewSeededStrategy(1), defaultPool(t), clock)
	id := startedRoom(t, store)

	clock.Advance(14 * time.Second)
	outcome, err := r.Resolve(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotDue, outcome)
	assert.Empty(t, stateOf(t, store, id).Bans.Purple)
	assert.Empty(t, sched.Calls())
}

func TestResolveAppliesAutoBan(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	sched := &recordingScheduler{}
	pool := defaultPool(t)
	r := NewResolver(store, sched, NewSeededStrategy(1), pool, clock)
	id := startedRoom(t, store)

	clock.Advance(17 * time.Second)
	outcome, err := r.Resolve(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	st := stateOf(t, store, id)
	require.Len(t, st.Bans.Purple, 1)
	assert.Contains(t, pool, st.Bans.Purple[0])
	assert.Equal(t, models.SideOrange, st.TurnSide)
	assert.Equal(t, 2, st.TurnSequence)
	require.NotNil(t, st.LastAction)
	assert.True(t, st.LastAction.Auto)
	require.NotNil(t, st.Deadline)
	assert.Equal(t, t0.Add(32*time.Second), *st.Deadline)

	assert.Equal(t, []scheduleCall{{id, 2, t0.Add(32 * time.Second)}}, sched.Calls())

	var types []events.Type
	for _, ev := range store.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.Type{events.TypeActionApplied, events.TypeTurnStarted}, types)
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	r := NewResolver(store, nil, NewSeededStrategy(7), defaultPool(t), clock)
	id := startedRoom(t, store)

	clock.Advance(time.Minute)
	outcome, err := r.Resolve(ctx, id, 1)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	before, err := store.Get(ctx, id)
	require.NoError(t, err)

	outcome, err = r.Resolve(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResolveInactiveRooms(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	r := NewResolver(store, nil, NewSeededStrategy(1), defaultPool(t), clock)

	lobby := &models.Room{ID: uuid.New(), HostIdentity: "host", Config: models.RoomConfig{TurnSeconds: 15}, State: models.NewLobbyState(), Version: 1}
	require.NoError(t, store.Create(ctx, lobby, nil))

	aborted := startedRoom(t, store)
	require.NoError(t, store.Update(ctx, aborted, func(r *models.Room) ([]events.Event, error) {
		r.State.Phase = models.PhaseAborted
		return nil, nil
	}))

	clock.Advance(time.Minute)
	for _, id := range []uuid.UUID{lobby.ID, aborted} {
		outcome, err := r.Resolve(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInactive, outcome)
	}

	_, err := r.Resolve(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, drafterr.ErrRoomNotFound)
}

func TestResolveWithExhaustedPool(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	r := NewResolver(store, nil, NewSeededStrategy(1), []string{"only"}, clock)
	id := startedRoom(t, store)

	require.NoError(t, store.Update(ctx, id, func(r *models.Room) ([]events.Event, error) {
		next, err := engine.Apply(r.State, models.SidePurple, models.ActionBan, []string{"only"}, 15, t0)
		r.State = next
		return nil, err
	}))

	clock.Advance(time.Minute)
	outcome, err := r.Resolve(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, outcome)
	st := stateOf(t, store, id)
	assert.Equal(t, 2, st.TurnSequence)
	assert.Empty(t, st.Bans.Orange)
}

func TestResolveChainFinishesDraft(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(t0)
	pool := defaultPool(t)
	r := NewResolver(store, nil, NewSeededStrategy(42), pool, clock)
	id := startedRoom(t, store)

	for i := 0; i < 13; i++ {
		st := stateOf(t, store, id)
		require.NotEqual(t, models.PhaseFinished, st.Phase, "resolution %d", i)
		clock.Advance(20 * time.Second)
		outcome, err := r.Resolve(ctx, id, st.TurnSequence)
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, outcome, "resolution %d", i)
	}

	st := stateOf(t, store, id)
	assert.Equal(t, models.PhaseFinished, st.Phase)
	assert.Nil(t, st.Deadline)
	all := append(append(append(append([]string{}, st.Bans.Purple...), st.Bans.Orange...), st.Picks.Purple...), st.Picks.Orange...)
	assert.Len(t, all, 16)
	assert.ElementsMatch(t, pool, all)
}

func TestResolveRacesHumanAction(t *testing.T) {
	ctx := context.Background()
	pool := defaultPool(t)

	for i := 0; i < 50; i++ {
		store := repository.NewMemoryStore()
		clock := clockwork.NewFakeClockAt(t0)
		resolver := NewResolver(store, nil, NewSeededStrategy(int64(i)), pool, clock)
		app := room.NewApp(store, nil, clock)
		id := startedRoom(t, store)
		clock.Advance(20 * time.Second)

		var (
			wg       sync.WaitGroup
			humanErr error
			outcome  Outcome
			resErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, humanErr = app.ApplyAction(ctx, room.ApplyActionRequest{
				RoomID: id, Identity: "alice", Kind: models.ActionBan, Items: []string{"human-choice"},
			})
		}()
		go func() {
			defer wg.Done()
			outcome, resErr = resolver.Resolve(ctx, id, 1)
		}()
		wg.Wait()

		require.NoError(t, resErr)
		st := stateOf(t, store, id)
		require.Len(t, st.Bans.Purple, 1, "exactly one action lands for the turn")
		assert.Equal(t, 2, st.TurnSequence)

		if humanErr == nil {
			assert.Equal(t, OutcomeStale, outcome)
			assert.Equal(t, []string{"human-choice"}, st.Bans.Purple)
		} else {
			assert.ErrorIs(t, humanErr, drafterr.ErrNotYourTurn)
			assert.Equal(t, OutcomeApplied, outcome)
			assert.True(t, st.LastAction.Auto)
		}
	}
}

func TestRandomStrategy(t *testing.T) {
	s := NewSeededStrategy(3)
	candidates := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 100; i++ {
		got, ok := s.Select(candidates, 2)
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.NotEqual(t, got[0], got[1])
		assert.Subset(t, candidates, got)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, candidates, "input is not reordered")

	_, ok := s.Select([]string{"a"}, 2)
	assert.False(t, ok)
	_, ok = s.Select(nil, 1)
	assert.False(t, ok)
}

type roomFixture struct {
	store *repository.MemoryStore
	id    uuid.UUID
}

func newStoreWithRoom(t *testing.T) roomFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	return roomFixture{store: store, id: startedRoom(t, store)}
}
