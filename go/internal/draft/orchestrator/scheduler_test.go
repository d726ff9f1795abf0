package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResolver struct {
	mu    sync.Mutex
	tasks chan Task
	errs  []error
}

func newRecordingResolver() *recordingResolver {
	return &recordingResolver{tasks: make(chan Task, 16)}
}

func (r *recordingResolver) ResolveTurn(_ context.Context, roomID uuid.UUID, seq int) error {
	r.mu.Lock()
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	r.mu.Unlock()
	r.tasks <- Task{RoomID: roomID, TurnSequence: seq}
	return err
}

func expectTask(t *testing.T, r *recordingResolver, want Task) {
	t.Helper()
	select {
	case got := <-r.tasks:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout for %v was not delivered", want)
	}
}

func expectNoTask(t *testing.T, r *recordingResolver) {
	t.Helper()
	select {
	case got := <-r.tasks:
		t.Fatalf("unexpected delivery %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func runScheduler(t *testing.T, s *LocalScheduler, r TurnResolver) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, r)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestLocalSchedulerFiresAfterGrace(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalScheduler(clock, 2*time.Second, 2)
	r := newRecordingResolver()
	runScheduler(t, s, r)

	id := uuid.New()
	require.NoError(t, s.Schedule(ctx, id, 1, t0.Add(15*time.Second)))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(16 * time.Second)
	expectNoTask(t, r)

	clock.Advance(time.Second)
	expectTask(t, r, Task{RoomID: id, TurnSequence: 1})

	_, pending := s.Pending(id)
	assert.False(t, pending)
}

func TestLocalSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalScheduler(clock, 2*time.Second, 1)
	r := newRecordingResolver()
	runScheduler(t, s, r)

	id := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), id, 4, t0.Add(-time.Minute)))
	expectTask(t, r, Task{RoomID: id, TurnSequence: 4})
}

func TestLocalSchedulerDeduplicates(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalScheduler(clock, 0, 1)
	r := newRecordingResolver()
	runScheduler(t, s, r)

	id := uuid.New()
	require.NoError(t, s.Schedule(ctx, id, 1, t0.Add(10*time.Second)))
	require.NoError(t, s.Schedule(ctx, id, 1, t0.Add(10*time.Second)))
	require.NoError(t, s.Schedule(ctx, id, 2, t0.Add(20*time.Second)))
	require.NoError(t, s.Schedule(ctx, id, 1, t0.Add(10*time.Second)))

	seq, ok := s.Pending(id)
	require.True(t, ok)
	assert.Equal(t, 2, seq)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(20 * time.Second)
	expectTask(t, r, Task{RoomID: id, TurnSequence: 2})
	expectNoTask(t, r)
}

func TestLocalSchedulerRetriesInfrastructureErrors(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalScheduler(clock, time.Second, 1)
	r := newRecordingResolver()
	r.errs = []error{errors.New("database is locked")}
	runScheduler(t, s, r)

	id := uuid.New()
	require.NoError(t, s.Schedule(ctx, id, 3, t0))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	expectTask(t, r, Task{RoomID: id, TurnSequence: 3})

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	expectTask(t, r, Task{RoomID: id, TurnSequence: 3})
}

func TestLocalSchedulerDrivesResolver(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalScheduler(clock, 2*time.Second, 2)
	store := newStoreWithRoom(t)
	resolver := NewResolver(store.store, s, NewSeededStrategy(5), defaultPool(t), clock)
	runScheduler(t, s, resolver)

	require.NoError(t, s.Schedule(ctx, store.id, 1, t0.Add(15*time.Second)))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(17 * time.Second)

	require.Eventually(t, func() bool {
		seq, ok := s.Pending(store.id)
		return ok && seq == 2
	}, 2*time.Second, 5*time.Millisecond, "resolution schedules the next turn")

	st := stateOf(t, store.store, store.id)
	assert.Len(t, st.Bans.Purple, 1)
	assert.True(t, st.LastAction.Auto)
}

func TestLocalSchedulerRetriesNotDue(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalScheduler(clock, time.Second, 1)
	r := newRecordingResolver()
	r.errs = []error{ErrNotDue}
	runScheduler(t, s, r)

	id := uuid.New()
	require.NoError(t, s.Schedule(ctx, id, 5, t0))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	expectTask(t, r, Task{RoomID: id, TurnSequence: 5})

	require.Eventually(t, func() bool {
		seq, ok := s.Pending(id)
		return ok && seq == 5
	}, 2*time.Second, 5*time.Millisecond)
	clock.Advance(time.Second)
	expectTask(t, r, Task{RoomID: id, TurnSequence: 5})
}
