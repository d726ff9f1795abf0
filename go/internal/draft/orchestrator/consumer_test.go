package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
)

// fakeMsg records how a message was settled. Methods the consumer never
// calls fall through to the nil embedded interface.
type fakeMsg struct {
	jetstream.Msg
	data    []byte
	settled string
	delay   time.Duration
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "draft.timeouts.test" }
func (m *fakeMsg) Ack() error      { m.settled = "ack"; return nil }
func (m *fakeMsg) Nak() error      { m.settled = "nak"; return nil }
func (m *fakeMsg) Term() error     { m.settled = "term"; return nil }

func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.settled = "nak_delay"
	m.delay = d
	return nil
}

func timeoutMsg(t *testing.T, roomID uuid.UUID, seq int, notBefore time.Time) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(timeoutMessage{Task: Task{RoomID: roomID, TurnSequence: seq}, NotBefore: notBefore})
	require.NoError(t, err)
	return &fakeMsg{data: data}
}

type stubResolver struct {
	err   error
	calls []Task
}

func (s *stubResolver) ResolveTurn(_ context.Context, roomID uuid.UUID, seq int) error {
	s.calls = append(s.calls, Task{RoomID: roomID, TurnSequence: seq})
	return s.err
}

func TestTimeoutConsumerHandle(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("early message is delayed", func(t *testing.T) {
		res := &stubResolver{}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 2*time.Second, 1)
		msg := timeoutMsg(t, id, 1, t0.Add(7*time.Second))

		c.handle(ctx, msg)
		assert.Equal(t, "nak_delay", msg.settled)
		assert.Equal(t, 7*time.Second, msg.delay)
		assert.Empty(t, res.calls)
	})

	t.Run("due message is resolved then acked", func(t *testing.T) {
		res := &stubResolver{}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 2*time.Second, 1)
		msg := timeoutMsg(t, id, 3, t0)

		c.handle(ctx, msg)
		assert.Equal(t, "ack", msg.settled)
		assert.Equal(t, []Task{{RoomID: id, TurnSequence: 3}}, res.calls)
	})

	t.Run("failure is redelivered", func(t *testing.T) {
		res := &stubResolver{err: errors.New("connection refused")}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 2*time.Second, 1)
		msg := timeoutMsg(t, id, 3, t0.Add(-time.Second))

		c.handle(ctx, msg)
		assert.Equal(t, "nak_delay", msg.settled)
		assert.Equal(t, 2*time.Second, msg.delay)
	})

	t.Run("not due on resolver is redelivered", func(t *testing.T) {
		res := &stubResolver{err: ErrNotDue}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 3*time.Second, 1)
		msg := timeoutMsg(t, id, 3, t0)

		c.handle(ctx, msg)
		assert.Equal(t, "nak_delay", msg.settled)
		assert.Equal(t, 3*time.Second, msg.delay)
	})

	t.Run("default retry delay is the grace period", func(t *testing.T) {
		res := &stubResolver{err: errors.New("connection refused")}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 0, 1)
		msg := timeoutMsg(t, id, 3, t0)

		c.handle(ctx, msg)
		assert.Equal(t, DefaultGrace, msg.delay)
	})

	t.Run("unknown room is terminated", func(t *testing.T) {
		res := &stubResolver{err: drafterr.ErrRoomNotFound}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 2*time.Second, 1)
		msg := timeoutMsg(t, id, 3, t0)

		c.handle(ctx, msg)
		assert.Equal(t, "term", msg.settled)
	})

	t.Run("malformed body is terminated", func(t *testing.T) {
		res := &stubResolver{}
		c := NewTimeoutConsumer(nil, res, clockwork.NewFakeClockAt(t0), 2*time.Second, 1)
		msg := &fakeMsg{data: []byte("{not json")}

		c.handle(ctx, msg)
		assert.Equal(t, "term", msg.settled)
		assert.Empty(t, res.calls)
	})
}

// The worker's clock runs ahead of the API server's: the message looks due
// to the worker, but the server still sees the turn as running.
func TestTimeoutConsumerRemoteClockBehind(t *testing.T) {
	ctx := context.Background()
	fx := newStoreWithRoom(t)
	apiClock := clockwork.NewFakeClockAt(t0.Add(14 * time.Second))
	sched := &recordingScheduler{}
	resolver := NewResolver(fx.store, sched, NewSeededStrategy(3), defaultPool(t), apiClock)

	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewService(resolver, 2*time.Second)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	workerClock := clockwork.NewFakeClockAt(t0.Add(18 * time.Second))
	c := NewTimeoutConsumer(nil, NewRemoteResolver(srv.Client(), srv.URL), workerClock, 2*time.Second, 1)

	msg := timeoutMsg(t, fx.id, 1, t0.Add(17*time.Second))
	c.handle(ctx, msg)
	assert.Equal(t, "nak_delay", msg.settled)
	assert.Equal(t, 2*time.Second, msg.delay)
	assert.Empty(t, stateOf(t, fx.store, fx.id).Bans.Purple)
	assert.Empty(t, sched.Calls())

	apiClock.Advance(4 * time.Second)
	redelivered := timeoutMsg(t, fx.id, 1, t0.Add(17*time.Second))
	c.handle(ctx, redelivered)
	assert.Equal(t, "ack", redelivered.settled)

	st := stateOf(t, fx.store, fx.id)
	assert.Len(t, st.Bans.Purple, 1)
	assert.Equal(t, 2, st.TurnSequence)
	require.Len(t, sched.Calls(), 1)
	assert.Equal(t, 2, sched.Calls()[0].seq)
}

func TestTimeoutMessageIdentity(t *testing.T) {
	id := uuid.MustParse("4f1c2d3e-0000-4000-8000-000000000001")
	assert.Equal(t, "draft.timeouts.4f1c2d3e-0000-4000-8000-000000000001", timeoutSubject(id))
	assert.Equal(t, "4f1c2d3e-0000-4000-8000-000000000001:12", timeoutMsgID(id, 12))
}
