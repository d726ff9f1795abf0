package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/banpick/go/internal/auth"
	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/draft/room"
	"github.com/mcdev12/banpick/go/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSnapshots struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
	clock clockwork.Clock
}

func (f *fakeSnapshots) GetRoom(_ context.Context, id uuid.UUID) (room.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return room.View{}, drafterr.ErrRoomNotFound
	}
	return room.View{Room: r, SecondsLeft: r.State.SecondsLeft(f.clock.Now())}, nil
}

type harness struct {
	cm    *ConnectionManager
	url   string
	rooms *fakeSnapshots
	clock *clockwork.FakeClock
}

func newHarness(t *testing.T, verifier *auth.Verifier) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	snaps := &fakeSnapshots{rooms: map[uuid.UUID]*models.Room{}, clock: clock}
	cm := NewConnectionManager(DefaultConnectionConfig(), snaps, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cm.Start(ctx)
	}()

	mux := http.NewServeMux()
	NewWebSocketHandler(cm, verifier).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &harness{cm: cm, url: "ws" + strings.TrimPrefix(srv.URL, "http"), rooms: snaps, clock: clock}
}

func (h *harness) addRoom() *models.Room {
	deadline := t0.Add(15 * time.Second)
	r := &models.Room{
		ID:           uuid.New(),
		HostIdentity: "host",
		Config:       models.RoomConfig{TurnSeconds: 15},
		State: models.DraftState{
			Phase:        models.PhaseBanRound1,
			TurnSide:     models.SidePurple,
			TurnSequence: 1,
			Deadline:     &deadline,
		},
		Version: 3,
	}
	h.rooms.mu.Lock()
	h.rooms.rooms[r.ID] = r
	h.rooms.mu.Unlock()
	return r
}

func (h *harness) dial(t *testing.T, roomID uuid.UUID, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url+"/ws/room?room_id="+roomID.String(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func envelope(t *testing.T, roomID uuid.UUID) events.Envelope {
	t.Helper()
	ev, err := events.New(roomID, events.TypeActionApplied, events.ActionAppliedPayload{
		Side:         models.SidePurple,
		Kind:         models.ActionBan,
		Items:        []string{"ahri"},
		TurnSequence: 1,
	}, t0)
	require.NoError(t, err)
	return ev.Envelope()
}

func waitForSubscribers(t *testing.T, cm *ConnectionManager, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cm.Stats().TotalConnections == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSnapshotOnConnect(t *testing.T) {
	h := newHarness(t, auth.NewVerifier(""))
	r := h.addRoom()
	h.clock.Advance(4500 * time.Millisecond)

	conn := h.dial(t, r.ID, http.Header{auth.IdentityHeader: []string{"alice"}})
	f := readFrame(t, conn)

	assert.Equal(t, FrameSnapshot, f.Type)
	assert.Equal(t, r.ID.String(), f.RoomID)
	assert.True(t, t0.Add(4500*time.Millisecond).Equal(f.ServerTime))
	require.NotNil(t, f.Snapshot)
	assert.Equal(t, 11, f.Snapshot.SecondsLeft)
	assert.Equal(t, models.PhaseBanRound1, f.Snapshot.Room.State.Phase)
	assert.Equal(t, 1, f.Snapshot.Room.State.TurnSequence)
}

func TestBroadcastReachesOnlyRoomSubscribers(t *testing.T) {
	h := newHarness(t, auth.NewVerifier(""))
	r1, r2 := h.addRoom(), h.addRoom()

	a := h.dial(t, r1.ID, nil)
	b := h.dial(t, r1.ID, nil)
	other := h.dial(t, r2.ID, nil)
	for _, c := range []*websocket.Conn{a, b, other} {
		readFrame(t, c)
	}
	waitForSubscribers(t, h.cm, 3)

	stats := h.cm.Stats()
	assert.Equal(t, 2, stats.ActiveRooms)
	assert.Equal(t, 2, stats.RoomConnections[r1.ID.String()])

	env := envelope(t, r1.ID)
	h.cm.Broadcast(env)

	for _, c := range []*websocket.Conn{a, b} {
		f := readFrame(t, c)
		assert.Equal(t, FrameEvent, f.Type)
		require.NotNil(t, f.Event)
		assert.Equal(t, env.EventID, f.Event.EventID)
		assert.Equal(t, events.TypeActionApplied, f.Event.EventType)
		assert.JSONEq(t, string(env.Payload), string(f.Event.Payload))
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "subscribers of another room receive nothing")
}

func TestUnknownRoomIsClosed(t *testing.T) {
	h := newHarness(t, auth.NewVerifier(""))
	conn := h.dial(t, uuid.New(), nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseRoomNotFound, closeErr.Code)
	assert.Equal(t, string(drafterr.KindRoomNotFound), closeErr.Text)
	waitForSubscribers(t, h.cm, 0)
}

func TestDisconnectUnregisters(t *testing.T) {
	h := newHarness(t, auth.NewVerifier(""))
	r := h.addRoom()
	conn := h.dial(t, r.ID, nil)
	readFrame(t, conn)
	waitForSubscribers(t, h.cm, 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, h.cm, 0)
}

func TestRoomConnectionValidation(t *testing.T) {
	h := newHarness(t, auth.NewVerifier(""))
	httpURL := "http" + strings.TrimPrefix(h.url, "ws")

	resp, err := http.Get(httpURL + "/ws/room")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(httpURL + "/ws/room?room_id=nope")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAccessTokenQuery(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	h := newHarness(t, verifier)
	r := h.addRoom()

	token, err := verifier.Issue("alice", time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(h.url+"/ws/room?room_id="+r.ID.String()+"&access_token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, FrameSnapshot, readFrame(t, conn).Type)

	_, resp, err := websocket.DefaultDialer.Dial(h.url+"/ws/room?room_id="+r.ID.String()+"&access_token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type fakeMsg struct {
	jetstream.Msg
	subject string
	data    []byte
}

func (m fakeMsg) Subject() string { return m.subject }
func (m fakeMsg) Data() []byte    { return m.data }

func TestProcessMessage(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), &fakeSnapshots{}, nil)
	ec := NewEventConsumer(cm, nil, DefaultJetStreamConsumerConfig())

	env := envelope(t, uuid.New())
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, ec.processMessage(fakeMsg{subject: "draft.events.ActionApplied", data: data}))

	select {
	case got := <-cm.broadcastCh:
		assert.Equal(t, env.EventID, got.EventID)
	default:
		t.Fatal("event was not queued for broadcast")
	}

	assert.Error(t, ec.processMessage(fakeMsg{subject: "draft.events.x", data: []byte("{")}))
	assert.Error(t, ec.processMessage(fakeMsg{subject: "draft.events.x", data: []byte(`{"eventId":"1"}`)}))
}
