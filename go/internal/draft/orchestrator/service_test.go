package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
)

func TestRemoteResolver(t *testing.T) {
	ctx := context.Background()
	fx := newStoreWithRoom(t)
	clock := clockwork.NewFakeClockAt(t0)
	resolver := NewResolver(fx.store, nil, NewSeededStrategy(9), defaultPool(t), clock)

	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewService(resolver, 0)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	remote := NewRemoteResolver(srv.Client(), srv.URL)

	err := remote.ResolveTurn(ctx, fx.id, 1)
	require.ErrorIs(t, err, ErrNotDue)
	assert.Empty(t, stateOf(t, fx.store, fx.id).Bans.Purple)

	clock.Advance(20 * time.Second)
	require.NoError(t, remote.ResolveTurn(ctx, fx.id, 1))
	require.NoError(t, remote.ResolveTurn(ctx, fx.id, 1), "duplicate delivery")
	st := stateOf(t, fx.store, fx.id)
	assert.Len(t, st.Bans.Purple, 1)
	assert.Equal(t, 2, st.TurnSequence)

	err = remote.ResolveTurn(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, drafterr.ErrRoomNotFound)
}

func TestTimeoutServiceHonoursGrace(t *testing.T) {
	ctx := context.Background()
	fx := newStoreWithRoom(t)
	clock := clockwork.NewFakeClockAt(t0)
	resolver := NewResolver(fx.store, nil, NewSeededStrategy(9), defaultPool(t), clock)
	svc := NewService(resolver, 2*time.Second)
	req := func() *connect.Request[ResolveTurnTimeoutRequest] {
		return connect.NewRequest(&ResolveTurnTimeoutRequest{RoomID: fx.id, TurnSequence: 1})
	}

	clock.Advance(16 * time.Second)
	resp, err := svc.ResolveTurnTimeout(ctx, req())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotDue, resp.Msg.Outcome, "deadline passed but still within grace")
	assert.Empty(t, stateOf(t, fx.store, fx.id).Bans.Purple)

	clock.Advance(time.Second)
	resp, err = svc.ResolveTurnTimeout(ctx, req())
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, resp.Msg.Outcome)
	assert.Len(t, stateOf(t, fx.store, fx.id).Bans.Purple, 1)
}
