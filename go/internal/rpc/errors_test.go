package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
)

func TestToConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
		msg  string
	}{
		{"unauthenticated", drafterr.ErrUnauthenticated, connect.CodeUnauthenticated, "UNAUTHENTICATED"},
		{"not your turn", drafterr.ErrNotYourTurn, connect.CodePermissionDenied, "NOT_YOUR_TURN"},
		{"wrapped already used", fmt.Errorf("apply: %w", drafterr.ErrAlreadyUsed), connect.CodeFailedPrecondition, "ALREADY_USED"},
		{"invalid length", drafterr.ErrInvalidLength, connect.CodeInvalidArgument, "INVALID_IDS_LENGTH"},
		{"room not found", drafterr.ErrRoomNotFound, connect.CodeNotFound, "ROOM_NOT_FOUND"},
		{"unknown", errors.New("db exploded"), connect.CodeInternal, "internal error"},
		{"deadline", context.DeadlineExceeded, connect.CodeDeadlineExceeded, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ToConnectError(tt.err)
			var cerr *connect.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.code, cerr.Code())
			if tt.msg != "" {
				assert.Equal(t, tt.msg, cerr.Message())
			}
		})
	}
	assert.NoError(t, ToConnectError(nil))
}

func TestFromConnectError(t *testing.T) {
	wire := ToConnectError(drafterr.ErrNotSeated)
	assert.ErrorIs(t, FromConnectError(wire), drafterr.ErrNotSeated)

	internal := connect.NewError(connect.CodeInternal, errors.New("internal error"))
	assert.Equal(t, error(internal), FromConnectError(internal))

	plain := errors.New("dial tcp: refused")
	assert.Equal(t, plain, FromConnectError(plain))
}

func TestJSONCodec(t *testing.T) {
	var c JSONCodec
	assert.Equal(t, "json", c.Name())

	var out struct {
		Items []string `json:"items"`
	}
	require.NoError(t, c.Unmarshal(nil, &out))
	assert.Nil(t, out.Items)

	require.NoError(t, c.Unmarshal([]byte(`{"items":["a","b"]}`), &out))
	assert.Equal(t, []string{"a", "b"}, out.Items)

	assert.Error(t, c.Unmarshal([]byte(`{`), &out))
}
