package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
)

var codes = map[drafterr.Kind]connect.Code{
	drafterr.KindUnauthenticated: connect.CodeUnauthenticated,

	drafterr.KindNotSeated:       connect.CodePermissionDenied,
	drafterr.KindNotYourTurn:     connect.CodePermissionDenied,
	drafterr.KindWrongActionKind: connect.CodePermissionDenied,
	drafterr.KindNotHost:         connect.CodePermissionDenied,
	drafterr.KindNotAllowed:      connect.CodePermissionDenied,

	drafterr.KindNotStarted:       connect.CodeFailedPrecondition,
	drafterr.KindAlreadyOver:      connect.CodeFailedPrecondition,
	drafterr.KindWrongPhase:       connect.CodeFailedPrecondition,
	drafterr.KindAlreadyUsed:      connect.CodeFailedPrecondition,
	drafterr.KindSeatsNotReady:    connect.CodeFailedPrecondition,
	drafterr.KindAlreadyStarted:   connect.CodeFailedPrecondition,
	drafterr.KindAlreadyOccupied:  connect.CodeFailedPrecondition,
	drafterr.KindSameUserBothSide: connect.CodeFailedPrecondition,
	drafterr.KindEmptyDisplayName: connect.CodeFailedPrecondition,

	drafterr.KindInvalidLength:   connect.CodeInvalidArgument,
	drafterr.KindEmptyID:         connect.CodeInvalidArgument,
	drafterr.KindDuplicateIDs:    connect.CodeInvalidArgument,
	drafterr.KindInvalidArgument: connect.CodeInvalidArgument,
	drafterr.KindInvalidTurnSecs: connect.CodeInvalidArgument,

	drafterr.KindRoomNotFound: connect.CodeNotFound,
}

// CodeFor returns the Connect code for a domain kind.
func CodeFor(kind drafterr.Kind) connect.Code {
	if code, ok := codes[kind]; ok {
		return code
	}
	return connect.CodeInternal
}

// ToConnectError converts an app error. Domain errors carry their kind as
// the message; anything else is logged and reported as internal.
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	kind := drafterr.KindOf(err)
	if kind == "" {
		log.Error().Err(err).Msg("internal error")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
	return connect.NewError(CodeFor(kind), errors.New(string(kind)))
}

// FromConnectError maps an error returned by a Connect client back to the
// domain sentinel when its message names a known kind.
func FromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	if domain := drafterr.FromKind(drafterr.Kind(cerr.Message())); domain != nil {
		return domain
	}
	return err
}
