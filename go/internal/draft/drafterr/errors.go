// Package drafterr defines the typed error kinds surfaced by room operations.
// Callers branch on Kind, never on message text.
package drafterr

import (
	"errors"
)

// Kind is a stable, wire-visible error code.
type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindRoomNotFound     Kind = "ROOM_NOT_FOUND"
	KindNotSeated        Kind = "NOT_SEATED"
	KindNotStarted       Kind = "NOT_STARTED"
	KindAlreadyOver      Kind = "ALREADY_OVER"
	KindNotYourTurn      Kind = "NOT_YOUR_TURN"
	KindWrongActionKind  Kind = "WRONG_ACTION_KIND"
	KindWrongPhase       Kind = "INVALID_PHASE"
	KindInvalidLength    Kind = "INVALID_IDS_LENGTH"
	KindEmptyID          Kind = "EMPTY_ID"
	KindDuplicateIDs     Kind = "DUPLICATE_IDS"
	KindAlreadyUsed      Kind = "ALREADY_USED"
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindInvalidTurnSecs  Kind = "INVALID_TURN_SECONDS"
	KindNotHost          Kind = "NOT_HOST"
	KindNotAllowed       Kind = "NOT_ALLOWED"
	KindSeatsNotReady    Kind = "SEATS_NOT_READY"
	KindAlreadyStarted   Kind = "ALREADY_STARTED"
	KindAlreadyOccupied  Kind = "ALREADY_OCCUPIED"
	KindSameUserBothSide Kind = "SAME_USER_BOTH_SEATS"
	KindEmptyDisplayName Kind = "EMPTY_DISPLAY_NAME"
)

// Error is a domain error carrying its Kind.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Core draft errors
var (
	ErrUnauthenticated = newErr(KindUnauthenticated, "caller identity is required")
	ErrRoomNotFound    = newErr(KindRoomNotFound, "room not found")
	ErrNotSeated       = newErr(KindNotSeated, "caller occupies neither seat")
	ErrNotStarted      = newErr(KindNotStarted, "draft has not started")
	ErrAlreadyOver     = newErr(KindAlreadyOver, "draft is already over")
	ErrNotYourTurn     = newErr(KindNotYourTurn, "not your turn")
	ErrWrongActionKind = newErr(KindWrongActionKind, "wrong action kind for this turn")
	ErrWrongPhase      = newErr(KindWrongPhase, "no turn is pending in this phase")
	ErrInvalidLength   = newErr(KindInvalidLength, "item count does not match the turn")
	ErrEmptyID         = newErr(KindEmptyID, "item identifier is empty")
	ErrDuplicateIDs    = newErr(KindDuplicateIDs, "duplicate item identifiers")
	ErrAlreadyUsed     = newErr(KindAlreadyUsed, "item already banned or picked")
)

// Room lifecycle errors
var (
	ErrInvalidArgument   = newErr(KindInvalidArgument, "invalid argument")
	ErrInvalidTurnSecs   = newErr(KindInvalidTurnSecs, "turn seconds must be between 5 and 120")
	ErrNotHost           = newErr(KindNotHost, "only the host may do this")
	ErrNotAllowed        = newErr(KindNotAllowed, "not allowed")
	ErrSeatsNotReady     = newErr(KindSeatsNotReady, "both seats must be occupied")
	ErrAlreadyStarted    = newErr(KindAlreadyStarted, "draft already started")
	ErrAlreadyOccupied   = newErr(KindAlreadyOccupied, "seat is already occupied")
	ErrSameUserBothSides = newErr(KindSameUserBothSide, "identity already holds the other seat")
	ErrEmptyDisplayName  = newErr(KindEmptyDisplayName, "display name is empty")
)

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var byKind = map[Kind]*Error{}

func init() {
	for _, e := range []*Error{
		ErrUnauthenticated, ErrRoomNotFound, ErrNotSeated, ErrNotStarted,
		ErrAlreadyOver, ErrNotYourTurn, ErrWrongActionKind, ErrWrongPhase,
		ErrInvalidLength, ErrEmptyID, ErrDuplicateIDs, ErrAlreadyUsed,
		ErrInvalidArgument, ErrInvalidTurnSecs, ErrNotHost, ErrNotAllowed,
		ErrSeatsNotReady, ErrAlreadyStarted, ErrAlreadyOccupied,
		ErrSameUserBothSides, ErrEmptyDisplayName,
	} {
		byKind[e.Kind] = e
	}
}

// FromKind returns the sentinel for a wire kind, or nil if the kind is unknown.
func FromKind(kind Kind) error {
	if e, ok := byKind[kind]; ok {
		return e
	}
	return nil
}
