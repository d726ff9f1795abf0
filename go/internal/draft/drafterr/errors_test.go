package drafterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("apply action: %w", ErrAlreadyUsed)

	assert.Equal(t, KindAlreadyUsed, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsMatchesByKind(t *testing.T) {
	other := &Error{Kind: KindNotYourTurn, msg: "late"}

	assert.ErrorIs(t, fmt.Errorf("wrap: %w", other), ErrNotYourTurn)
	assert.NotErrorIs(t, other, ErrAlreadyOver)
}

func TestFromKind(t *testing.T) {
	assert.Equal(t, ErrAlreadyUsed, FromKind(KindAlreadyUsed))
	assert.ErrorIs(t, FromKind(KindRoomNotFound), ErrRoomNotFound)
	assert.Nil(t, FromKind("SOMETHING_ELSE"))
}
