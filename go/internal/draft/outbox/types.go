package outbox

import (
	"context"

	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/draft/events"
)

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Store is the draft_outbox table as the relay sees it. Rows are claimed
// under a row lock so concurrent relays never publish the same row in the
// same pass.
type Store interface {
	// ClaimByID runs fn on the unsent event id and marks it sent if fn
	// succeeds. It reports false when the row is already sent or locked.
	ClaimByID(ctx context.Context, id uuid.UUID, fn func(events.Event) error) (bool, error)

	// ClaimUnsent runs fn on up to limit unsent events, oldest first, and
	// marks the IDs fn returns as sent.
	ClaimUnsent(ctx context.Context, limit int, fn func([]events.Event) []uuid.UUID) (int, error)

	CountUnsent(ctx context.Context) (int, error)
}
