package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/sqlutil"
)

const (
	fetchOutboxByID = `
SELECT id, room_id, event_type, payload, created_at
FROM draft_outbox
WHERE id = $1 AND sent_at IS NULL
FOR UPDATE SKIP LOCKED`

	fetchUnsentOutbox = `
SELECT id, room_id, event_type, payload, created_at
FROM draft_outbox
WHERE sent_at IS NULL
ORDER BY created_at, id
LIMIT $1
FOR UPDATE SKIP LOCKED`

	markOutboxSent = `
UPDATE draft_outbox SET sent_at = now()
WHERE id = ANY($1::uuid[])`

	countUnsentOutbox = `SELECT COUNT(*) FROM draft_outbox WHERE sent_at IS NULL`
)

// Repository reads and settles outbox rows through database/sql and lib/pq.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

type queries struct {
	tx *sql.Tx
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{tx: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (events.Event, error) {
	var (
		id, roomID string
		eventType  string
		payload    pqtype.NullRawMessage
		ev         events.Event
	)
	if err := row.Scan(&id, &roomID, &eventType, &payload, &ev.CreatedAt); err != nil {
		return events.Event{}, err
	}
	var err error
	if ev.ID, err = uuid.Parse(id); err != nil {
		return events.Event{}, fmt.Errorf("parse event id: %w", err)
	}
	if ev.RoomID, err = uuid.Parse(roomID); err != nil {
		return events.Event{}, fmt.Errorf("parse room id: %w", err)
	}
	ev.Type = events.Type(eventType)
	if payload.Valid {
		ev.Payload = payload.RawMessage
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}

func (q *queries) fetchByID(ctx context.Context, id uuid.UUID) (events.Event, error) {
	return scanEvent(q.tx.QueryRowContext(ctx, fetchOutboxByID, id.String()))
}

func (q *queries) fetchUnsent(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := q.tx.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (q *queries) markSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if _, err := q.tx.ExecContext(ctx, markOutboxSent, pq.Array(strs)); err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (r *Repository) ClaimByID(ctx context.Context, id uuid.UUID, fn func(events.Event) error) (bool, error) {
	claimed := false
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		ev, err := q.fetchByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch outbox event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		claimed = true
		return q.markSent(ctx, []uuid.UUID{id})
	})
	return claimed, err
}

func (r *Repository) ClaimUnsent(ctx context.Context, limit int, fn func([]events.Event) []uuid.UUID) (int, error) {
	var sent int
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		unsent, err := q.fetchUnsent(ctx, limit)
		if err != nil {
			return err
		}
		if len(unsent) == 0 {
			return nil
		}
		ids := fn(unsent)
		sent = len(ids)
		return q.markSent(ctx, ids)
	})
	return sent, err
}

func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countUnsentOutbox).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsent outbox: %w", err)
	}
	return n, nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
