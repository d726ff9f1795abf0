package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/models"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresStore persists rooms in Postgres. Update locks the room row with
// SELECT ... FOR UPDATE for the whole read-modify-write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, room *models.Room, evs []events.Event) error {
	cols, err := encodeRoom(room)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, host_identity, seats, config, state, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			room.ID.String(), room.HostIdentity, cols.seats, cols.config, cols.state,
			room.Version, room.CreatedAt, room.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		return insertEventsPg(ctx, tx, evs)
	})
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return scanRoomPg(s.pool.QueryRow(ctx, `
		SELECT host_identity, seats, config, state, version, created_at, updated_at
		FROM rooms WHERE id = $1`, id.String()), id)
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, fn Mutator) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		room, err := scanRoomPg(tx.QueryRow(ctx, `
			SELECT host_identity, seats, config, state, version, created_at, updated_at
			FROM rooms WHERE id = $1 FOR UPDATE`, id.String()), id)
		if err != nil {
			return err
		}
		evs, err := fn(room)
		if err != nil {
			return err
		}
		cols, err := encodeRoom(room)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE rooms SET seats = $2, state = $3, version = $4, updated_at = $5
			WHERE id = $1`,
			id.String(), cols.seats, cols.state, room.Version, room.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update room: %w", err)
		}
		return insertEventsPg(ctx, tx, evs)
	})
}

// PendingTurns lists the turn every in-progress room is waiting on.
func (s *PostgresStore) PendingTurns(ctx context.Context) ([]PendingTurn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, state FROM rooms
		WHERE state->>'phase' NOT IN ('lobby', 'finished', 'aborted')`)
	if err != nil {
		return nil, fmt.Errorf("select pending rooms: %w", err)
	}
	defer rows.Close()

	var out []PendingTurn
	for rows.Next() {
		var (
			id    string
			state []byte
		)
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("scan pending room: %w", err)
		}
		turn, ok, err := decodePendingTurn(id, state)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, turn)
		}
	}
	return out, rows.Err()
}

func scanRoomPg(row pgx.Row, id uuid.UUID) (*models.Room, error) {
	room := models.Room{ID: id}
	var cols roomColumns
	err := row.Scan(&room.HostIdentity, &cols.seats, &cols.config, &cols.state,
		&room.Version, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, drafterr.ErrRoomNotFound
		}
		return nil, fmt.Errorf("select room: %w", err)
	}
	if err := decodeRoom(&room, cols); err != nil {
		return nil, err
	}
	room.CreatedAt = room.CreatedAt.UTC()
	room.UpdatedAt = room.UpdatedAt.UTC()
	return &room, nil
}

func insertEventsPg(ctx context.Context, tx pgx.Tx, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range evs {
		batch.Queue(`
			INSERT INTO draft_outbox (id, room_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.ID.String(), ev.RoomID.String(), string(ev.Type), []byte(ev.Payload), ev.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}
