package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/models"
	"github.com/mcdev12/banpick/go/internal/sqlutil"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore persists rooms in a single SQLite file. Transactions begin
// IMMEDIATE so the write lock is taken before the room is read.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqliteQueries struct {
	tx *sql.Tx
}

func newSQLiteQueries(tx *sql.Tx) *sqliteQueries {
	return &sqliteQueries{tx: tx}
}

func (q *sqliteQueries) getRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var (
		room                 models.Room
		cols                 roomColumns
		createdAt, updatedAt int64
	)
	room.ID = id
	err := q.tx.QueryRowContext(ctx, `
		SELECT host_identity, seats, config, state, version, created_at, updated_at
		FROM rooms WHERE id = ?`, id.String()).
		Scan(&room.HostIdentity, &cols.seats, &cols.config, &cols.state, &room.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, drafterr.ErrRoomNotFound
		}
		return nil, fmt.Errorf("select room: %w", err)
	}
	if err := decodeRoom(&room, cols); err != nil {
		return nil, err
	}
	room.CreatedAt = sqlutil.FromMillis(createdAt)
	room.UpdatedAt = sqlutil.FromMillis(updatedAt)
	return &room, nil
}

func (q *sqliteQueries) insertRoom(ctx context.Context, room *models.Room) error {
	cols, err := encodeRoom(room)
	if err != nil {
		return err
	}
	_, err = q.tx.ExecContext(ctx, `
		INSERT INTO rooms (id, host_identity, seats, config, state, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID.String(), room.HostIdentity, string(cols.seats), string(cols.config), string(cols.state),
		room.Version, sqlutil.ToMillis(room.CreatedAt), sqlutil.ToMillis(room.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (q *sqliteQueries) updateRoom(ctx context.Context, room *models.Room) error {
	cols, err := encodeRoom(room)
	if err != nil {
		return err
	}
	_, err = q.tx.ExecContext(ctx, `
		UPDATE rooms SET seats = ?, state = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		string(cols.seats), string(cols.state), room.Version, sqlutil.ToMillis(room.UpdatedAt), room.ID.String())
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}

func (q *sqliteQueries) insertEvents(ctx context.Context, evs []events.Event) error {
	for _, ev := range evs {
		_, err := q.tx.ExecContext(ctx, `
			INSERT INTO draft_outbox (id, room_id, event_type, payload, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			ev.ID.String(), ev.RoomID.String(), string(ev.Type), string(ev.Payload), sqlutil.ToMillis(ev.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert %s outbox event: %w", ev.Type, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, room *models.Room, evs []events.Event) error {
	return sqlutil.Run(ctx, s.db, newSQLiteQueries, func(q *sqliteQueries) error {
		if err := q.insertRoom(ctx, room); err != nil {
			return err
		}
		return q.insertEvents(ctx, evs)
	})
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room *models.Room
	err := sqlutil.Run(ctx, s.db, newSQLiteQueries, func(q *sqliteQueries) error {
		var err error
		room, err = q.getRoom(ctx, id)
		return err
	})
	return room, err
}

func (s *SQLiteStore) Update(ctx context.Context, id uuid.UUID, fn Mutator) error {
	return sqlutil.Run(ctx, s.db, newSQLiteQueries, func(q *sqliteQueries) error {
		room, err := q.getRoom(ctx, id)
		if err != nil {
			return err
		}
		evs, err := fn(room)
		if err != nil {
			return err
		}
		if err := q.updateRoom(ctx, room); err != nil {
			return err
		}
		return q.insertEvents(ctx, evs)
	})
}

// PendingTurns lists the turn every in-progress room is waiting on.
func (s *SQLiteStore) PendingTurns(ctx context.Context) ([]PendingTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state FROM rooms
		WHERE json_extract(state, '$.phase') NOT IN ('lobby', 'finished', 'aborted')`)
	if err != nil {
		return nil, fmt.Errorf("select pending rooms: %w", err)
	}
	defer rows.Close()

	var out []PendingTurn
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("scan pending room: %w", err)
		}
		turn, ok, err := decodePendingTurn(id, []byte(state))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, turn)
		}
	}
	return out, rows.Err()
}

// Events returns the outbox rows for a room, oldest first.
func (s *SQLiteStore) Events(ctx context.Context, roomID uuid.UUID) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, created_at FROM draft_outbox
		WHERE room_id = ? ORDER BY created_at, rowid`, roomID.String())
	if err != nil {
		return nil, fmt.Errorf("select outbox events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			id, typ, payload string
			createdAt        int64
		)
		if err := rows.Scan(&id, &typ, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		evID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		out = append(out, events.Event{
			ID:        evID,
			RoomID:    roomID,
			Type:      events.Type(typ),
			Payload:   []byte(payload),
			CreatedAt: sqlutil.FromMillis(createdAt),
		})
	}
	return out, rows.Err()
}
