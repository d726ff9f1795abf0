package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
	"github.com/mcdev12/banpick/go/internal/draft/events"
	"github.com/mcdev12/banpick/go/internal/models"
)

// MemoryStore keeps rooms in process. A single mutex serializes every
// transaction, which gives the same isolation as a row lock.
type MemoryStore struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*models.Room
	events []events.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[uuid.UUID]*models.Room)}
}

func (s *MemoryStore) Create(ctx context.Context, room *models.Room, evs []events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists {
		return errors.New("room already exists")
	}
	s.rooms[room.ID] = room.Clone()
	s.events = append(s.events, evs...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, drafterr.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, fn Mutator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[id]
	if !ok {
		return drafterr.ErrRoomNotFound
	}
	working := current.Clone()
	evs, err := fn(working)
	if err != nil {
		return err
	}
	s.rooms[id] = working
	s.events = append(s.events, evs...)
	return nil
}

// PendingTurns lists the turn every in-progress room is waiting on.
func (s *MemoryStore) PendingTurns(ctx context.Context) ([]PendingTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingTurn
	for _, room := range s.rooms {
		if turn, ok := pendingTurnOf(room); ok {
			out = append(out, turn)
		}
	}
	return out, nil
}

// Events returns every event committed so far, oldest first.
func (s *MemoryStore) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}
