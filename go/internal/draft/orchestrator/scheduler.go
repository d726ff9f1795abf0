package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Task is one scheduled timeout.
type Task struct {
	RoomID       uuid.UUID `json:"roomId"`
	TurnSequence int       `json:"turnSequence"`
}

type activeTimer struct {
	seq      int
	timer    clockwork.Timer
	replaced chan struct{}
}

// LocalScheduler delivers timeouts in process using one timer per room.
// Scheduling a newer turn for a room replaces the older timer; repeating a
// schedule for the current turn is ignored.
type LocalScheduler struct {
	clock      clockwork.Clock
	grace      time.Duration
	numWorkers int
	instanceID string

	workCh chan Task
	stopCh chan struct{}
	stop   sync.Once

	activeTimers   map[uuid.UUID]activeTimer
	activeTimersMu sync.Mutex

	// Track in-flight work to prevent duplicate processing
	inFlight   map[Task]bool
	inFlightMu sync.Mutex
}

// NewLocalScheduler creates a scheduler with numWorkers resolution workers.
func NewLocalScheduler(clock clockwork.Clock, grace time.Duration, numWorkers int) *LocalScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &LocalScheduler{
		clock:        clock,
		grace:        grace,
		numWorkers:   numWorkers,
		instanceID:   uuid.New().String()[:8],
		workCh:       make(chan Task, numWorkers*2),
		stopCh:       make(chan struct{}),
		activeTimers: make(map[uuid.UUID]activeTimer),
		inFlight:     make(map[Task]bool),
	}
}

var _ Scheduler = (*LocalScheduler)(nil)

// Schedule arms a timer firing at deadline plus grace. A deadline already in
// the past fires immediately.
func (s *LocalScheduler) Schedule(_ context.Context, roomID uuid.UUID, turnSequence int, deadline time.Time) error {
	select {
	case <-s.stopCh:
		log.Warn().Str("room_id", roomID.String()).Msg("scheduler stopped, timeout dropped")
		return nil
	default:
	}

	task := Task{RoomID: roomID, TurnSequence: turnSequence}
	duration := deadline.Add(s.grace).Sub(s.clock.Now())
	if duration < 0 {
		duration = 0
	}

	s.activeTimersMu.Lock()
	if existing, ok := s.activeTimers[roomID]; ok {
		if existing.seq >= turnSequence {
			s.activeTimersMu.Unlock()
			log.Debug().
				Str("room_id", roomID.String()).
				Int("turn_sequence", turnSequence).
				Int("scheduled_sequence", existing.seq).
				Msg("skipping duplicate schedule")
			return nil
		}
		stopAndDrainTimer(existing.timer)
		close(existing.replaced)
	}
	entry := activeTimer{seq: turnSequence, timer: s.clock.NewTimer(duration), replaced: make(chan struct{})}
	s.activeTimers[roomID] = entry
	s.activeTimersMu.Unlock()

	go s.await(task, entry)

	log.Debug().
		Str("room_id", roomID.String()).
		Int("turn_sequence", turnSequence).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("scheduled one-shot timer")
	return nil
}

func (s *LocalScheduler) await(task Task, entry activeTimer) {
	select {
	case <-entry.replaced:
	case <-entry.timer.Chan():
		s.removeTimer(task)
		select {
		case s.workCh <- task:
			log.Debug().Str("room_id", task.RoomID.String()).Msg("timer fired - enqueued for processing")
		case <-s.stopCh:
		}
	case <-s.stopCh:
		stopAndDrainTimer(entry.timer)
	}
}

// Pending returns the turn sequence armed for a room.
func (s *LocalScheduler) Pending(roomID uuid.UUID) (int, bool) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	t, ok := s.activeTimers[roomID]
	return t.seq, ok
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// removeTimer forgets a fired timer unless a newer turn already replaced it.
func (s *LocalScheduler) removeTimer(task Task) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if t, ok := s.activeTimers[task.RoomID]; ok && t.seq == task.TurnSequence {
		delete(s.activeTimers, task.RoomID)
	}
}
