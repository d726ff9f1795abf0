package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/draft/drafterr"
)

// Run starts the worker pool and blocks until ctx is cancelled. Fired timers
// are handed to resolver; pending timers are cancelled on return.
func (s *LocalScheduler) Run(ctx context.Context, resolver TurnResolver) error {
	log.Info().
		Str("instance", s.instanceID).
		Int("workers", s.numWorkers).
		Msg("local timeout scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i, resolver)
	}

	<-ctx.Done()
	log.Info().Str("instance", s.instanceID).Msg("scheduler shutdown requested")
	s.stop.Do(func() { close(s.stopCh) })
	wg.Wait()

	s.activeTimersMu.Lock()
	for roomID, t := range s.activeTimers {
		stopAndDrainTimer(t.timer)
		log.Debug().Str("room_id", roomID.String()).Msg("cancelled timer on shutdown")
	}
	clear(s.activeTimers)
	s.activeTimersMu.Unlock()

	log.Info().Str("instance", s.instanceID).Msg("all workers shut down")
	return nil
}

// worker processes timeouts from the work channel
func (s *LocalScheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int, resolver TurnResolver) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.workCh:
			if !s.claim(task) {
				log.Debug().
					Str("room_id", task.RoomID.String()).
					Int("turn_sequence", task.TurnSequence).
					Msg("timeout already in flight")
				continue
			}

			log.Debug().
				Str("room_id", task.RoomID.String()).
				Int("turn_sequence", task.TurnSequence).
				Str("instance", s.instanceID).
				Int("worker_id", workerID).
				Msg("worker handling timeout")

			err := resolver.ResolveTurn(ctx, task.RoomID, task.TurnSequence)
			retry := false
			switch {
			case err == nil:
			case errors.Is(err, ErrNotDue):
				log.Debug().
					Str("room_id", task.RoomID.String()).
					Int("turn_sequence", task.TurnSequence).
					Msg("timeout not due, rescheduling")
				retry = true
			default:
				log.Error().
					Err(err).
					Str("room_id", task.RoomID.String()).
					Int("turn_sequence", task.TurnSequence).
					Int("worker_id", workerID).
					Msg("worker timeout handling failed")
				// Storage or transport failure.
				retry = drafterr.KindOf(err) == ""
			}
			s.release(task)
			if retry && ctx.Err() == nil {
				// Retried after another grace period.
				_ = s.Schedule(ctx, task.RoomID, task.TurnSequence, s.clock.Now())
			}
		}
	}
}

func (s *LocalScheduler) claim(task Task) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[task] {
		return false
	}
	s.inFlight[task] = true
	return true
}

func (s *LocalScheduler) release(task Task) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, task)
}
