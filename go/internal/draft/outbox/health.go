package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const highPendingThreshold = 1000

type HealthStatus struct {
	Healthy           bool          `json:"healthy"`
	PendingEvents     int           `json:"pending_events"`
	DatabaseConnected bool          `json:"database_connected"`
	NATSConnected     bool          `json:"nats_connected"`
	Stats             StatsSnapshot `json:"stats"`
	Errors            []string      `json:"errors"`
}

// Pinger is satisfied by *Repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnStatus is satisfied by *nats.Conn.
type ConnStatus interface {
	IsConnected() bool
}

// HealthChecker reports relay health: database and NATS reachability, the
// unsent backlog and whether the backlog is draining.
type HealthChecker struct {
	db        Pinger
	store     Store
	nats      ConnStatus
	stats     *Stats
	clock     clockwork.Clock
	threshold time.Duration // How long without events before unhealthy
}

func NewHealthChecker(db Pinger, store Store, nc ConnStatus, stats *Stats, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		db:        db,
		store:     store,
		nats:      nc,
		stats:     stats,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}
	if h.stats != nil {
		status.Stats = h.stats.Snapshot()
	}

	if err := h.db.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if status.DatabaseConnected {
		pending, err := h.store.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > highPendingThreshold {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// A backlog that is not moving.
	last := status.Stats.LastEventTime
	if status.PendingEvents > 0 && !last.IsZero() {
		if since := h.clock.Since(last); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health status")
	}
}
