package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/banpick/go/internal/draft/events"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType events.Type, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordPublishAttempt(eventType events.Type, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventProcessed(events.Type, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordBatchProcessed(int, time.Duration)              {}
func (NoOpMetricsCollector) RecordPublishAttempt(events.Type, int, bool)          {}

// Stats keeps in-process counters for the health endpoint.
type Stats struct {
	mu        sync.Mutex
	published uint64
	failed    uint64
	retries   uint64
	batches   uint64
	byType    map[events.Type]uint64
	lastEvent time.Time
	clock     clockwork.Clock
}

func NewStats(clock clockwork.Clock) *Stats {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Stats{byType: make(map[events.Type]uint64), clock: clock}
}

var _ MetricsCollector = (*Stats)(nil)

func (s *Stats) RecordEventProcessed(eventType events.Type, success bool, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !success {
		s.failed++
		return
	}
	s.published++
	s.byType[eventType]++
	s.lastEvent = s.clock.Now()
}

func (s *Stats) RecordBatchProcessed(int, time.Duration) {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
}

func (s *Stats) RecordPublishAttempt(_ events.Type, attempt int, _ bool) {
	if attempt <= 1 {
		return
	}
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Published     uint64                 `json:"published"`
	Failed        uint64                 `json:"failed"`
	Retries       uint64                 `json:"retries"`
	Batches       uint64                 `json:"batches"`
	ByType        map[events.Type]uint64 `json:"by_type"`
	LastEventTime time.Time              `json:"last_event_time"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := make(map[events.Type]uint64, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return StatsSnapshot{
		Published:     s.published,
		Failed:        s.failed,
		Retries:       s.retries,
		Batches:       s.batches,
		ByType:        byType,
		LastEventTime: s.lastEvent,
	}
}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event events.Event) error {
	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordEventProcessed(event.Type, err == nil, time.Since(start))
	return err
}
