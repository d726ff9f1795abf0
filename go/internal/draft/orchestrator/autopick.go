package orchestrator

import (
	"math/rand"
	"sync"
	"time"
)

type AutoPickStrategy interface {
	// Select draws count distinct items from candidates. It reports false
	// when fewer than count candidates remain.
	Select(candidates []string, count int) ([]string, bool)
}

// RandomStrategy draws uniformly at random without replacement.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomStrategy constructs a RandomStrategy with its own seed.
func NewRandomStrategy() *RandomStrategy {
	return NewSeededStrategy(time.Now().UnixNano())
}

// NewSeededStrategy is NewRandomStrategy with a fixed seed, for tests.
func NewSeededStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Select(candidates []string, count int) ([]string, bool) {
	if count <= 0 || len(candidates) < count {
		return nil, false
	}
	pool := append([]string(nil), candidates...)

	s.mu.Lock()
	defer s.mu.Unlock()
	// Partial Fisher-Yates: the first count slots end up a uniform sample.
	for i := 0; i < count; i++ {
		j := i + s.rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:count], true
}
